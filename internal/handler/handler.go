package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/testprep/internal/exam"
	appI18n "github.com/pavelanni/testprep/internal/i18n"
	"github.com/pavelanni/testprep/internal/model"
	"github.com/pavelanni/testprep/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	exams    *exam.Manager
	config   model.ExamConfig
	validate *validator.Validate
}

// New creates a new Handler.
func New(s *store.Store, m *exam.Manager, cfg model.ExamConfig) *Handler {
	return &Handler{store: s, exams: m, config: cfg, validate: validator.New()}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/register", h.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(h.csrfMiddleware)

		r.Post("/api/logout", h.handleLogout)
		r.Get("/api/me", h.handleMe)
		r.Get("/api/categories", h.handleCategories)

		r.Post("/api/sessions", h.handleCreateSession)
		r.Get("/api/sessions", h.handleListSessions)
		r.Get("/api/sessions/{sessionID}", h.handleGetSession)
		r.Put("/api/sessions/{sessionID}/answers/{questionID}", h.handleAnswer)
		r.Post("/api/sessions/{sessionID}/answers", h.handleAnswerBatch)
		r.Post("/api/sessions/{sessionID}/submit", h.handleSubmit)
		r.Get("/api/sessions/{sessionID}/score", h.handleScore)
		r.Get("/api/progress", h.handleProgress)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
			r.Get("/api/review", h.handleReviewList)
			r.Post("/api/review/sessions/{sessionID}/answers/{answerID}/grade", h.handleGrade)
			r.Post("/api/review/sessions/{sessionID}/finalize", h.handleFinalize)
			r.Post("/api/review/sessions/{sessionID}/suggest", h.handleSuggest)
			r.Get("/api/users/{userID}/progress", h.handleUserProgress)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/api/admin/users", h.handleListUsers)
			r.Post("/api/admin/users", h.handleCreateUser)
			r.Post("/api/admin/users/{userID}/toggle", h.handleToggleUserActive)
			r.Post("/api/admin/questions", h.handleUploadQuestions)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorKinds maps domain errors to HTTP statuses. The code doubles as the
// translation message ID.
var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{exam.ErrInvalidMode, http.StatusBadRequest, "ErrInvalidMode"},
	{exam.ErrEmptyQuestionSet, http.StatusBadRequest, "ErrEmptyQuestionSet"},
	{exam.ErrUnknownQuestion, http.StatusBadRequest, "ErrUnknownQuestion"},
	{exam.ErrQuestionNotInSession, http.StatusBadRequest, "ErrQuestionNotInSession"},
	{exam.ErrInvalidScore, http.StatusBadRequest, "ErrInvalidScore"},
	{exam.ErrSessionNotActive, http.StatusConflict, "ErrSessionNotActive"},
	{exam.ErrAlreadySubmitted, http.StatusConflict, "ErrAlreadySubmitted"},
	{exam.ErrSessionNotSubmitted, http.StatusConflict, "ErrSessionNotSubmitted"},
	{exam.ErrNotPendingGrade, http.StatusConflict, "ErrNotPendingGrade"},
	{exam.ErrPendingGrades, http.StatusConflict, "ErrPendingGrades"},
	{exam.ErrNotFound, http.StatusNotFound, "ErrNotFound"},
	{store.ErrUsernameTaken, http.StatusConflict, "ErrUsernameTaken"},
	{exam.ErrStorageFailure, http.StatusServiceUnavailable, "ErrStorageFailure"},
}

// writeErr reports err to the client with a localized message.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			if k.status >= http.StatusInternalServerError {
				slog.Error("request failed", "path", r.URL.Path, "error", err)
				w.Header().Set("Retry-After", "1")
			}
			writeError(w, r, k.status, k.code)
			return
		}
	}
	slog.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "ErrInternal")
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: appI18n.T(r.Context(), code)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		slog.Debug("bad request body", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		field := "?"
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Field()
		}
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{
			"error": {
				Code:    "ErrValidation",
				Message: appI18n.Td(r.Context(), "ErrValidation", map[string]any{"Field": field}),
			},
		})
		return false
	}
	return true
}

// pathID parses a numeric URL parameter. On failure it writes a 404.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "ErrNotFound")
		return 0, false
	}
	return id, true
}

// sessionFor loads a session the current user may see. Students only see
// their own; others get ErrNotFound so IDs do not leak.
func (h *Handler) sessionFor(r *http.Request, sessionID int64, ownerOnly bool) (*model.SessionView, error) {
	user := model.UserFromContext(r.Context())
	view, err := h.exams.Session(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	if view.Session.UserID != user.ID && (ownerOnly || !user.Role.CanReview()) {
		return nil, fmt.Errorf("session %d: %w", sessionID, exam.ErrNotFound)
	}
	if !user.Role.CanReview() && view.Session.Status != model.StatusReviewed {
		view.HideReviewDetails()
	}
	return view, nil
}
