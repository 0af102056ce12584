package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/testprep/internal/i18n"
	"github.com/pavelanni/testprep/internal/model"
	"github.com/pavelanni/testprep/internal/store"
)

const maxUploadBytes = 10 << 20

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,max=64"`
	DisplayName string         `json:"display_name" validate:"max=128"`
	Password    string         `json:"password" validate:"required,min=8,max=72"`
	Role        model.UserRole `json:"role" validate:"required,oneof=student teacher admin"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	}
	if u.ID, err = h.store.CreateUser(r.Context(), u); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if u == nil {
		writeError(w, r, http.StatusNotFound, "ErrNotFound")
		return
	}
	slog.Info("toggled user active", "user_id", id, "active", u.Active)
	writeJSON(w, http.StatusOK, u)
}

// handleUploadQuestions imports a question file sent either as a multipart
// "questions_file" field or as the raw request body. The file name decides
// the format; raw bodies use the Content-Type.
func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(w, r)
	if err != nil {
		slog.Debug("bad question upload", "error", err)
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	questions, err := store.ParseQuestions(name, data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{
			"error": {Code: "ErrValidation", Message: err.Error()},
		})
		return
	}
	ids, err := h.store.InsertQuestions(r.Context(), questions)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	slog.Info("uploaded questions via admin", "filename", name, "count", len(ids))
	writeJSON(w, http.StatusCreated, map[string]any{
		"ids":     ids,
		"message": appI18n.Tp(r.Context(), "QuestionsImported", len(ids)),
	})
}

func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", nil, err
		}
		file, header, err := r.FormFile("questions_file")
		if err != nil {
			return "", nil, err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		return header.Filename, data, err
	case "application/yaml", "application/x-yaml", "text/yaml":
		data, err := io.ReadAll(r.Body)
		return "upload.yaml", data, err
	case "application/json", "":
		data, err := io.ReadAll(r.Body)
		return "upload.json", data, err
	}
	return "", nil, errors.New("unsupported content type " + mediaType)
}
