package handler

import (
	"net/http"

	"github.com/pavelanni/testprep/internal/exam"
	appI18n "github.com/pavelanni/testprep/internal/i18n"
	"github.com/pavelanni/testprep/internal/model"
)

type gradeRequest struct {
	Score     *float64 `json:"score" validate:"required"`
	IsCorrect *bool    `json:"is_correct"`
}

func (h *Handler) handleReviewList(w http.ResponseWriter, r *http.Request) {
	views, err := h.exams.PendingReviews(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if views == nil {
		views = []model.SessionView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	answerID, ok := pathID(w, r, "answerID")
	if !ok {
		return
	}
	var req gradeRequest
	if !h.decode(w, r, &req) {
		return
	}

	reviewer := model.UserFromContext(r.Context())
	a, err := h.exams.ApplyManualGrade(r.Context(), exam.ManualGrade{
		SessionID:  sessionID,
		AnswerID:   answerID,
		IsCorrect:  req.IsCorrect,
		Score:      *req.Score,
		ReviewerID: reviewer.ID,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	rec, err := h.exams.Finalize(r.Context(), sessionID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	n, err := h.exams.SuggestGrades(r.Context(), sessionID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stored":  n,
		"message": appI18n.Tp(r.Context(), "SuggestionsStored", n),
	})
}

func (h *Handler) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	h.writeProgress(w, r, userID)
}
