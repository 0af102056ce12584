package handler

import (
	"math/rand/v2"
	"net/http"

	"github.com/pavelanni/testprep/internal/exam"
	"github.com/pavelanni/testprep/internal/model"
)

type createSessionRequest struct {
	Mode        model.SessionMode `json:"mode"`
	Category    string            `json:"category"`
	QuestionIDs []int64           `json:"question_ids" validate:"omitempty,dive,gt=0"`
	Difficulty  int               `json:"difficulty" validate:"omitempty,min=1,max=3"`
	Count       int               `json:"count" validate:"omitempty,min=1"`
	Shuffle     *bool             `json:"shuffle"`
}

type answerRequest struct {
	Value string `json:"value" validate:"max=20000"`
}

type batchAnswerRequest struct {
	Answers []struct {
		QuestionID int64  `json:"question_id" validate:"gt=0"`
		Value      string `json:"value" validate:"max=20000"`
	} `json:"answers" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	ids := req.QuestionIDs
	if len(ids) == 0 {
		var err error
		ids, err = h.selectQuestions(r, user.ID, &req)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		if len(ids) == 0 {
			writeError(w, r, http.StatusBadRequest, "ErrNoQuestions")
			return
		}
	}

	sess, err := h.exams.CreateSession(r.Context(), user.ID, req.Mode, req.Category, ids)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// selectQuestions picks questions from the bank when the client did not
// name them. Targeted sessions without a category drill the user's weakest
// category. Request fields override the server defaults.
func (h *Handler) selectQuestions(r *http.Request, userID int64, req *createSessionRequest) ([]int64, error) {
	if req.Category == "" && req.Mode == model.ModeTargeted {
		stats, err := h.exams.Progress(r.Context(), userID)
		if err != nil {
			return nil, err
		}
		req.Category = weakestCategory(stats)
	}
	if req.Category == "" {
		req.Category = h.config.Category
	}
	difficulty := req.Difficulty
	if difficulty == 0 {
		difficulty = h.config.Difficulty
	}
	count := req.Count
	if count == 0 {
		count = h.config.NumQuestions
	}
	shuffle := h.config.Shuffle
	if req.Shuffle != nil {
		shuffle = *req.Shuffle
	}

	questions, err := h.store.ListQuestionsFiltered(r.Context(), req.Category, difficulty)
	if err != nil {
		return nil, err
	}
	if shuffle {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if count > 0 && count < len(questions) {
		questions = questions[:count]
	}

	ids := make([]int64, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	return ids, nil
}

// weakestCategory returns the category with the lowest accuracy, or "" when
// the user has no attempts yet.
func weakestCategory(stats []model.ProgressStat) string {
	var best *model.ProgressStat
	for i := range stats {
		s := &stats[i]
		if s.TotalAttempts == 0 {
			continue
		}
		if best == nil || s.Accuracy < best.Accuracy {
			best = s
		}
	}
	if best == nil {
		return ""
	}
	return best.Category
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sessions, err := h.exams.ListSessions(r.Context(), user.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []model.ExamSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	view, err := h.sessionFor(r, sessionID, false)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	questionID, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.sessionFor(r, sessionID, true); err != nil {
		h.writeErr(w, r, err)
		return
	}

	a, err := h.exams.SubmitAnswer(r.Context(), sessionID, questionID, req.Value)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleAnswerBatch(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	var req batchAnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.sessionFor(r, sessionID, true); err != nil {
		h.writeErr(w, r, err)
		return
	}

	inputs := make([]exam.AnswerInput, len(req.Answers))
	for i, a := range req.Answers {
		inputs[i] = exam.AnswerInput{QuestionID: a.QuestionID, Value: a.Value}
	}
	answers, err := h.exams.SubmitAnswers(r.Context(), sessionID, inputs)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	if _, err := h.sessionFor(r, sessionID, true); err != nil {
		h.writeErr(w, r, err)
		return
	}
	sess, err := h.exams.Submit(r.Context(), sessionID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	if _, err := h.sessionFor(r, sessionID, false); err != nil {
		h.writeErr(w, r, err)
		return
	}
	rec, err := h.exams.Score(r.Context(), sessionID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	h.writeProgress(w, r, model.UserFromContext(r.Context()).ID)
}

func (h *Handler) writeProgress(w http.ResponseWriter, r *http.Request, userID int64) {
	stats, err := h.exams.Progress(r.Context(), userID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if stats == nil {
		stats = []model.ProgressStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}
