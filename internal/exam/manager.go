package exam

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/testprep/internal/model"
)

// Advisor proposes a grade for an essay answer. Suggestions are stored for
// the reviewing teacher and never resolve an answer.
type Advisor interface {
	SuggestGrade(ctx context.Context, q model.Question, answer string) (score float64, feedback string, err error)
}

// Options configures a Manager.
type Options struct {
	// PassThreshold decides correctness of manual grades given without an
	// explicit verdict. Nil means DefaultPassThreshold.
	PassThreshold *float64
	// Advisor is optional.
	Advisor Advisor
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager owns the exam session state machine.
type Manager struct {
	store     Store
	questions QuestionSource
	grader    Grader
	scorer    Scorer
	progress  Aggregator
	advisor   Advisor
	locks     *keyedMutex
	now       func() time.Time
}

// NewManager creates a Manager on top of the given store and question bank.
func NewManager(store Store, questions QuestionSource, opts Options) (*Manager, error) {
	threshold := DefaultPassThreshold
	if opts.PassThreshold != nil {
		threshold = *opts.PassThreshold
		if err := ValidatePassThreshold(threshold); err != nil {
			return nil, err
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:     store,
		questions: questions,
		scorer:    Scorer{PassThreshold: threshold},
		advisor:   opts.Advisor,
		locks:     newKeyedMutex(),
		now:       now,
	}, nil
}

// AnswerInput is one answer of a batch submission.
type AnswerInput struct {
	QuestionID int64
	Value      string
}

// ManualGrade is a teacher's grade for one essay answer. When IsCorrect is
// nil the pass threshold decides from Score.
type ManualGrade struct {
	SessionID  int64
	AnswerID   int64
	IsCorrect  *bool
	Score      float64
	ReviewerID int64
}

// CreateSession starts a new in-progress session over questionIDs, in order.
// Duplicate IDs keep their first position.
func (m *Manager) CreateSession(ctx context.Context, userID int64, mode model.SessionMode, categoryFilter string, questionIDs []int64) (*model.ExamSession, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	seen := make(map[int64]bool, len(questionIDs))
	ids := make([]int64, 0, len(questionIDs))
	for _, id := range questionIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := m.lookup(ctx, id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrEmptyQuestionSet
	}

	sess := model.ExamSession{
		UserID:         userID,
		Mode:           mode,
		CategoryFilter: categoryFilter,
		QuestionIDs:    ids,
		Status:         model.StatusInProgress,
		CreatedAt:      m.now(),
	}
	id, err := m.store.InsertSession(ctx, sess)
	if err != nil {
		return nil, storageErr("insert session", err)
	}
	sess.ID = id
	slog.Info("created exam session", "session_id", id, "user_id", userID, "mode", mode, "questions", len(ids))
	return &sess, nil
}

// SubmitAnswer records or overwrites the answer to one question and grades
// it immediately when the question type allows.
func (m *Manager) SubmitAnswer(ctx context.Context, sessionID, questionID int64, value string) (*model.Answer, error) {
	answers, err := m.SubmitAnswers(ctx, sessionID, []AnswerInput{{QuestionID: questionID, Value: value}})
	if err != nil {
		return nil, err
	}
	return &answers[0], nil
}

// SubmitAnswers records a batch of answers in one transaction. Either all
// of them are stored or none.
func (m *Manager) SubmitAnswers(ctx context.Context, sessionID int64, inputs []AnswerInput) ([]model.Answer, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	sess, err := m.session(ctx, m.store, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusInProgress {
		return nil, ErrSessionNotActive
	}

	questions := make([]*model.Question, len(inputs))
	for i, in := range inputs {
		if questions[i], err = m.lookup(ctx, in.QuestionID); err != nil {
			return nil, err
		}
		if !sess.HasQuestion(in.QuestionID) {
			return nil, fmt.Errorf("%w: question %d", ErrQuestionNotInSession, in.QuestionID)
		}
	}

	var out []model.Answer
	err = m.store.Atomic(ctx, func(r Repository) error {
		out = out[:0]
		for i, in := range inputs {
			a, err := m.upsertAnswer(ctx, r, sess, questions[i], in.Value)
			if err != nil {
				return err
			}
			out = append(out, *a)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("submit answers", err)
	}
	return out, nil
}

func (m *Manager) upsertAnswer(ctx context.Context, r Repository, sess *model.ExamSession, q *model.Question, value string) (*model.Answer, error) {
	prev, err := r.GetAnswerByQuestion(ctx, sess.ID, q.ID)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.Resolved() {
		if err := m.progress.Revert(ctx, r, sess.UserID, q.Category, prev.Correct()); err != nil {
			return nil, err
		}
	}

	now := m.now()
	a := model.Answer{
		SessionID:  sess.ID,
		QuestionID: q.ID,
		Value:      value,
		AnsweredAt: now,
	}
	grade := m.grader.Grade(*q, value)
	grade.apply(&a)
	if !grade.Pending {
		a.GradedAt = &now
	}

	if a.ID, err = r.UpsertAnswer(ctx, a); err != nil {
		return nil, err
	}
	if a.Resolved() {
		if err := m.progress.Apply(ctx, r, sess.UserID, q.Category, a.Correct()); err != nil {
			return nil, err
		}
	}
	slog.Debug("recorded answer", "session_id", sess.ID, "question_id", q.ID, "resolved", a.Resolved(), "replaced", prev != nil)
	return &a, nil
}

// Submit closes the session for answers. If every answer is already
// resolved the session is finalized right away.
func (m *Manager) Submit(ctx context.Context, sessionID int64) (*model.ExamSession, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	var sess *model.ExamSession
	err := m.store.Atomic(ctx, func(r Repository) error {
		var err error
		if sess, err = m.session(ctx, r, sessionID); err != nil {
			return err
		}
		if sess.Status != model.StatusInProgress {
			return ErrAlreadySubmitted
		}
		ok, err := r.CompareAndSetStatus(ctx, sessionID, model.StatusInProgress, model.StatusSubmitted, m.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadySubmitted
		}
		if sess, err = m.session(ctx, r, sessionID); err != nil {
			return err
		}
		if _, err := m.finalizeIfResolved(ctx, r, sess); err != nil {
			return err
		}
		sess, err = m.session(ctx, r, sessionID)
		return err
	})
	if err != nil {
		return nil, storageErr("submit session", err)
	}
	slog.Info("submitted exam session", "session_id", sessionID, "status", sess.Status)
	return sess, nil
}

// ApplyManualGrade resolves a pending essay answer of a submitted session.
func (m *Manager) ApplyManualGrade(ctx context.Context, g ManualGrade) (*model.Answer, error) {
	if !(g.Score >= 0 && g.Score <= 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScore, g.Score)
	}

	unlock := m.locks.Lock(g.SessionID)
	defer unlock()

	sess, err := m.session(ctx, m.store, g.SessionID)
	if err != nil {
		return nil, err
	}
	a, err := m.store.GetAnswer(ctx, g.AnswerID)
	if err != nil {
		return nil, storageErr("get answer", err)
	}
	if a == nil || a.SessionID != sess.ID {
		return nil, fmt.Errorf("answer %d: %w", g.AnswerID, ErrNotFound)
	}
	q, err := m.lookup(ctx, a.QuestionID)
	if err != nil {
		return nil, err
	}
	if !q.Type.ManualGrading() || a.Resolved() {
		return nil, ErrNotPendingGrade
	}
	if sess.Status != model.StatusSubmitted {
		return nil, ErrSessionNotSubmitted
	}

	correct := m.scorer.Passes(g.Score)
	if g.IsCorrect != nil {
		correct = *g.IsCorrect
	}
	score := g.Score
	reviewer := g.ReviewerID
	now := m.now()
	a.IsCorrect = &correct
	a.Score = &score
	a.GradedAt = &now
	a.ReviewedBy = &reviewer

	err = m.store.Atomic(ctx, func(r Repository) error {
		if _, err := r.UpsertAnswer(ctx, *a); err != nil {
			return err
		}
		if err := m.progress.Apply(ctx, r, sess.UserID, q.Category, correct); err != nil {
			return err
		}
		_, err := m.finalizeIfResolved(ctx, r, sess)
		return err
	})
	if err != nil {
		return nil, storageErr("apply manual grade", err)
	}
	slog.Info("applied manual grade", "session_id", sess.ID, "answer_id", a.ID, "reviewer_id", reviewer, "score", score, "correct", correct)
	return a, nil
}

// Finalize returns the session's score record, producing it if the session
// is submitted and fully resolved. Calling it again on a reviewed session
// returns the stored record unchanged.
func (m *Manager) Finalize(ctx context.Context, sessionID int64) (*model.ScoreRecord, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	var rec *model.ScoreRecord
	err := m.store.Atomic(ctx, func(r Repository) error {
		sess, err := m.session(ctx, r, sessionID)
		if err != nil {
			return err
		}
		switch sess.Status {
		case model.StatusReviewed:
			rec, err = r.GetScore(ctx, sessionID)
			if err == nil && rec == nil {
				err = fmt.Errorf("score for reviewed session %d: %w", sessionID, ErrNotFound)
			}
			return err
		case model.StatusSubmitted:
			if rec, err = m.finalizeIfResolved(ctx, r, sess); err != nil {
				return err
			}
			if rec == nil {
				return ErrPendingGrades
			}
			return nil
		default:
			return ErrSessionNotSubmitted
		}
	})
	if err != nil {
		return nil, storageErr("finalize session", err)
	}
	return rec, nil
}

// finalizeIfResolved writes the score record and moves a submitted session
// to reviewed once no answer is pending. It returns nil when the session is
// not ready.
func (m *Manager) finalizeIfResolved(ctx context.Context, r Repository, sess *model.ExamSession) (*model.ScoreRecord, error) {
	if sess.Status != model.StatusSubmitted {
		return nil, nil
	}
	answers, err := r.ListAnswers(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range answers {
		if !a.Resolved() {
			return nil, nil
		}
	}

	rec, err := m.scorer.Finalize(*sess, answers)
	if err != nil {
		return nil, err
	}
	if rec.ID, err = r.InsertScore(ctx, rec); err != nil {
		return nil, err
	}
	ok, err := r.CompareAndSetStatus(ctx, sess.ID, model.StatusSubmitted, model.StatusReviewed, m.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session %d left submitted state during finalize", sess.ID)
	}
	slog.Info("finalized exam session", "session_id", sess.ID,
		"total", rec.TotalQuestions, "correct", rec.CorrectAnswers, "accuracy", rec.Accuracy)
	return &rec, nil
}

// SuggestGrades asks the advisor for a grade on every pending essay answer
// of a submitted session and stores the suggestions. It returns the number
// of suggestions stored. The advisor is called without holding the session
// lock.
func (m *Manager) SuggestGrades(ctx context.Context, sessionID int64) (int, error) {
	if m.advisor == nil {
		return 0, nil
	}
	view, err := m.Session(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if view.Session.Status != model.StatusSubmitted {
		return 0, ErrSessionNotSubmitted
	}

	stored := 0
	for _, av := range view.PendingAnswers() {
		score, feedback, err := m.advisor.SuggestGrade(ctx, av.Question, av.Answer.Value)
		if err != nil {
			slog.Error("grade suggestion failed", "session_id", sessionID, "answer_id", av.Answer.ID, "error", err)
			continue
		}
		score = min(max(score, 0), 1)

		unlock := m.locks.Lock(sessionID)
		cur, err := m.store.GetAnswer(ctx, av.Answer.ID)
		if err == nil && cur != nil && !cur.Resolved() {
			err = m.store.SetSuggestion(ctx, cur.ID, score, feedback)
			if err == nil {
				stored++
			}
		}
		unlock()
		if err != nil {
			return stored, storageErr("store suggestion", err)
		}
	}
	return stored, nil
}

// Session returns the session with its planned questions, answers and score
// record.
func (m *Manager) Session(ctx context.Context, sessionID int64) (*model.SessionView, error) {
	sess, err := m.session(ctx, m.store, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := m.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, storageErr("list answers", err)
	}

	view := &model.SessionView{Session: *sess}
	byID := make(map[int64]*model.Question, len(sess.QuestionIDs))
	for i, id := range sess.QuestionIDs {
		q, err := m.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		byID[id] = q
		view.Questions = append(view.Questions, model.PlannedQuestion{
			Position: i + 1,
			Question: *q,
			Choices:  q.Choices(),
		})
	}
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			if q, err = m.lookup(ctx, a.QuestionID); err != nil {
				return nil, err
			}
		}
		view.Answers = append(view.Answers, model.AnswerView{Answer: a, Question: *q})
	}
	if view.Score, err = m.store.GetScore(ctx, sessionID); err != nil {
		return nil, storageErr("get score", err)
	}
	return view, nil
}

// Score returns the score record of a reviewed session.
func (m *Manager) Score(ctx context.Context, sessionID int64) (*model.ScoreRecord, error) {
	if _, err := m.session(ctx, m.store, sessionID); err != nil {
		return nil, err
	}
	rec, err := m.store.GetScore(ctx, sessionID)
	if err != nil {
		return nil, storageErr("get score", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("score for session %d: %w", sessionID, ErrNotFound)
	}
	return rec, nil
}

// ListSessions returns a user's sessions, newest first.
func (m *Manager) ListSessions(ctx context.Context, userID int64) ([]model.ExamSession, error) {
	sessions, err := m.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	return sessions, nil
}

// PendingReviews returns submitted sessions that still wait for manual
// grades.
func (m *Manager) PendingReviews(ctx context.Context) ([]model.SessionView, error) {
	sessions, err := m.store.ListSessionsByStatus(ctx, model.StatusSubmitted)
	if err != nil {
		return nil, storageErr("list submitted sessions", err)
	}
	var views []model.SessionView
	for _, s := range sessions {
		view, err := m.Session(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// Progress returns the per-category statistics of a user.
func (m *Manager) Progress(ctx context.Context, userID int64) ([]model.ProgressStat, error) {
	stats, err := m.store.ListProgress(ctx, userID)
	if err != nil {
		return nil, storageErr("list progress", err)
	}
	return stats, nil
}

func (m *Manager) session(ctx context.Context, r Repository, id int64) (*model.ExamSession, error) {
	sess, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, storageErr("get session", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return sess, nil
}

func (m *Manager) lookup(ctx context.Context, id int64) (*model.Question, error) {
	q, err := m.questions.Lookup(ctx, id)
	if err != nil {
		return nil, storageErr("lookup question", err)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownQuestion, id)
	}
	return q, nil
}
