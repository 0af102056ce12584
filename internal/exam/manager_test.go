package exam

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/testprep/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	qMC     int64 = 1
	qEssay  int64 = 2
	qFill   int64 = 3
	qEssay2 int64 = 4
	student int64 = 10
	teacher int64 = 20
)

func testQuestions() []model.Question {
	return []model.Question{
		{ID: qMC, Category: "grammar", Type: model.QuestionMultipleChoice, CorrectAnswer: "B", Difficulty: 1},
		{ID: qEssay, Category: "writing", Type: model.QuestionEssay, Difficulty: 2},
		{ID: qFill, Category: "vocabulary", Type: model.QuestionFillInBlank, CorrectAnswer: "apple", Difficulty: 1},
		{ID: qEssay2, Category: "writing", Type: model.QuestionEssay, Difficulty: 3},
	}
}

func newTestManager(t *testing.T) (*Manager, *memStore) {
	t.Helper()
	m := newMemStore(testQuestions()...)
	mgr, err := NewManager(m, m, Options{Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, m
}

func createSession(t *testing.T, mgr *Manager, ids ...int64) *model.ExamSession {
	t.Helper()
	sess, err := mgr.CreateSession(context.Background(), student, model.ModeExam, "", ids)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func progressFor(t *testing.T, mgr *Manager, category string) model.ProgressStat {
	t.Helper()
	stats, err := mgr.Progress(context.Background(), student)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	for _, st := range stats {
		if st.Category == category {
			return st
		}
	}
	return model.ProgressStat{UserID: student, Category: category}
}

func ptr[T any](v T) *T { return &v }

func TestCreateSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mode    model.SessionMode
		ids     []int64
		wantErr error
	}{
		{"exam", model.ModeExam, []int64{qMC, qEssay}, nil},
		{"practice", model.ModePractice, []int64{qMC}, nil},
		{"targeted", model.ModeTargeted, []int64{qFill}, nil},
		{"bad mode", model.SessionMode("quiz"), []int64{qMC}, ErrInvalidMode},
		{"empty mode", model.SessionMode(""), []int64{qMC}, ErrInvalidMode},
		{"no questions", model.ModeExam, nil, ErrEmptyQuestionSet},
		{"unknown question", model.ModeExam, []int64{qMC, 999}, ErrUnknownQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := mgr.CreateSession(ctx, student, tt.mode, "grammar", tt.ids)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			if sess.Status != model.StatusInProgress {
				t.Errorf("expected in_progress, got %q", sess.Status)
			}
			if sess.CompletedAt != nil {
				t.Error("expected nil completed_at")
			}
			if sess.CategoryFilter != "grammar" {
				t.Errorf("expected category filter kept, got %q", sess.CategoryFilter)
			}
		})
	}

	t.Run("duplicates collapse", func(t *testing.T) {
		sess := createSession(t, mgr, qMC, qFill, qMC)
		if len(sess.QuestionIDs) != 2 || sess.QuestionIDs[0] != qMC || sess.QuestionIDs[1] != qFill {
			t.Errorf("expected [1 3], got %v", sess.QuestionIDs)
		}
	})
}

func TestSubmitAnswerGrading(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC, qEssay, qFill)

	a, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "b")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !a.Correct() || a.Score == nil || *a.Score != 1 {
		t.Errorf("expected correct answer with score 1, got %+v", a)
	}

	a, err = mgr.SubmitAnswer(ctx, sess.ID, qEssay, "free text")
	if err != nil {
		t.Fatalf("SubmitAnswer essay: %v", err)
	}
	if a.Resolved() || a.Score != nil {
		t.Errorf("expected pending essay answer, got %+v", a)
	}

	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qEssay2, "x"); !errors.Is(err, ErrQuestionNotInSession) {
		t.Errorf("expected ErrQuestionNotInSession, got %v", err)
	}
	if _, err := mgr.SubmitAnswer(ctx, 999, qMC, "B"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if got := progressFor(t, mgr, "grammar"); got.TotalAttempts != 1 || got.CorrectAttempts != 1 {
		t.Errorf("expected grammar 1/1, got %d/%d", got.CorrectAttempts, got.TotalAttempts)
	}
	if got := progressFor(t, mgr, "writing"); got.TotalAttempts != 0 {
		t.Errorf("pending essay must not count, got total %d", got.TotalAttempts)
	}
}

func TestSubmitAnswerUnknownQuestion(t *testing.T) {
	mgr, m := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC)

	tests := []struct {
		name       string
		questionID int64
		want       error
	}{
		{"not in bank", 9999, ErrUnknownQuestion},
		{"in bank, not planned", qFill, ErrQuestionNotInSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mgr.SubmitAnswer(ctx, sess.ID, tt.questionID, "B"); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("removed from bank", func(t *testing.T) {
		delete(m.questions, qMC)
		if _, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "B"); !errors.Is(err, ErrUnknownQuestion) {
			t.Errorf("expected ErrUnknownQuestion, got %v", err)
		}
	})
}

func TestResubmissionDoesNotDoubleCount(t *testing.T) {
	mgr, m := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC)

	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "A"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if got := progressFor(t, mgr, "grammar"); got.TotalAttempts != 1 || got.CorrectAttempts != 0 {
		t.Fatalf("expected 0/1, got %d/%d", got.CorrectAttempts, got.TotalAttempts)
	}

	a, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "B")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !a.Correct() {
		t.Error("expected resubmitted answer to be correct")
	}
	if got := progressFor(t, mgr, "grammar"); got.TotalAttempts != 1 || got.CorrectAttempts != 1 {
		t.Errorf("expected 1/1, got %d/%d", got.CorrectAttempts, got.TotalAttempts)
	}

	for i := range 5 {
		value := "A"
		if i%2 == 0 {
			value = "B"
		}
		if _, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, value); err != nil {
			t.Fatalf("resubmit %d: %v", i, err)
		}
	}
	if got := progressFor(t, mgr, "grammar"); got.TotalAttempts != 1 || got.CorrectAttempts != 1 {
		t.Errorf("expected 1/1 after churn, got %d/%d", got.CorrectAttempts, got.TotalAttempts)
	}

	answers, _ := m.ListAnswers(ctx, sess.ID)
	if len(answers) != 1 {
		t.Errorf("expected one answer row, got %d", len(answers))
	}
}

func TestAnswersOnlyWhileInProgress(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC, qEssay)

	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qEssay, "essay"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if _, err := mgr.Submit(ctx, sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "B"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("submitted: expected ErrSessionNotActive, got %v", err)
	}

	view, _ := mgr.Session(ctx, sess.ID)
	if _, err := mgr.ApplyManualGrade(ctx, ManualGrade{
		SessionID: sess.ID, AnswerID: view.Answers[0].Answer.ID, Score: 1, ReviewerID: teacher,
	}); err != nil {
		t.Fatalf("ApplyManualGrade: %v", err)
	}
	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "B"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("reviewed: expected ErrSessionNotActive, got %v", err)
	}
}

func TestExamScenario(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC, qEssay)

	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "B"); err != nil {
		t.Fatalf("SubmitAnswer Q1: %v", err)
	}
	essay, err := mgr.SubmitAnswer(ctx, sess.ID, qEssay, "free text")
	if err != nil {
		t.Fatalf("SubmitAnswer Q2: %v", err)
	}

	got, err := mgr.Submit(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != model.StatusSubmitted {
		t.Fatalf("expected submitted, got %q", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if _, err := mgr.Score(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no score before review, got %v", err)
	}

	graded, err := mgr.ApplyManualGrade(ctx, ManualGrade{
		SessionID: sess.ID, AnswerID: essay.ID, IsCorrect: ptr(true), Score: 0.8, ReviewerID: teacher,
	})
	if err != nil {
		t.Fatalf("ApplyManualGrade: %v", err)
	}
	if !graded.Correct() || *graded.Score != 0.8 {
		t.Errorf("expected correct essay with score 0.8, got %+v", graded)
	}

	view, err := mgr.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if view.Session.Status != model.StatusReviewed {
		t.Fatalf("expected reviewed, got %q", view.Session.Status)
	}
	rec := view.Score
	if rec == nil {
		t.Fatal("expected score record")
	}
	if rec.TotalQuestions != 2 || rec.CorrectAnswers != 2 || rec.Accuracy != 1.0 {
		t.Errorf("expected 2/2 accuracy 1.0, got %+v", rec)
	}
	if rec.ReviewedBy == nil || *rec.ReviewedBy != teacher {
		t.Errorf("expected reviewer %d, got %v", teacher, rec.ReviewedBy)
	}

	if got := progressFor(t, mgr, "writing"); got.TotalAttempts != 1 || got.CorrectAttempts != 1 {
		t.Errorf("expected writing 1/1, got %d/%d", got.CorrectAttempts, got.TotalAttempts)
	}
}

func TestSubmitTwice(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC, qEssay)
	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qEssay, "text"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	first, err := mgr.Submit(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := mgr.Submit(ctx, sess.ID); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	view, _ := mgr.Session(ctx, sess.ID)
	if view.Session.Status != first.Status {
		t.Errorf("second submit changed status from %q to %q", first.Status, view.Session.Status)
	}
}

func TestSubmitFinalizesWhenResolved(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	t.Run("objective only", func(t *testing.T) {
		sess := createSession(t, mgr, qMC, qFill)
		if _, err := mgr.SubmitAnswers(ctx, sess.ID, []AnswerInput{
			{QuestionID: qMC, Value: "B"},
			{QuestionID: qFill, Value: "pear"},
		}); err != nil {
			t.Fatalf("SubmitAnswers: %v", err)
		}
		got, err := mgr.Submit(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if got.Status != model.StatusReviewed {
			t.Fatalf("expected reviewed, got %q", got.Status)
		}
		rec, err := mgr.Score(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if rec.Accuracy != 0.5 || rec.ReviewedBy != nil {
			t.Errorf("expected accuracy 0.5 without reviewer, got %+v", rec)
		}
		if _, err := mgr.Submit(ctx, sess.ID); !errors.Is(err, ErrAlreadySubmitted) {
			t.Errorf("expected ErrAlreadySubmitted on reviewed session, got %v", err)
		}
	})

	t.Run("no answers", func(t *testing.T) {
		sess := createSession(t, mgr, qMC)
		got, err := mgr.Submit(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if got.Status != model.StatusReviewed {
			t.Fatalf("expected reviewed, got %q", got.Status)
		}
		rec, _ := mgr.Score(ctx, sess.ID)
		if rec.TotalQuestions != 0 || rec.Accuracy != 0 || rec.Unanswered != 1 {
			t.Errorf("expected empty record with 1 unanswered, got %+v", rec)
		}
	})
}

func TestFinalizeIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC, qEssay)

	if _, err := mgr.Finalize(ctx, sess.ID); !errors.Is(err, ErrSessionNotSubmitted) {
		t.Fatalf("in progress: expected ErrSessionNotSubmitted, got %v", err)
	}

	essay, _ := mgr.SubmitAnswer(ctx, sess.ID, qEssay, "text")
	if _, err := mgr.Submit(ctx, sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := mgr.Finalize(ctx, sess.ID); !errors.Is(err, ErrPendingGrades) {
		t.Fatalf("pending: expected ErrPendingGrades, got %v", err)
	}

	if _, err := mgr.ApplyManualGrade(ctx, ManualGrade{
		SessionID: sess.ID, AnswerID: essay.ID, Score: 0.3, ReviewerID: teacher,
	}); err != nil {
		t.Fatalf("ApplyManualGrade: %v", err)
	}

	first, err := mgr.Finalize(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	second, err := mgr.Finalize(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Finalize again: %v", err)
	}
	if first.ID != second.ID || first.CorrectAnswers != second.CorrectAnswers ||
		first.Accuracy != second.Accuracy || !first.GradedAt.Equal(second.GradedAt) ||
		*first.ReviewedBy != *second.ReviewedBy {
		t.Errorf("expected identical records, got %+v and %+v", first, second)
	}
	if first.CorrectAnswers != 0 || first.TotalQuestions != 1 {
		t.Errorf("score 0.3 below threshold should be incorrect, got %+v", first)
	}
}

func TestApplyManualGradeGuards(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC, qEssay, qEssay2)

	mc, _ := mgr.SubmitAnswer(ctx, sess.ID, qMC, "B")
	essay, _ := mgr.SubmitAnswer(ctx, sess.ID, qEssay, "text")
	essay2, _ := mgr.SubmitAnswer(ctx, sess.ID, qEssay2, "more text")

	grade := func(answerID int64, score float64) error {
		_, err := mgr.ApplyManualGrade(ctx, ManualGrade{
			SessionID: sess.ID, AnswerID: answerID, Score: score, ReviewerID: teacher,
		})
		return err
	}

	if err := grade(essay.ID, 1); !errors.Is(err, ErrSessionNotSubmitted) {
		t.Errorf("in progress: expected ErrSessionNotSubmitted, got %v", err)
	}
	if _, err := mgr.Submit(ctx, sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := grade(mc.ID, 1); !errors.Is(err, ErrNotPendingGrade) {
		t.Errorf("objective: expected ErrNotPendingGrade, got %v", err)
	}
	for _, bad := range []float64{1.5, -0.1, math.NaN(), math.Inf(1)} {
		if err := grade(essay.ID, bad); !errors.Is(err, ErrInvalidScore) {
			t.Errorf("score %v: expected ErrInvalidScore, got %v", bad, err)
		}
	}
	if err := grade(999, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := grade(essay.ID, 0.9); err != nil {
		t.Fatalf("grade essay: %v", err)
	}
	before := progressFor(t, mgr, "writing")
	if err := grade(essay.ID, 0.1); !errors.Is(err, ErrNotPendingGrade) {
		t.Errorf("regrade: expected ErrNotPendingGrade, got %v", err)
	}
	if after := progressFor(t, mgr, "writing"); after != before {
		t.Errorf("regrade changed progress from %+v to %+v", before, after)
	}

	if err := grade(essay2.ID, 0.5); err != nil {
		t.Fatalf("grade essay2: %v", err)
	}
	if err := grade(essay2.ID, 0.5); !errors.Is(err, ErrNotPendingGrade) {
		t.Errorf("reviewed: expected ErrNotPendingGrade, got %v", err)
	}
	if got := progressFor(t, mgr, "writing"); got.TotalAttempts != 2 || got.CorrectAttempts != 2 {
		t.Errorf("expected writing 2/2, got %d/%d", got.CorrectAttempts, got.TotalAttempts)
	}
}

func TestApplyManualGradeOtherSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	a := createSession(t, mgr, qEssay)
	b := createSession(t, mgr, qEssay)
	essay, _ := mgr.SubmitAnswer(ctx, a.ID, qEssay, "text")
	_, _ = mgr.Submit(ctx, b.ID)

	_, err := mgr.ApplyManualGrade(ctx, ManualGrade{SessionID: b.ID, AnswerID: essay.ID, Score: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign answer, got %v", err)
	}
}

func TestStorageFailureRollsBack(t *testing.T) {
	mgr, m := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qMC)
	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "A"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	m.failWrites = errors.New("disk full")
	_, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "B")
	if !errors.Is(err, ErrStorageFailure) || !Retryable(err) {
		t.Fatalf("expected retryable ErrStorageFailure, got %v", err)
	}
	if got := progressFor(t, mgr, "grammar"); got.TotalAttempts != 1 || got.CorrectAttempts != 0 {
		t.Errorf("expected progress rolled back to 0/1, got %d/%d", got.CorrectAttempts, got.TotalAttempts)
	}

	m.failWrites = nil
	if _, err := mgr.SubmitAnswer(ctx, sess.ID, qMC, "B"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := progressFor(t, mgr, "grammar"); got.TotalAttempts != 1 || got.CorrectAttempts != 1 {
		t.Errorf("expected 1/1 after retry, got %d/%d", got.CorrectAttempts, got.TotalAttempts)
	}
	if Retryable(ErrAlreadySubmitted) {
		t.Error("domain errors must not be retryable")
	}
}

func TestConcurrentGrading(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	sess := createSession(t, mgr, qEssay, qEssay2)
	e1, _ := mgr.SubmitAnswer(ctx, sess.ID, qEssay, "one")
	e2, _ := mgr.SubmitAnswer(ctx, sess.ID, qEssay2, "two")
	if _, err := mgr.Submit(ctx, sess.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for _, id := range []int64{e1.ID, e2.ID, e1.ID, e2.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.ApplyManualGrade(ctx, ManualGrade{SessionID: sess.ID, AnswerID: id, Score: 1, ReviewerID: teacher})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, pending int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNotPendingGrade):
			pending++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 2 || pending != 2 {
		t.Errorf("expected 2 grades and 2 rejections, got %d and %d", ok, pending)
	}
	if got := progressFor(t, mgr, "writing"); got.TotalAttempts != 2 {
		t.Errorf("expected writing total 2, got %d", got.TotalAttempts)
	}
	rec, err := mgr.Score(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec.CorrectAnswers != 2 {
		t.Errorf("expected 2 correct, got %d", rec.CorrectAnswers)
	}
}

type stubAdvisor struct {
	calls int
}

func (s *stubAdvisor) SuggestGrade(_ context.Context, q model.Question, answer string) (float64, string, error) {
	s.calls++
	return 1.7, "looks fine: " + answer, nil
}

func TestSuggestGrades(t *testing.T) {
	m := newMemStore(testQuestions()...)
	adv := &stubAdvisor{}
	mgr, err := NewManager(m, m, Options{Advisor: adv, Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	sess := createSession(t, mgr, qMC, qEssay)
	_, _ = mgr.SubmitAnswer(ctx, sess.ID, qMC, "B")
	essay, _ := mgr.SubmitAnswer(ctx, sess.ID, qEssay, "text")

	if _, err := mgr.SuggestGrades(ctx, sess.ID); !errors.Is(err, ErrSessionNotSubmitted) {
		t.Fatalf("expected ErrSessionNotSubmitted, got %v", err)
	}
	_, _ = mgr.Submit(ctx, sess.ID)

	n, err := mgr.SuggestGrades(ctx, sess.ID)
	if err != nil {
		t.Fatalf("SuggestGrades: %v", err)
	}
	if n != 1 || adv.calls != 1 {
		t.Errorf("expected one suggestion, got %d (calls %d)", n, adv.calls)
	}

	a, _ := m.GetAnswer(ctx, essay.ID)
	if a.Resolved() {
		t.Error("suggestion must not resolve the answer")
	}
	if a.SuggestedScore == nil || *a.SuggestedScore != 1 {
		t.Errorf("expected suggestion clamped to 1, got %v", a.SuggestedScore)
	}
	view, _ := mgr.Session(ctx, sess.ID)
	if view.Session.Status != model.StatusSubmitted {
		t.Errorf("expected session still submitted, got %q", view.Session.Status)
	}
}

func TestSessionListsPlannedQuestions(t *testing.T) {
	mgr, m := newTestManager(t)
	ctx := context.Background()
	mc := m.questions[qMC]
	mc.Distractors = []string{"C", "A"}
	m.questions[qMC] = mc

	sess := createSession(t, mgr, qEssay, qMC)
	view, err := mgr.Session(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(view.Answers) != 0 {
		t.Errorf("expected no answers yet, got %d", len(view.Answers))
	}
	if len(view.Questions) != 2 {
		t.Fatalf("expected 2 planned questions, got %d", len(view.Questions))
	}
	first, second := view.Questions[0], view.Questions[1]
	if first.Position != 1 || first.Question.ID != qEssay || first.Choices != nil {
		t.Errorf("unexpected first question %+v", first)
	}
	if second.Position != 2 || second.Question.ID != qMC {
		t.Errorf("unexpected second question %+v", second)
	}
	if want := []string{"A", "B", "C"}; !slices.Equal(second.Choices, want) {
		t.Errorf("expected choices %v, got %v", want, second.Choices)
	}
}
