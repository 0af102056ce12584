package exam

import (
	"fmt"
	"time"

	"github.com/pavelanni/testprep/internal/model"
)

// DefaultPassThreshold is the essay score at or above which a manual grade
// without an explicit verdict counts as correct.
const DefaultPassThreshold = 0.5

// ValidatePassThreshold rejects thresholds outside [0, 1].
func ValidatePassThreshold(t float64) error {
	if !(t >= 0 && t <= 1) {
		return fmt.Errorf("%w: pass threshold %v is outside [0, 1]", ErrInvalidScore, t)
	}
	return nil
}

// Scorer computes final score records.
type Scorer struct {
	PassThreshold float64
}

// Passes reports whether a fractional essay score counts as correct.
func (s Scorer) Passes(score float64) bool {
	return score >= s.PassThreshold
}

// Finalize builds the score record for a session whose answers are all
// resolved. It is a pure function of its inputs: GradedAt is the latest
// resolution time among the answers, falling back to the session's
// completion time.
func (s Scorer) Finalize(sess model.ExamSession, answers []model.Answer) (model.ScoreRecord, error) {
	rec := model.ScoreRecord{
		SessionID:      sess.ID,
		TotalQuestions: len(answers),
	}
	if sess.CompletedAt != nil {
		rec.GradedAt = *sess.CompletedAt
	}

	answered := make(map[int64]bool, len(answers))
	var lastReview time.Time
	for _, a := range answers {
		if !a.Resolved() {
			return model.ScoreRecord{}, ErrPendingGrades
		}
		answered[a.QuestionID] = true
		if a.Correct() {
			rec.CorrectAnswers++
		}
		if a.GradedAt != nil && a.GradedAt.After(rec.GradedAt) {
			rec.GradedAt = *a.GradedAt
		}
		if a.ReviewedBy != nil && a.GradedAt != nil && !a.GradedAt.Before(lastReview) {
			lastReview = *a.GradedAt
			reviewer := *a.ReviewedBy
			rec.ReviewedBy = &reviewer
		}
	}

	for _, qID := range sess.QuestionIDs {
		if !answered[qID] {
			rec.Unanswered++
		}
	}

	if rec.TotalQuestions > 0 {
		rec.Accuracy = float64(rec.CorrectAnswers) / float64(rec.TotalQuestions)
	}
	return rec, nil
}
