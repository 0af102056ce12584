package exam

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/pavelanni/testprep/internal/model"
)

// Grade is the outcome of grading one submitted value.
// Pending grades carry neither correctness nor score.
type Grade struct {
	Pending bool
	Correct bool
	Score   float64
}

// Grader decides correctness for objective question types.
type Grader struct{}

// Grade compares value against the question's correct answer. Essay prompts
// are always pending.
func (Grader) Grade(q model.Question, value string) Grade {
	if q.Type.ManualGrading() {
		return Grade{Pending: true}
	}
	if normalize(value) == normalize(q.CorrectAnswer) {
		return Grade{Correct: true, Score: 1}
	}
	return Grade{Correct: false, Score: 0}
}

// normalize folds case and trims surrounding space. A Caser is stateful,
// so a fresh one is used per call.
func normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// apply copies the grade into a.
func (g Grade) apply(a *model.Answer) {
	if g.Pending {
		a.IsCorrect = nil
		a.Score = nil
		return
	}
	correct, score := g.Correct, g.Score
	a.IsCorrect = &correct
	a.Score = &score
}
