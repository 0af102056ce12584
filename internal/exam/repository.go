package exam

import (
	"context"
	"time"

	"github.com/pavelanni/testprep/internal/model"
)

// QuestionSource is the read-only question bank.
// Lookup returns nil and no error when the question does not exist.
type QuestionSource interface {
	Lookup(ctx context.Context, questionID int64) (*model.Question, error)
}

// ProgressRepository applies deltas to per-user, per-category statistics.
// AddProgress must be atomic with respect to other updates of the same
// (userID, category) row.
type ProgressRepository interface {
	AddProgress(ctx context.Context, userID int64, category string, deltaTotal, deltaCorrect int) error
	ListProgress(ctx context.Context, userID int64) ([]model.ProgressStat, error)
}

// Repository is the narrow persistence contract used by the Manager.
// Getters return nil and no error when the row does not exist.
type Repository interface {
	ProgressRepository

	InsertSession(ctx context.Context, sess model.ExamSession) (int64, error)
	GetSession(ctx context.Context, id int64) (*model.ExamSession, error)
	ListSessionsByUser(ctx context.Context, userID int64) ([]model.ExamSession, error)
	ListSessionsByStatus(ctx context.Context, status model.SessionStatus) ([]model.ExamSession, error)
	// CompareAndSetStatus moves the session to next only if it is currently
	// in from. Moving to submitted stamps the completion time with at. It
	// reports whether the row was changed.
	CompareAndSetStatus(ctx context.Context, id int64, from, next model.SessionStatus, at time.Time) (bool, error)

	UpsertAnswer(ctx context.Context, a model.Answer) (int64, error)
	GetAnswer(ctx context.Context, id int64) (*model.Answer, error)
	GetAnswerByQuestion(ctx context.Context, sessionID, questionID int64) (*model.Answer, error)
	ListAnswers(ctx context.Context, sessionID int64) ([]model.Answer, error)
	SetSuggestion(ctx context.Context, answerID int64, score float64, feedback string) error

	InsertScore(ctx context.Context, rec model.ScoreRecord) (int64, error)
	GetScore(ctx context.Context, sessionID int64) (*model.ScoreRecord, error)
}

// Store is a Repository that can run a group of calls in one transaction.
// The Repository passed to fn must be used for every call inside it.
type Store interface {
	Repository
	Atomic(ctx context.Context, fn func(Repository) error) error
}
