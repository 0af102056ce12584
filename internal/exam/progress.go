package exam

import (
	"context"
)

// Aggregator folds resolved answers into per-user, per-category statistics.
// Every call is a single atomic increment in the repository.
type Aggregator struct{}

// Apply records one resolved answer.
func (Aggregator) Apply(ctx context.Context, r ProgressRepository, userID int64, category string, wasCorrect bool) error {
	return r.AddProgress(ctx, userID, category, 1, boolDelta(wasCorrect))
}

// Revert undoes a previous Apply with the same arguments.
func (Aggregator) Revert(ctx context.Context, r ProgressRepository, userID int64, category string, wasCorrect bool) error {
	return r.AddProgress(ctx, userID, category, -1, -boolDelta(wasCorrect))
}

func boolDelta(b bool) int {
	if b {
		return 1
	}
	return 0
}
