package store

import (
	"context"

	"github.com/pavelanni/testprep/internal/model"
)

// AddProgress applies attempt deltas to a user's category statistics in a
// single statement. Negative deltas that would drive a counter below zero
// violate the table's CHECK constraint and return an error.
func (s *Store) AddProgress(ctx context.Context, userID int64, category string, deltaTotal, deltaCorrect int) error {
	var accuracy float64
	if deltaTotal > 0 {
		accuracy = float64(deltaCorrect) / float64(deltaTotal)
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO progress_stats (user_id, category, total_attempts, correct_attempts, accuracy)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, category) DO UPDATE SET
			total_attempts = total_attempts + excluded.total_attempts,
			correct_attempts = correct_attempts + excluded.correct_attempts,
			accuracy = CASE
				WHEN total_attempts + excluded.total_attempts > 0
				THEN CAST(correct_attempts + excluded.correct_attempts AS REAL) / (total_attempts + excluded.total_attempts)
				ELSE 0
			END`,
		userID, category, deltaTotal, deltaCorrect, accuracy,
	)
	return err
}

// ListProgress returns a user's statistics ordered by category.
func (s *Store) ListProgress(ctx context.Context, userID int64) ([]model.ProgressStat, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT user_id, category, total_attempts, correct_attempts, accuracy
		 FROM progress_stats WHERE user_id = ? ORDER BY category`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats []model.ProgressStat
	for rows.Next() {
		var p model.ProgressStat
		if err := rows.Scan(&p.UserID, &p.Category, &p.TotalAttempts, &p.CorrectAttempts, &p.Accuracy); err != nil {
			return nil, err
		}
		stats = append(stats, p)
	}
	return stats, rows.Err()
}
