package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/testprep/internal/model"
)

// ExportAllSessions builds export-ready results for every session, oldest
// first. SessionNumber counts a student's sessions from one.
func (s *Store) ExportAllSessions(ctx context.Context) ([]model.StudentResult, error) {
	sessions, err := s.ListAllSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessionCount := make(map[int64]int)
	users := make(map[int64]*model.User)

	var results []model.StudentResult
	for _, sess := range sessions {
		sessionCount[sess.UserID]++

		user, ok := users[sess.UserID]
		if !ok {
			if user, err = s.GetUserByID(ctx, sess.UserID); err != nil {
				return nil, fmt.Errorf("get user %d: %w", sess.UserID, err)
			}
			users[sess.UserID] = user
		}

		answers, err := s.ListAnswers(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list answers of session %d: %w", sess.ID, err)
		}
		byQuestion := make(map[int64]model.Answer, len(answers))
		for _, a := range answers {
			byQuestion[a.QuestionID] = a
		}

		var questions []model.QuestionResult
		for _, qid := range sess.QuestionIDs {
			q, err := s.Lookup(ctx, qid)
			if err != nil {
				return nil, fmt.Errorf("get question %d: %w", qid, err)
			}
			qr := model.QuestionResult{QuestionID: qid}
			if q != nil {
				qr.Text = q.Text
				qr.Category = q.Category
				qr.Type = q.Type
				qr.Difficulty = q.Difficulty
			}
			if a, ok := byQuestion[qid]; ok {
				qr.Answer = a.Value
				qr.IsCorrect = a.IsCorrect
				qr.Score = a.Score
				qr.ReviewedBy = a.ReviewedBy
			}
			questions = append(questions, qr)
		}

		score, err := s.GetScore(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("get score of session %d: %w", sess.ID, err)
		}

		r := model.StudentResult{
			SessionID:      sess.ID,
			SessionNumber:  sessionCount[sess.UserID],
			Mode:           sess.Mode,
			CategoryFilter: sess.CategoryFilter,
			Status:         sess.Status,
			CreatedAt:      sess.CreatedAt,
			CompletedAt:    sess.CompletedAt,
			Questions:      questions,
			Score:          score,
		}
		if user != nil {
			r.Username = user.Username
			r.DisplayName = user.DisplayName
		}
		results = append(results, r)
	}

	return results, nil
}
