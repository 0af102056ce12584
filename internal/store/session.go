package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/testprep/internal/model"
)

const sessionColumns = `id, user_id, mode, category_filter, status, created_at, completed_at`

// InsertSession stores a new session together with its ordered question plan.
func (s *Store) InsertSession(ctx context.Context, sess model.ExamSession) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *Store) error {
		res, err := tx.q.ExecContext(ctx,
			`INSERT INTO exam_sessions (user_id, mode, category_filter, status, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			sess.UserID, sess.Mode, sess.CategoryFilter, sess.Status, sess.CreatedAt,
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		for pos, qid := range sess.QuestionIDs {
			if _, err := tx.q.ExecContext(ctx,
				`INSERT INTO session_questions (session_id, position, question_id) VALUES (?, ?, ?)`,
				id, pos, qid,
			); err != nil {
				return fmt.Errorf("add question %d: %w", qid, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetSession returns a session with its question plan, or nil if not found.
func (s *Store) GetSession(ctx context.Context, id int64) (*model.ExamSession, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM exam_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.QuestionIDs, err = s.sessionQuestionIDs(ctx, id); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessionsByUser returns a user's sessions, newest first.
func (s *Store) ListSessionsByUser(ctx context.Context, userID int64) ([]model.ExamSession, error) {
	return s.listSessions(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE user_id = ? ORDER BY id DESC`, userID)
}

// ListSessionsByStatus returns sessions in the given status, oldest first.
func (s *Store) ListSessionsByStatus(ctx context.Context, status model.SessionStatus) ([]model.ExamSession, error) {
	return s.listSessions(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE status = ? ORDER BY id`, status)
}

// ListAllSessions returns every session, oldest first.
func (s *Store) ListAllSessions(ctx context.Context) ([]model.ExamSession, error) {
	return s.listSessions(ctx, `SELECT `+sessionColumns+` FROM exam_sessions ORDER BY id`)
}

func (s *Store) listSessions(ctx context.Context, query string, args ...any) ([]model.ExamSession, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var sessions []model.ExamSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The plans are loaded after the cursor is closed; the pool has a
	// single connection.
	for i := range sessions {
		if sessions[i].QuestionIDs, err = s.sessionQuestionIDs(ctx, sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (s *Store) sessionQuestionIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT question_id FROM session_questions WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CompareAndSetStatus moves a session from one status to the next only if
// it is still in the expected status. Entering submitted stamps completed_at.
func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, from, next model.SessionStatus, at time.Time) (bool, error) {
	var res sql.Result
	var err error
	if next == model.StatusSubmitted {
		res, err = s.q.ExecContext(ctx,
			`UPDATE exam_sessions SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
			next, at, id, from)
	} else {
		res, err = s.q.ExecContext(ctx,
			`UPDATE exam_sessions SET status = ? WHERE id = ? AND status = ?`,
			next, id, from)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanSession(sc scanner) (*model.ExamSession, error) {
	var sess model.ExamSession
	if err := sc.Scan(&sess.ID, &sess.UserID, &sess.Mode, &sess.CategoryFilter,
		&sess.Status, &sess.CreatedAt, &sess.CompletedAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

const answerColumns = `a.id, a.session_id, a.question_id, a.value, a.is_correct, a.score,
	a.answered_at, a.graded_at, a.reviewed_by, a.suggested_score, a.suggestion_feedback`

// UpsertAnswer inserts or replaces the answer for (session, question) and
// returns its ID. A stored grade suggestion survives the replacement.
func (s *Store) UpsertAnswer(ctx context.Context, a model.Answer) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO answers (session_id, question_id, value, is_correct, score, answered_at, graded_at, reviewed_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, question_id) DO UPDATE SET
			value = excluded.value,
			is_correct = excluded.is_correct,
			score = excluded.score,
			answered_at = excluded.answered_at,
			graded_at = excluded.graded_at,
			reviewed_by = excluded.reviewed_by
		 RETURNING id`,
		a.SessionID, a.QuestionID, a.Value, a.IsCorrect, a.Score, a.AnsweredAt, a.GradedAt, a.ReviewedBy,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetAnswer returns an answer by ID, or nil if not found.
func (s *Store) GetAnswer(ctx context.Context, id int64) (*model.Answer, error) {
	return s.getAnswer(ctx, `SELECT `+answerColumns+` FROM answers a WHERE a.id = ?`, id)
}

// GetAnswerByQuestion returns the answer to a question of a session, or nil.
func (s *Store) GetAnswerByQuestion(ctx context.Context, sessionID, questionID int64) (*model.Answer, error) {
	return s.getAnswer(ctx,
		`SELECT `+answerColumns+` FROM answers a WHERE a.session_id = ? AND a.question_id = ?`,
		sessionID, questionID)
}

func (s *Store) getAnswer(ctx context.Context, query string, args ...any) (*model.Answer, error) {
	a, err := scanAnswer(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnswers returns a session's answers in question plan order.
func (s *Store) ListAnswers(ctx context.Context, sessionID int64) ([]model.Answer, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+answerColumns+`
		 FROM answers a
		 LEFT JOIN session_questions sq ON sq.session_id = a.session_id AND sq.question_id = a.question_id
		 WHERE a.session_id = ?
		 ORDER BY sq.position, a.id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// SetSuggestion stores an advisory grade on an answer.
func (s *Store) SetSuggestion(ctx context.Context, answerID int64, score float64, feedback string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE answers SET suggested_score = ?, suggestion_feedback = ? WHERE id = ?`,
		score, feedback, answerID)
	return err
}

func scanAnswer(sc scanner) (*model.Answer, error) {
	var a model.Answer
	if err := sc.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.Value, &a.IsCorrect, &a.Score,
		&a.AnsweredAt, &a.GradedAt, &a.ReviewedBy, &a.SuggestedScore, &a.SuggestionFeedback); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertScore stores the score record of a session. A session has at most
// one record.
func (s *Store) InsertScore(ctx context.Context, rec model.ScoreRecord) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO score_records (session_id, total_questions, correct_answers, accuracy, unanswered, graded_at, reviewed_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TotalQuestions, rec.CorrectAnswers, rec.Accuracy, rec.Unanswered, rec.GradedAt, rec.ReviewedBy,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetScore returns the score record of a session, or nil.
func (s *Store) GetScore(ctx context.Context, sessionID int64) (*model.ScoreRecord, error) {
	var rec model.ScoreRecord
	err := s.q.QueryRowContext(ctx,
		`SELECT id, session_id, total_questions, correct_answers, accuracy, unanswered, graded_at, reviewed_by
		 FROM score_records WHERE session_id = ?`, sessionID,
	).Scan(&rec.ID, &rec.SessionID, &rec.TotalQuestions, &rec.CorrectAnswers, &rec.Accuracy,
		&rec.Unanswered, &rec.GradedAt, &rec.ReviewedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
