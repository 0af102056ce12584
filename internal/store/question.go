package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/testprep/internal/model"
)

const questionColumns = `id, category, type, difficulty, text, correct_answer, distractors, explanation`

// InsertQuestion adds a question to the bank and returns its ID.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	distractors, err := json.Marshal(nonNil(q.Distractors))
	if err != nil {
		return 0, fmt.Errorf("encode distractors: %w", err)
	}
	if q.Difficulty == 0 {
		q.Difficulty = 1
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO questions (category, type, difficulty, text, correct_answer, distractors, explanation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.Category, q.Type, q.Difficulty, q.Text, q.CorrectAnswer, string(distractors), q.Explanation,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Lookup returns a question by ID, or nil if it does not exist.
func (s *Store) Lookup(ctx context.Context, id int64) (*model.Question, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListQuestions returns all questions ordered by ID.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	return s.ListQuestionsFiltered(ctx, "", 0)
}

// ListQuestionsFiltered returns questions matching the category and
// difficulty. Empty category or zero difficulty means no filter.
func (s *Store) ListQuestionsFiltered(ctx context.Context, category string, difficulty int) ([]model.Question, error) {
	var conds []string
	var args []any
	if category != "" {
		conds = append(conds, "category = ?")
		args = append(args, category)
	}
	if difficulty > 0 {
		conds = append(conds, "difficulty = ?")
		args = append(args, difficulty)
	}
	query := `SELECT ` + questionColumns + ` FROM questions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of questions in the bank.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// ListCategories returns the distinct question categories, sorted.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT DISTINCT category FROM questions ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (*model.Question, error) {
	var q model.Question
	var distractors string
	if err := sc.Scan(&q.ID, &q.Category, &q.Type, &q.Difficulty, &q.Text,
		&q.CorrectAnswer, &distractors, &q.Explanation); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(distractors), &q.Distractors); err != nil {
		return nil, fmt.Errorf("decode distractors of question %d: %w", q.ID, err)
	}
	return &q, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
