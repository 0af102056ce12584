package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelanni/testprep/internal/exam"

	_ "modernc.org/sqlite"
)

// dbtx is the subset of *sql.DB and *sql.Tx used by queries.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the sqlite-backed session store and question bank.
type Store struct {
	db *sql.DB
	q  dbtx
}

var _ exam.Store = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, q: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside a transaction. Calls made through the Repository
// passed to fn are committed together or not at all. Nested calls reuse the
// outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(exam.Repository) error) error {
	return s.withTx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) withTx(ctx context.Context, fn func(*Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		type TEXT NOT NULL,
		difficulty INTEGER NOT NULL DEFAULT 1 CHECK (difficulty BETWEEN 1 AND 3),
		text TEXT NOT NULL,
		correct_answer TEXT NOT NULL DEFAULT '',
		distractors TEXT NOT NULL DEFAULT '[]',
		explanation TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS exam_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		mode TEXT NOT NULL,
		category_filter TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'in_progress',
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS session_questions (
		session_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		PRIMARY KEY (session_id, position),
		UNIQUE (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		value TEXT NOT NULL,
		is_correct INTEGER,
		score REAL,
		answered_at DATETIME NOT NULL,
		graded_at DATETIME,
		reviewed_by INTEGER,
		suggested_score REAL,
		suggestion_feedback TEXT NOT NULL DEFAULT '',
		UNIQUE (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS score_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL UNIQUE,
		total_questions INTEGER NOT NULL,
		correct_answers INTEGER NOT NULL,
		accuracy REAL NOT NULL,
		unanswered INTEGER NOT NULL DEFAULT 0,
		graded_at DATETIME NOT NULL,
		reviewed_by INTEGER,
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS progress_stats (
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		total_attempts INTEGER NOT NULL DEFAULT 0,
		correct_attempts INTEGER NOT NULL DEFAULT 0,
		accuracy REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, category),
		CHECK (total_attempts >= 0 AND correct_attempts >= 0 AND correct_attempts <= total_attempts)
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exam_sessions_user ON exam_sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_exam_sessions_status ON exam_sessions(status);
	`
	_, err := s.db.Exec(schema)
	return err
}
