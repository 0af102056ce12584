package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pavelanni/testprep/internal/model"
)

const importHashPrefix = "import_hash:"

// SetMetadata upserts a key-value pair.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a key, or "" if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.q.QueryRowContext(ctx, `SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetExamInfo stores the exam description.
func (s *Store) SetExamInfo(ctx context.Context, info model.ExamInfo) error {
	return s.withTx(ctx, func(tx *Store) error {
		for k, v := range map[string]string{
			"exam_id":        info.ExamID,
			"subject":        info.Subject,
			"date":           info.Date,
			"prompt_variant": info.PromptVariant,
		} {
			if err := tx.SetMetadata(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetExamInfo reads the exam description. Missing fields are empty.
func (s *Store) GetExamInfo(ctx context.Context) (model.ExamInfo, error) {
	var info model.ExamInfo
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"exam_id", &info.ExamID},
		{"subject", &info.Subject},
		{"date", &info.Date},
		{"prompt_variant", &info.PromptVariant},
	} {
		v, err := s.GetMetadata(ctx, f.key)
		if err != nil {
			return info, err
		}
		*f.dst = v
	}
	return info, nil
}

// GetImportedFileHash returns the content hash recorded for a question file.
func (s *Store) GetImportedFileHash(ctx context.Context, path string) (string, error) {
	return s.GetMetadata(ctx, importHashPrefix+path)
}

// SetImportedFileHash records the content hash of an imported question file.
func (s *Store) SetImportedFileHash(ctx context.Context, path, hash string) error {
	return s.SetMetadata(ctx, importHashPrefix+path, hash)
}
