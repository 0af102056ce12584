package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/testprep/internal/model"
)

var validate = validator.New()

// ImportResult reports what ImportFile did with a question file.
type ImportResult int

const (
	ImportAdded ImportResult = iota
	ImportUnchanged
	ImportChanged
)

// ParseQuestions decodes a question file. Files named *.yaml or *.yml are
// read as YAML, anything else as JSON. Every question is validated.
func ParseQuestions(name string, data []byte) ([]model.QuestionImport, error) {
	var questions []model.QuestionImport
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	}

	var problems []string
	for i, qi := range questions {
		if err := validate.Struct(qi); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return nil, fmt.Errorf("validate question %d: %w", i+1, err)
			}
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("question %d: field %s failed %q", i+1, fe.Field(), fe.Tag()))
			}
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid questions:\n- %s", strings.Join(problems, "\n- "))
	}
	return questions, nil
}

// InsertQuestions adds all questions in one transaction.
func (s *Store) InsertQuestions(ctx context.Context, questions []model.QuestionImport) ([]int64, error) {
	ids := make([]int64, 0, len(questions))
	err := s.withTx(ctx, func(tx *Store) error {
		for _, qi := range questions {
			id, err := tx.InsertQuestion(ctx, qi.Question())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ImportFile imports a question file once. A file whose content hash was
// recorded before is skipped. A file that changed since its import is also
// skipped, so sessions that refer to its questions stay intact.
func (s *Store) ImportFile(ctx context.Context, path string, data []byte) (ImportResult, int, error) {
	hash := sha256sum(data)
	stored, err := s.GetImportedFileHash(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if stored == hash {
		slog.Info("questions file unchanged, skipping", "path", path)
		return ImportUnchanged, 0, nil
	}
	if stored != "" {
		slog.Warn("questions file changed since last import, skipping to avoid breaking existing sessions",
			"path", path)
		return ImportChanged, 0, nil
	}

	questions, err := ParseQuestions(path, data)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	err = s.withTx(ctx, func(tx *Store) error {
		if _, err := tx.InsertQuestions(ctx, questions); err != nil {
			return err
		}
		return tx.SetImportedFileHash(ctx, path, hash)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("import %s: %w", path, err)
	}
	slog.Info("imported questions", "path", path, "count", len(questions))
	return ImportAdded, len(questions), nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
