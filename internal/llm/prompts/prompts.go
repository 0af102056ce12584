package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/testprep/internal/model"
)

//go:embed templates/*.txt
var embedded embed.FS

// Templates is the built-in prompt template set.
var Templates fs.FS = embedded

const maxAnswerRunes = 10000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict grades certification exams.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient grades practice work.
	PromptLenient PromptVariant = "lenient"
)

var variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// GradeData holds template data for essay grading prompts.
type GradeData struct {
	Category      string
	QuestionText  string
	Reference     string
	Answer        string
	PassThreshold float64
}

// Set holds the parsed grading template of every variant.
type Set struct {
	grade map[PromptVariant]*template.Template
}

// Load parses templates/grade_<variant>.txt for every variant from fsys.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{grade: make(map[PromptVariant]*template.Template)}
	for _, v := range variants {
		name := "templates/grade_" + string(v) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", name, err)
		}
		tmpl, err := template.New(string(v)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		s.grade[v] = tmpl
	}
	return s, nil
}

// BuildGradePrompt renders the grading prompt for an essay answer.
func (s *Set) BuildGradePrompt(variant PromptVariant, q model.Question, answer string, passThreshold float64) (string, error) {
	tmpl, ok := s.grade[variant]
	if !ok {
		return "", fmt.Errorf("invalid prompt variant: %s", variant)
	}

	reference := q.CorrectAnswer
	if q.Explanation != "" {
		reference = strings.TrimSpace(reference + "\n" + q.Explanation)
	}
	data := GradeData{
		Category:      q.Category,
		QuestionText:  q.Text,
		Reference:     reference,
		Answer:        sanitizeAnswer(answer),
		PassThreshold: passThreshold,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeAnswer strips tags that could break out of the answer block and
// caps the length.
func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
