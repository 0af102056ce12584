package model

import "time"

// ExamExport is the top-level JSON structure for result export.
type ExamExport struct {
	ExamID     string          `json:"exam_id"`
	Subject    string          `json:"subject"`
	Date       string          `json:"date"`
	ExportedAt time.Time       `json:"exported_at"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one student's session data for export.
type StudentResult struct {
	Username       string           `json:"username"`
	DisplayName    string           `json:"display_name"`
	SessionID      int64            `json:"session_id"`
	SessionNumber  int              `json:"session_number"`
	Mode           SessionMode      `json:"mode"`
	CategoryFilter string           `json:"category_filter,omitempty"`
	Status         SessionStatus    `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Questions      []QuestionResult `json:"questions"`
	Score          *ScoreRecord     `json:"score,omitempty"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID int64        `json:"question_id"`
	Text       string       `json:"text"`
	Category   string       `json:"category"`
	Type       QuestionType `json:"type"`
	Difficulty int          `json:"difficulty"`
	Answer     string       `json:"answer"`
	IsCorrect  *bool        `json:"is_correct"`
	Score      *float64     `json:"score"`
	ReviewedBy *int64       `json:"reviewed_by,omitempty"`
}
