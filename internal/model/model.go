package model

import (
	"context"
	"slices"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// IsValid reports whether r is a known role.
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleStudent, UserRoleTeacher, UserRoleAdmin:
		return true
	}
	return false
}

// CanReview reports whether the role may grade other users' answers.
func (r UserRole) CanReview() bool {
	return r == UserRoleTeacher || r == UserRoleAdmin
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionType decides how an answer is graded.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFillInBlank    QuestionType = "fill_in_blank"
	QuestionEssay          QuestionType = "essay_prompt"
)

// IsValid reports whether t is a known question type.
func (t QuestionType) IsValid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionFillInBlank, QuestionEssay:
		return true
	}
	return false
}

// ManualGrading reports whether answers to this type need a teacher's grade.
func (t QuestionType) ManualGrading() bool {
	return t == QuestionEssay
}

// Question represents a question from the question bank.
type Question struct {
	ID            int64        `json:"id"`
	Category      string       `json:"category"`
	Type          QuestionType `json:"type"`
	Difficulty    int          `json:"difficulty"`
	Text          string       `json:"text"`
	CorrectAnswer string       `json:"-"`
	Distractors   []string     `json:"distractors,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
}

// Choices returns the options offered for a multiple choice question: the
// distractors and the correct answer, sorted so the order reveals nothing.
// Other question types have no choices.
func (q Question) Choices() []string {
	if q.Type != QuestionMultipleChoice {
		return nil
	}
	choices := make([]string, 0, len(q.Distractors)+1)
	choices = append(choices, q.Distractors...)
	choices = append(choices, q.CorrectAnswer)
	slices.Sort(choices)
	return slices.Compact(choices)
}

// SessionMode is the kind of test a session represents.
type SessionMode string

const (
	ModeExam     SessionMode = "exam"
	ModePractice SessionMode = "practice"
	ModeTargeted SessionMode = "targeted"
)

// IsValid reports whether m is an allowed session mode.
func (m SessionMode) IsValid() bool {
	switch m {
	case ModeExam, ModePractice, ModeTargeted:
		return true
	}
	return false
}

// SessionStatus represents the status of an exam session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusSubmitted  SessionStatus = "submitted"
	StatusReviewed   SessionStatus = "reviewed"
)

// CanTransition reports whether a session may move from s to next.
// The lifecycle is strictly in_progress -> submitted -> reviewed.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case StatusInProgress:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusReviewed
	}
	return false
}

// ExamSession represents one attempt at a test.
type ExamSession struct {
	ID             int64         `json:"id"`
	UserID         int64         `json:"user_id"`
	Mode           SessionMode   `json:"mode"`
	CategoryFilter string        `json:"category_filter,omitempty"`
	QuestionIDs    []int64       `json:"question_ids"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// HasQuestion reports whether questionID is part of the session's plan.
func (s ExamSession) HasQuestion(questionID int64) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Answer is a submitted answer to one question of a session.
// IsCorrect and Score are nil while the answer awaits a manual grade.
type Answer struct {
	ID         int64      `json:"id"`
	SessionID  int64      `json:"session_id"`
	QuestionID int64      `json:"question_id"`
	Value      string     `json:"value"`
	IsCorrect  *bool      `json:"is_correct"`
	Score      *float64   `json:"score"`
	AnsweredAt time.Time  `json:"answered_at"`
	GradedAt   *time.Time `json:"graded_at,omitempty"`
	ReviewedBy *int64     `json:"reviewed_by,omitempty"`

	SuggestedScore     *float64 `json:"suggested_score,omitempty"`
	SuggestionFeedback string   `json:"suggestion_feedback,omitempty"`
}

// Resolved reports whether the answer's correctness is known.
func (a Answer) Resolved() bool {
	return a.IsCorrect != nil
}

// Correct reports whether the answer is resolved and correct.
func (a Answer) Correct() bool {
	return a.IsCorrect != nil && *a.IsCorrect
}

// ScoreRecord holds the final result of a fully resolved session.
type ScoreRecord struct {
	ID             int64     `json:"id"`
	SessionID      int64     `json:"session_id"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
	Accuracy       float64   `json:"accuracy"`
	Unanswered     int       `json:"unanswered"`
	GradedAt       time.Time `json:"graded_at"`
	ReviewedBy     *int64    `json:"reviewed_by,omitempty"`
}

// ProgressStat is a running per-user, per-category accuracy aggregate.
type ProgressStat struct {
	UserID          int64   `json:"user_id"`
	Category        string  `json:"category"`
	TotalAttempts   int     `json:"total_attempts"`
	CorrectAttempts int     `json:"correct_attempts"`
	Accuracy        float64 `json:"accuracy"`
}

// ExamConfig holds runtime parameters set via CLI flags.
type ExamConfig struct {
	NumQuestions  int    // 0 means all available
	Difficulty    int    // 0 means all difficulties
	Category      string // empty means all categories
	Shuffle       bool
	SecureCookies bool    // Set Secure flag on cookies (disable for local dev)
	PassThreshold float64 // Essay score counted as correct when no verdict is given
	PromptVariant string  // Suggestion prompt variant (strict, standard, lenient)
	// AllowRegistration enables self-service student sign-up.
	AllowRegistration bool
}

// QuestionImport is used for loading questions from JSON or YAML files.
type QuestionImport struct {
	Category      string       `json:"category" yaml:"category" validate:"required"`
	Type          QuestionType `json:"type" yaml:"type" validate:"required,oneof=multiple_choice fill_in_blank essay_prompt"`
	Difficulty    int          `json:"difficulty" yaml:"difficulty" validate:"omitempty,min=1,max=3"`
	Text          string       `json:"text" yaml:"text" validate:"required"`
	CorrectAnswer string       `json:"correct_answer" yaml:"correct_answer" validate:"required_unless=Type essay_prompt"`
	Distractors   []string     `json:"distractors" yaml:"distractors"`
	Explanation   string       `json:"explanation" yaml:"explanation"`
}

// Question converts the import record into a bank question.
func (qi QuestionImport) Question() Question {
	return Question{
		Category:      qi.Category,
		Type:          qi.Type,
		Difficulty:    qi.Difficulty,
		Text:          qi.Text,
		CorrectAnswer: qi.CorrectAnswer,
		Distractors:   qi.Distractors,
		Explanation:   qi.Explanation,
	}
}

// AnswerView combines an answer with its question for display.
type AnswerView struct {
	Answer   Answer   `json:"answer"`
	Question Question `json:"question"`
}

// PlannedQuestion is one question of a session's plan, in plan order.
type PlannedQuestion struct {
	Position int      `json:"position"`
	Question Question `json:"question"`
	Choices  []string `json:"choices,omitempty"`
}

// SessionView combines session data with its planned questions, answers and
// the score record.
type SessionView struct {
	Session   ExamSession       `json:"session"`
	Questions []PlannedQuestion `json:"questions"`
	Answers   []AnswerView      `json:"answers"`
	Score     *ScoreRecord      `json:"score,omitempty"`
}

// HideReviewDetails strips explanations and grade suggestions, which the
// test taker may only see once the session is reviewed.
func (v *SessionView) HideReviewDetails() {
	for i := range v.Questions {
		v.Questions[i].Question.Explanation = ""
	}
	for i := range v.Answers {
		v.Answers[i].Question.Explanation = ""
		v.Answers[i].Answer.SuggestedScore = nil
		v.Answers[i].Answer.SuggestionFeedback = ""
	}
}

// PendingAnswers returns the answers still waiting for a manual grade.
func (v SessionView) PendingAnswers() []AnswerView {
	var pending []AnswerView
	for _, av := range v.Answers {
		if !av.Answer.Resolved() {
			pending = append(pending, av)
		}
	}
	return pending
}

// ExamInfo describes the exam a deployment serves. It is stored as
// metadata and copied into result exports.
type ExamInfo struct {
	ExamID        string `json:"exam_id"`
	Subject       string `json:"subject"`
	Date          string `json:"date"`
	PromptVariant string `json:"prompt_variant"`
}
