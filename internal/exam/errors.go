package exam

import (
	"errors"
	"fmt"
)

// Errors returned by the Manager. Callers branch on them with errors.Is.
// Only ErrStorageFailure is worth retrying.
var (
	ErrInvalidMode          = errors.New("invalid session mode")
	ErrEmptyQuestionSet     = errors.New("session has no questions")
	ErrUnknownQuestion      = errors.New("unknown question")
	ErrQuestionNotInSession = errors.New("question is not part of the session")
	ErrSessionNotActive     = errors.New("session is not in progress")
	ErrAlreadySubmitted     = errors.New("session already submitted")
	ErrSessionNotSubmitted  = errors.New("session is not submitted")
	ErrNotPendingGrade      = errors.New("answer is not pending a manual grade")
	ErrInvalidScore         = errors.New("score must be between 0 and 1")
	ErrPendingGrades        = errors.New("session has answers pending a manual grade")
	ErrNotFound             = errors.New("not found")
	ErrStorageFailure       = errors.New("storage failure")
)

var domainErrors = []error{
	ErrInvalidMode,
	ErrEmptyQuestionSet,
	ErrUnknownQuestion,
	ErrQuestionNotInSession,
	ErrSessionNotActive,
	ErrAlreadySubmitted,
	ErrSessionNotSubmitted,
	ErrNotPendingGrade,
	ErrInvalidScore,
	ErrPendingGrades,
	ErrNotFound,
	ErrStorageFailure,
}

// storageErr marks err as a storage failure while keeping the cause visible
// to errors.Is and errors.As. Errors that already carry a kind pass through.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range domainErrors {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}

// Retryable reports whether the operation that returned err may be retried
// as is.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
