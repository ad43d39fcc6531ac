package apiErrors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	NotEligible      ErrorCode = "NOT_ELIGIBLE"
	AlreadyMember    ErrorCode = "ALREADY_MEMBER"
	AlreadySubmitted ErrorCode = "ALREADY_SUBMITTED"
	AlreadyApplied   ErrorCode = "ALREADY_APPLIED"
	TeamFull         ErrorCode = "TEAM_FULL"
	Forbidden        ErrorCode = "FORBIDDEN"
	NotFound         ErrorCode = "NOT_FOUND"
	Validation       ErrorCode = "VALIDATION"
	Unauthorized     ErrorCode = "UNAUTHORIZED"
	Conflict         ErrorCode = "CONFLICT"
	StoreError       ErrorCode = "STORE_ERROR"
	InternalError    ErrorCode = "INTERNAL_ERROR"
)

type APIError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e APIError) Unwrap() error { return e.Err }

func New(code ErrorCode, message string) APIError {
	return APIError{Code: code, Message: message}
}

// Store wraps a failure of an external collaborator.
func Store(message string, err error) APIError {
	return APIError{Code: StoreError, Message: message, Err: err}
}

// Is matches err against code.
func Is(err error, code ErrorCode) bool {
	var e APIError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
