package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotMember    = "not_member"
	ErrCodeNotFound     = "not_found"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotMember    = errors.New("not a member of this chat")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrForbidden    = errors.New("forbidden")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorFrom classifies err into a CoreError suitable for sending to a client.
func ErrorFrom(err error) *CoreError {
	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrUnauthorized):
		return coreError(ErrCodeUnauthorized, err.Error())
	case errors.Is(err, ErrNotMember):
		return coreError(ErrCodeNotMember, err.Error())
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return coreError(ErrCodeForbidden, err.Error())
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}

// ErrorEvent builds an error notification for a single client.
func ErrorEvent(err error) *Event {
	return &Event{Kind: EventError, Error: ErrorFrom(err)}
}
