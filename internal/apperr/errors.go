// Package apperr defines the single structured error type that crosses the
// request pipeline, the constructors that build it, and the translator that
// turns arbitrary failures into it.
package apperr

import (
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// FieldDetail describes one offending field of a validation or conflict error.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Error is the structured error rendered by the response formatter.
//
// Cause is kept for server-side logging only and never serialised.
type Error struct {
	Kind        Kind      `json:"-"`
	Status      int       `json:"-"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Details     any       `json:"details,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Operational bool      `json:"-"`
	Cause       error     `json:"-"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *Error) Error() string { return e.Message }

// Unwrap allows errors.Is and errors.As to traverse the cause chain.
func (e *Error) Unwrap() error { return e.Cause }

// Fields returns Details as field details, or nil when Details holds something else.
func (e *Error) Fields() []FieldDetail {
	fd, _ := e.Details.([]FieldDetail)
	return fd
}

// Option customises an Error built by one of the constructors.
type Option func(*Error)

// WithCode overrides the kind's default code. The status follows the code
// for database errors.
func WithCode(code string) Option {
	return func(e *Error) { e.Code = code }
}

// WithDetails attaches arbitrary client-visible details.
func WithDetails(details any) Option {
	return func(e *Error) { e.Details = details }
}

// WithFields attaches per-field details.
func WithFields(fields ...FieldDetail) Option {
	return func(e *Error) { e.Details = fields }
}

// WithCause records the underlying error with a stack trace for logging.
func WithCause(cause error) Option {
	return func(e *Error) {
		if cause == nil {
			return
		}
		e.Cause = pkgerrors.WithStack(cause)
	}
}

// NonOperational marks the error as an unexpected fault.
func NonOperational() Option {
	return func(e *Error) { e.Operational = false }
}

func newError(kind Kind, message string, opts []Option) *Error {
	e := &Error{
		Kind:        kind,
		Code:        defaultCodes[kind],
		Message:     message,
		Timestamp:   time.Now().UTC(),
		Operational: kind != KindInternal,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Status = statusFor(kind, e.Code)
	return e
}

// Validation builds a 400 error.
func Validation(message string, opts ...Option) *Error {
	return newError(KindValidation, message, opts)
}

// Authentication builds a 401 error.
func Authentication(message string, opts ...Option) *Error {
	return newError(KindAuthentication, message, opts)
}

// Authorization builds a 403 error.
func Authorization(message string, opts ...Option) *Error {
	return newError(KindAuthorization, message, opts)
}

// NotFound builds a 404 error.
func NotFound(message string, opts ...Option) *Error {
	return newError(KindNotFound, message, opts)
}

// Conflict builds a 409 error.
func Conflict(message string, opts ...Option) *Error {
	return newError(KindConflict, message, opts)
}

// BusinessLogic builds a 422 error.
func BusinessLogic(message string, opts ...Option) *Error {
	return newError(KindBusinessLogic, message, opts)
}

// TooManyRequests builds a 429 error.
func TooManyRequests(message string, opts ...Option) *Error {
	return newError(KindTooManyRequests, message, opts)
}

// Database builds a 500 error, or 503 for the connection, availability,
// timeout and health codes.
func Database(message string, opts ...Option) *Error {
	return newError(KindDatabase, message, opts)
}

// Internal builds a non-operational 500 error.
func Internal(message string, opts ...Option) *Error {
	return newError(KindInternal, message, opts)
}

// As reports whether err is or wraps an *Error and returns it.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HasCode reports whether err is an *Error carrying code.
func HasCode(err error, code string) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}

// StackTrace returns the stack recorded by WithCause, if any.
func (e *Error) StackTrace() pkgerrors.StackTrace {
	type stackTracer interface {
		StackTrace() pkgerrors.StackTrace
	}
	var st stackTracer
	if errors.As(e.Cause, &st) {
		return st.StackTrace()
	}
	return nil
}
