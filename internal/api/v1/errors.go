package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-playground/validator/v10"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
	"github.com/nitinbetharia/schoolerp/internal/validate"
)

// ErrorResponse is the failure body huma writes for every operation. It has
// the same shape as respond.ErrorEnvelope.
type ErrorResponse struct {
	Success bool          `json:"success"`
	Err     *apperr.Error `json:"error"`
}

func (e *ErrorResponse) Error() string  { return e.Err.Message }
func (e *ErrorResponse) GetStatus() int { return e.Err.Status }
func (e *ErrorResponse) Unwrap() error  { return e.Err }

// huma builds every error, including its own validation failures, through
// these hooks, so operations answer with the same envelope and codes as the
// chi middleware in front of them.
func init() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return &ErrorResponse{Err: fromHuma(apperr.Translator{}.Translate, status, msg, errs)}
	}
	huma.NewErrorWithContext = func(hctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if hctx == nil {
			return huma.NewError(status, msg, errs...)
		}
		ctx := hctx.Context()
		ae := fromHuma(func(err error) *apperr.Error { return respond.Translate(ctx, err) }, status, msg, errs)
		u := hctx.URL()
		respond.Log(ctx, hctx.Method(), u.Path, ae)
		return &ErrorResponse{Err: ae}
	}
}

// fromHuma folds huma's status, message and errors into one *apperr.Error.
// Error details become field details named by their location without the
// request part ("body.items[1].key" becomes "items[1].key").
func fromHuma(translate func(error) *apperr.Error, status int, msg string, errs []error) *apperr.Error {
	var (
		fields    []apperr.FieldDetail
		seen      = map[string]bool{}
		malformed bool
		other     error
	)
	for _, err := range errs {
		if err == nil {
			continue
		}
		var detailer huma.ErrorDetailer
		if !errors.As(err, &detailer) {
			if other == nil {
				other = err
			}
			continue
		}
		d := detailer.ErrorDetail()
		field := fieldName(d.Location)
		value := d.Value
		if field == "body" {
			malformed = true
			value = nil
		}
		if seen[field] {
			continue
		}
		seen[field] = true
		fields = append(fields, apperr.FieldDetail{Field: field, Message: d.Message, Value: value})
	}

	switch {
	case other != nil:
		return translate(other)
	case status == http.StatusRequestEntityTooLarge:
		return apperr.Validation("Request body is too large",
			apperr.WithFields(apperr.FieldDetail{Field: "body", Message: msg}))
	case malformed:
		return apperr.Validation("Request body must be valid JSON",
			apperr.WithCode(apperr.CodeInvalidJSON), apperr.WithFields(fields...))
	case len(fields) > 0:
		return apperr.Validation("Validation failed", apperr.WithFields(fields...))
	}

	switch {
	case status == http.StatusUnauthorized:
		return apperr.Authentication(msg)
	case status == http.StatusForbidden:
		return apperr.Authorization(msg)
	case status == http.StatusNotFound:
		return apperr.NotFound(msg)
	case status == http.StatusConflict:
		return apperr.Conflict(msg)
	case status == http.StatusTooManyRequests:
		return apperr.TooManyRequests(msg)
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return apperr.Validation(msg)
	default:
		return translate(errors.New(msg))
	}
}

func fieldName(location string) string {
	for _, part := range []string{"body", "path", "query", "header", "cookie"} {
		if rest, ok := strings.CutPrefix(location, part+"."); ok {
			return rest
		}
	}
	return location
}

// check runs the shared validator over an operation input. Each violation
// becomes a huma error detail; violations inside Body are located under
// "body.", parameters by their name.
func check(in any) []error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}

	fields := apperr.ValidationFields(verrs)
	out := make([]error, 0, len(fields))
	for _, f := range fields {
		loc := f.Field
		if rest, ok := strings.CutPrefix(loc, "Body."); ok {
			loc = "body." + rest
		}
		out = append(out, &huma.ErrorDetail{Location: loc, Message: f.Message, Value: f.Value})
	}
	return out
}
