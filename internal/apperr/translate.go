package apperr

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"

	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/store"
	"github.com/nitinbetharia/schoolerp/internal/validate"
)

const genericMessage = "An unexpected error occurred"

// Translator maps arbitrary errors onto the taxonomy. With DevMode set,
// unexpected errors expose their original message in details.
type Translator struct {
	DevMode bool
}

// Translate converts err into exactly one *Error. It never panics and never
// returns nil.
func (t Translator) Translate(err error) (out *Error) {
	if err == nil {
		return Internal(genericMessage)
	}

	defer func() {
		if r := recover(); r != nil {
			out = Internal(genericMessage, WithCause(fmt.Errorf("translating error: %v", r)))
		}
	}()

	if ae, ok := As(err); ok {
		return ae
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fromValidation(verrs)
	}

	if isJSONError(err) {
		return Validation("Request body must be valid JSON",
			WithCode(CodeInvalidJSON),
			WithFields(FieldDetail{Field: "body", Message: err.Error()}),
			WithCause(err),
		)
	}

	if v, ok := store.ClassifyViolation(err); ok {
		return fromViolation(v, err)
	}

	if jwtErr := fromJWT(err); jwtErr != nil {
		return jwtErr
	}

	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, pgx.ErrNoRows), errors.Is(err, sql.ErrNoRows):
		return NotFound("Record not found", WithCause(err))
	case errors.Is(err, domain.ErrConflict):
		return Conflict("Record already exists", WithCause(err))
	case errors.Is(err, store.ErrQueryTimeout), errors.Is(err, context.DeadlineExceeded):
		return Database("Database query timed out", WithCode(CodeDBQueryTimeout), WithCause(err))
	case errors.Is(err, context.Canceled):
		return Database("Request was cancelled before the query completed", WithCode(CodeDBQuery), WithCause(err))
	case store.IsMissingDatabase(err):
		return NotFound("Tenant not found", WithCode(CodeTenantNotFound), WithCause(err))
	case store.IsConnectionError(err):
		return Database("Database connection failed", WithCode(CodeDBConnection), WithCause(err), NonOperational())
	case isDriverError(err):
		return Database("Database query failed", WithCode(CodeDBQuery), WithCause(err), NonOperational())
	}

	return t.internal(err)
}

func (t Translator) internal(err error) *Error {
	opts := []Option{WithCause(err)}
	if t.DevMode {
		opts = append(opts, WithDetails(map[string]string{"error": err.Error()}))
	}
	return Internal(genericMessage, opts...)
}

func fromValidation(verrs validator.ValidationErrors) *Error {
	return Validation("Validation failed", WithFields(ValidationFields(verrs)...), WithCause(verrs))
}

// ValidationFields returns one detail per invalid field, named by its JSON
// path below the validated struct (for example "items[1].key").
func ValidationFields(verrs validator.ValidationErrors) []FieldDetail {
	fields := make([]FieldDetail, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		name := FieldPath(fe)
		if seen[name] {
			continue
		}
		seen[name] = true
		fields = append(fields, FieldDetail{
			Field:   name,
			Message: validate.Message(fe),
			Value:   fe.Value(),
		})
	}
	return fields
}

// FieldPath strips the root struct name from the error's namespace.
func FieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 && i < len(ns)-1 {
		return ns[i+1:]
	}
	if name := fe.Field(); name != "" {
		return name
	}
	return ns
}

func fromViolation(v store.Violation, err error) *Error {
	switch v.Kind {
	case store.UniqueViolation:
		fields := make([]FieldDetail, 0, len(v.Fields))
		for i, f := range v.Fields {
			fd := FieldDetail{Field: f, Message: f + " already exists"}
			if i < len(v.Values) {
				fd.Value = v.Values[i]
			}
			fields = append(fields, fd)
		}
		msg := "Duplicate entry"
		if len(v.Fields) > 0 {
			msg = "Duplicate value for " + strings.Join(v.Fields, ", ")
		}
		return Conflict(msg, WithCode(CodeDuplicateEntry), WithFields(fields...), WithCause(err))
	default:
		opts := []Option{WithCode(CodeReferenceMissing), WithCause(err)}
		if len(v.Fields) > 0 {
			fields := make([]FieldDetail, 0, len(v.Fields))
			for _, f := range v.Fields {
				fields = append(fields, FieldDetail{Field: f, Message: "referenced record does not exist"})
			}
			opts = append(opts, WithFields(fields...))
		}
		return BusinessLogic("Referenced record does not exist", opts...)
	}
}

func fromJWT(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Authentication("Session token has expired", WithCode(CodeTokenExpired), WithCause(err))
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return Authentication("Session token is invalid", WithCode(CodeTokenInvalid), WithCause(err))
	}
	return nil
}

func isJSONError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// isDriverError reports errors that came out of a database driver but fit
// no narrower category.
func isDriverError(err error) bool {
	type pgLike interface{ SQLState() string }
	var pe pgLike
	if errors.As(err, &pe) {
		return true
	}
	type sqliteLike interface{ Code() int }
	var se sqliteLike
	return errors.As(err, &se)
}
