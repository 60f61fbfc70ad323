// Package respond renders the JSON envelopes and HTML error pages, and hosts
// the single error handler every failing request goes through.
package respond

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
)

// Handler is an HTTP handler that reports failure by returning an error.
type Handler func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP runs h and hands any error to Error.
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h(w, r); err != nil {
		Error(w, r, err)
	}
}

// Responder carries the settings the error handler needs.
type Responder struct {
	Translator apperr.Translator
	// Production hides stack traces from logs.
	Production bool
}

type ctxKey struct{}

// Install puts rsp in every request context so middleware and handlers can
// report errors without further wiring.
func Install(rsp Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ctxKey{}, rsp)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func responderFrom(ctx context.Context) Responder {
	rsp, _ := ctx.Value(ctxKey{}).(Responder)
	return rsp
}

// Meta is pagination metadata attached to list responses.
type Meta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type successEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
	Meta    any    `json:"meta,omitempty"`
}

// ErrorEnvelope is the body of every failed request.
type ErrorEnvelope struct {
	Success bool          `json:"success"`
	Error   *apperr.Error `json:"error"`
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, message string, data any) {
	Success(w, http.StatusOK, message, data, nil)
}

// Success writes a success envelope with the given status. meta may be nil.
func Success(w http.ResponseWriter, status int, message string, data any, meta any) {
	env := successEnvelope{Success: true, Message: message, Data: data}
	if meta != nil {
		env.Meta = meta
	}
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("writing response body")
	}
}
