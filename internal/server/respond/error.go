package respond

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Error translates err, logs it once and writes it to the client as an
// error envelope, or as an HTML page for browser requests outside /api/.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	ae := Translate(r.Context(), err)
	Log(r.Context(), r.Method, r.URL.Path, ae)

	if wantsHTML(r) {
		renderPage(w, ae)
		return
	}
	writeJSON(w, ae.Status, ErrorEnvelope{Success: false, Error: ae})
}

// Translate converts err with the translator installed in ctx.
func Translate(ctx context.Context, err error) *apperr.Error {
	return responderFrom(ctx).Translator.Translate(err)
}

// Log writes the single log line of a failed request: warn for
// operational errors, error otherwise.
func Log(ctx context.Context, method, path string, ae *apperr.Error) {
	logger := zerolog.Ctx(ctx)

	var ev *zerolog.Event
	if ae.Operational {
		ev = logger.Warn()
	} else {
		ev = logger.Error()
	}

	ev = ev.Str("request_id", middleware.GetReqID(ctx)).
		Str("method", method).
		Str("path", path).
		Str("code", ae.Code).
		Int("status", ae.Status)
	if ae.Cause != nil {
		ev = ev.AnErr("cause", ae.Cause)
		if !responderFrom(ctx).Production {
			if st := ae.StackTrace(); st != nil {
				ev = ev.Str("stack", fmt.Sprintf("%+v", st))
			}
		}
	}
	ev.Msg(ae.Message)
}

// wantsHTML reports browser navigation outside the JSON API.
func wantsHTML(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

type pageData struct {
	Status    int
	Title     string
	Code      string
	Message   string
	Fields    []apperr.FieldDetail
	Timestamp string
}

func renderPage(w http.ResponseWriter, ae *apperr.Error) {
	name, title := pageFor(ae.Status)
	data := pageData{
		Status:    ae.Status,
		Title:     title,
		Code:      ae.Code,
		Message:   ae.Message,
		Fields:    ae.Fields(),
		Timestamp: ae.Timestamp.Format("2006-01-02 15:04:05 MST"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(ae.Status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		log.Warn().Err(err).Msg("rendering error page")
	}
}

func pageFor(status int) (name, title string) {
	switch {
	case status == http.StatusNotFound:
		return "404.html", "Page not found"
	case status == http.StatusForbidden:
		return "403.html", "Access denied"
	case status >= http.StatusInternalServerError:
		return "5xx.html", "Something went wrong"
	default:
		return "error.html", http.StatusText(status)
	}
}
