package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

var testNaming = tenant.Naming{SystemDatabase: "school_erp_system", Prefix: "school_erp_trust_"}

func newResolver() *tenant.Resolver {
	return tenant.NewResolver(tenant.ResolverConfig{
		Naming:        testNaming,
		HeaderName:    "X-Tenant-Code",
		InternalToken: "internal-token",
		BaseDomain:    "erp.test",
	})
}

// okHandler answers 200 and records that it ran.
func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

// serve runs h behind the responder so errors render as envelopes.
func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	respond.Install(respond.Responder{Translator: apperr.Translator{}})(h).ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, code, body.Error.Code)
	return body
}
