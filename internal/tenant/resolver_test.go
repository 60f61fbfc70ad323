package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
)

func newTestResolver() *Resolver {
	return NewResolver(ResolverConfig{
		Naming: Naming{
			SystemDatabase: "school_erp_system",
			Prefix:         "school_erp_trust_",
			Overrides:      map[string]string{"legacy": "old_trust_db"},
		},
		InternalToken:      "internal-secret",
		BaseDomain:         "erp.local",
		ReservedSubdomains: []string{"www", "api"},
	})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw   string
		want  string
		valid bool
	}{
		{"demo", "demo", true},
		{"  Demo ", "demo", true},
		{"north-campus", "north-campus", true},
		{"a", "a", true},
		{"-demo", "-demo", false},
		{"demo-", "demo-", false},
		{"de_mo", "de_mo", false},
		{"de.mo", "de.mo", false},
		{"", "", false},
		{SystemCode, SystemCode, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()
			got, ok := Normalize(tc.raw)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.valid, ok)
		})
	}
}

func TestNaming(t *testing.T) {
	t.Parallel()

	n := newTestResolver().Naming()

	assert.Equal(t, "school_erp_trust_demo", n.For("demo", SourceHeader).Database)
	assert.Equal(t, "school_erp_trust_north_campus", n.For("north-campus", SourceHeader).Database)
	assert.Equal(t, "old_trust_db", n.For("legacy", SourceHeader).Database)

	sys := n.System()
	assert.True(t, sys.IsSystem())
	assert.Equal(t, "school_erp_system", sys.Database)
}

func TestResolve_Order(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		host       string
		headers    map[string]string
		session    string
		wantFound  bool
		wantCode   string
		wantSource Source
	}{
		{
			name:       "subdomain only",
			host:       "demo.erp.local:3000",
			wantFound:  true,
			wantCode:   "demo",
			wantSource: SourceSubdomain,
		},
		{
			name:       "session beats subdomain",
			host:       "demo.erp.local",
			session:    "north",
			wantFound:  true,
			wantCode:   "north",
			wantSource: SourceSession,
		},
		{
			name:       "trusted header beats session",
			host:       "demo.erp.local",
			headers:    map[string]string{"X-Tenant-Code": "south", InternalTokenHeader: "internal-secret"},
			session:    "north",
			wantFound:  true,
			wantCode:   "south",
			wantSource: SourceHeader,
		},
		{
			name:       "header without token is ignored",
			host:       "demo.erp.local",
			headers:    map[string]string{"X-Tenant-Code": "south"},
			wantFound:  true,
			wantCode:   "demo",
			wantSource: SourceSubdomain,
		},
		{
			name:      "header with wrong token is ignored",
			host:      "erp.local",
			headers:   map[string]string{"X-Tenant-Code": "south", InternalTokenHeader: "guess"},
			wantFound: false,
		},
		{name: "root domain", host: "erp.local", wantFound: false},
		{name: "reserved subdomain", host: "www.erp.local", wantFound: false},
		{name: "foreign domain", host: "demo.example.com", wantFound: false},
		{name: "nested subdomain", host: "a.demo.erp.local", wantFound: false},
	}

	r := newTestResolver()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/entities/student", nil)
			req.Host = tc.host
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}

			got, found, err := r.Resolve(req, tc.session)
			require.NoError(t, err)
			assert.Equal(t, tc.wantFound, found)
			if tc.wantFound {
				assert.Equal(t, tc.wantCode, got.Code)
				assert.Equal(t, tc.wantSource, got.Source)
			}
		})
	}
}

func TestResolve_IsDeterministic(t *testing.T) {
	t.Parallel()

	r := newTestResolver()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "Demo.ERP.local"

	first, ok1, err1 := r.Resolve(req, "")
	second, ok2, err2 := r.Resolve(req, "")
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, first, second)
	assert.Equal(t, "school_erp_trust_demo", first.Database)
}

func TestResolve_InvalidCode(t *testing.T) {
	t.Parallel()

	r := newTestResolver()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "erp.local"

	_, found, err := r.Resolve(req, "bad_code!")
	require.Error(t, err)
	assert.False(t, found)
	assert.True(t, apperr.HasCode(err, apperr.CodeTenantInvalid))

	ae, _ := apperr.As(err)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
}

func TestResolver_NoInternalTokenConfigured(t *testing.T) {
	t.Parallel()

	r := NewResolver(ResolverConfig{BaseDomain: "erp.local", Naming: Naming{Prefix: "t_"}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "erp.local"
	req.Header.Set("X-Tenant-Code", "demo")
	req.Header.Set(InternalTokenHeader, "")

	_, found, err := r.Resolve(req, "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	tc := Context{Code: "demo", Database: "school_erp_trust_demo", Source: SourceSubdomain}
	got, ok := FromContext(WithContext(context.Background(), tc))
	require.True(t, ok)
	assert.Equal(t, tc, got)
}
