package tenant

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
)

// InternalTokenHeader carries the shared secret that unlocks the tenant
// header override.
const InternalTokenHeader = "X-Internal-Token"

// Resolver extracts the tenant from a request without touching any database.
type Resolver struct {
	naming        Naming
	headerName    string
	internalToken string
	baseDomain    string
	reserved      map[string]struct{}
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Naming             Naming
	HeaderName         string
	InternalToken      string
	BaseDomain         string
	ReservedSubdomains []string
}

// NewResolver builds a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	reserved := make(map[string]struct{}, len(cfg.ReservedSubdomains))
	for _, s := range cfg.ReservedSubdomains {
		reserved[strings.ToLower(s)] = struct{}{}
	}
	header := cfg.HeaderName
	if header == "" {
		header = "X-Tenant-Code"
	}
	return &Resolver{
		naming:        cfg.Naming,
		headerName:    header,
		internalToken: cfg.InternalToken,
		baseDomain:    strings.ToLower(strings.TrimPrefix(cfg.BaseDomain, ".")),
		reserved:      reserved,
	}
}

// Naming returns the database naming used by the resolver.
func (r *Resolver) Naming() Naming { return r.naming }

// Resolve applies, in order: the trusted header override, the session's
// tenant code, then the Host subdomain. It returns found=false when no
// signal is present and an error when a signal carries an invalid code.
func (r *Resolver) Resolve(req *http.Request, sessionTenant string) (Context, bool, error) {
	if raw := req.Header.Get(r.headerName); raw != "" && r.trusted(req) {
		return r.build(raw, SourceHeader)
	}

	if sessionTenant != "" {
		return r.build(sessionTenant, SourceSession)
	}

	if sub := r.subdomain(req.Host); sub != "" {
		return r.build(sub, SourceSubdomain)
	}

	return Context{}, false, nil
}

// FromHost returns the tenant named by the Host subdomain, if any.
func (r *Resolver) FromHost(host string) (Context, bool, error) {
	sub := r.subdomain(host)
	if sub == "" {
		return Context{}, false, nil
	}
	return r.build(sub, SourceSubdomain)
}

func (r *Resolver) build(raw string, src Source) (Context, bool, error) {
	code, ok := Normalize(raw)
	if !ok {
		return Context{}, false, apperr.Validation("Invalid tenant code",
			apperr.WithCode(apperr.CodeTenantInvalid),
			apperr.WithFields(apperr.FieldDetail{Field: "tenant", Message: "tenant code is malformed", Value: raw}),
		)
	}
	return r.naming.For(code, src), true, nil
}

func (r *Resolver) trusted(req *http.Request) bool {
	if r.internalToken == "" {
		return false
	}
	got := req.Header.Get(InternalTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(r.internalToken)) == 1
}

// subdomain returns the left-most label when host is exactly one label
// below the base domain and that label is not reserved.
func (r *Resolver) subdomain(host string) string {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if r.baseDomain == "" || host == r.baseDomain {
		return ""
	}

	suffix := "." + r.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return ""
	}
	if _, ok := r.reserved[label]; ok {
		return ""
	}
	return label
}
