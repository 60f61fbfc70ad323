// Package tenant resolves which trust a request belongs to and names the
// database that holds its data.
package tenant

import (
	"context"
	"regexp"
	"strings"
)

// Source records which signal produced a Context.
type Source string

const (
	SourceHeader    Source = "header"
	SourceSession   Source = "session"
	SourceSubdomain Source = "subdomain"
)

// SystemCode keys the system store in the connection registry. It can never
// collide with a tenant code because codes must not contain underscores.
const SystemCode = "__system__"

var codePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// Context identifies the tenant a request is scoped to. It is a value type
// and is never persisted.
type Context struct {
	Code     string
	Database string
	Source   Source
}

// IsSystem reports whether c targets the system store.
func (c Context) IsSystem() bool { return c.Code == SystemCode }

// Naming derives database names from tenant codes.
type Naming struct {
	SystemDatabase string
	Prefix         string
	Overrides      map[string]string
}

// System returns the Context for the system store.
func (n Naming) System() Context {
	return Context{Code: SystemCode, Database: n.SystemDatabase}
}

// For returns the Context for code. The code must already be normalised.
func (n Naming) For(code string, src Source) Context {
	db, ok := n.Overrides[code]
	if !ok {
		db = n.Prefix + strings.ReplaceAll(code, "-", "_")
	}
	return Context{Code: code, Database: db, Source: src}
}

// Normalize lowercases and trims a raw code and reports whether it is valid.
func Normalize(raw string) (string, bool) {
	code := strings.ToLower(strings.TrimSpace(raw))
	return code, codePattern.MatchString(code)
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying tc.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant attached to ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}
