// Package models holds the repositories bound to one tenant handle. A Set is
// built once per handle and cached on it.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/nitinbetharia/schoolerp/internal/registry"
	"github.com/nitinbetharia/schoolerp/internal/store"
)

// Set is the model set of one tenant database.
type Set struct {
	Entities *EntityRepo
	Users    *UserRepo
}

// Names lists the tables a tenant model set covers.
var Names = []string{entitiesTable, "users"}

// For returns the model set cached on h.
func For(h *registry.Handle) *Set {
	return registry.ModelsFor(h, build)
}

func build(h *registry.Handle) *Set {
	return &Set{
		Entities: NewEntityRepo(h.Execute),
		Users:    NewUserRepo(h.Execute, h.Tenant().IsSystem()),
	}
}

// ExecFunc runs one statement. Handle.Execute and store.Querier.Exec both
// satisfy it.
type ExecFunc func(ctx context.Context, query string, args ...any) (*store.Result, error)

// builder produces "?" statements; pools rebind them for their dialect.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func run(ctx context.Context, exec ExecFunc, b sq.Sqlizer) (*store.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return exec(ctx, query, args...)
}

// now is truncated to microseconds so both drivers round-trip it unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// --- Row decoding ---
//
// Drivers disagree on the Go types they hand back: pgx returns bool and
// time.Time, SQLite may return int64 and text.

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := asString(v)
	return &s
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	default:
		return false
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int32:
		return int(x)
	case int:
		return x
	case float64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(x)
		return n
	default:
		return 0
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func asTimePtr(v any) *time.Time {
	if v == nil {
		return nil
	}
	t := asTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func asJSONMap(v any) (map[string]any, error) {
	raw := asString(v)
	if raw == "" {
		return map[string]any{}, nil
	}
	m := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return m, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfNil(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
