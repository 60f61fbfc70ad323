package domain

import (
	"context"
	"time"
)

// Entity is a tenant-owned record of an arbitrary kind (student, class,
// school and so on). Key is unique within its kind.
type Entity struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Key       string         `json:"key"`
	Data      map[string]any `json:"data"`
	ParentID  *string        `json:"parent_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EntityFilter narrows List results.
type EntityFilter struct {
	Kind     string
	ParentID string
	Limit    int
	Offset   int
}

type EntityRepository interface {
	Create(ctx context.Context, e *Entity) error
	Get(ctx context.Context, kind, id string) (*Entity, error)
	List(ctx context.Context, f EntityFilter) ([]*Entity, int, error)
	Update(ctx context.Context, e *Entity) error
	Delete(ctx context.Context, kind, id string) error
}
