package models

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/store"
)

const (
	entitiesTable   = "entities"
	defaultPageSize = 50
	maxPageSize     = 500
)

var entityColumns = []string{"id", "kind", "key", "data", "parent_id", "created_at", "updated_at"}

// EntityRepo persists entities in one tenant database.
type EntityRepo struct {
	exec ExecFunc
}

var _ domain.EntityRepository = (*EntityRepo)(nil)

func NewEntityRepo(exec ExecFunc) *EntityRepo {
	return &EntityRepo{exec: exec}
}

// Tx returns a repository whose statements run on q, typically the querier
// of an open transaction.
func (r *EntityRepo) Tx(q store.Querier) *EntityRepo {
	return &EntityRepo{exec: q.Exec}
}

func (r *EntityRepo) Create(ctx context.Context, e *domain.Entity) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("entityRepo.Create: encode data: %w", err)
	}
	e.CreatedAt = now()
	e.UpdatedAt = e.CreatedAt

	_, err = run(ctx, r.exec, builder.Insert(entitiesTable).
		Columns(entityColumns...).
		Values(e.ID, e.Kind, e.Key, string(data), nilIfNil(e.ParentID), e.CreatedAt, e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("entityRepo.Create: %w", err)
	}
	return nil
}

func (r *EntityRepo) Get(ctx context.Context, kind, id string) (*domain.Entity, error) {
	res, err := run(ctx, r.exec, builder.Select(entityColumns...).
		From(entitiesTable).
		Where(sq.Eq{"kind": kind, "id": id}))
	if err != nil {
		return nil, fmt.Errorf("entityRepo.Get: %w", err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("entityRepo.Get: %s %s: %w", kind, id, domain.ErrNotFound)
	}

	e, err := scanEntity(res.Rows[0])
	if err != nil {
		return nil, fmt.Errorf("entityRepo.Get: %w", err)
	}
	return e, nil
}

// List returns one page of entities ordered by creation, and the total number
// of entities matching f.
func (r *EntityRepo) List(ctx context.Context, f domain.EntityFilter) ([]*domain.Entity, int, error) {
	where := sq.Eq{"kind": f.Kind}
	if f.ParentID != "" {
		where["parent_id"] = f.ParentID
	}

	countRes, err := run(ctx, r.exec, builder.Select("COUNT(*) AS total").
		From(entitiesTable).
		Where(where))
	if err != nil {
		return nil, 0, fmt.Errorf("entityRepo.List: count: %w", err)
	}
	total := 0
	if len(countRes.Rows) > 0 {
		total = asInt(countRes.Rows[0]["total"])
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := max(f.Offset, 0)

	res, err := run(ctx, r.exec, builder.Select(entityColumns...).
		From(entitiesTable).
		Where(where).
		OrderBy("created_at", "id").
		Limit(uint64(limit)).   //nolint:gosec // clamped above
		Offset(uint64(offset))) //nolint:gosec // clamped above
	if err != nil {
		return nil, 0, fmt.Errorf("entityRepo.List: %w", err)
	}

	out := make([]*domain.Entity, 0, len(res.Rows))
	for _, row := range res.Rows {
		e, err := scanEntity(row)
		if err != nil {
			return nil, 0, fmt.Errorf("entityRepo.List: %w", err)
		}
		out = append(out, e)
	}
	return out, total, nil
}

// Update replaces key, data and parent of an existing entity.
func (r *EntityRepo) Update(ctx context.Context, e *domain.Entity) error {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("entityRepo.Update: encode data: %w", err)
	}
	e.UpdatedAt = now()

	res, err := run(ctx, r.exec, builder.Update(entitiesTable).
		SetMap(map[string]any{
			"key":        e.Key,
			"data":       string(data),
			"parent_id":  nilIfNil(e.ParentID),
			"updated_at": e.UpdatedAt,
		}).
		Where(sq.Eq{"kind": e.Kind, "id": e.ID}))
	if err != nil {
		return fmt.Errorf("entityRepo.Update: %w", err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("entityRepo.Update: %s %s: %w", e.Kind, e.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *EntityRepo) Delete(ctx context.Context, kind, id string) error {
	res, err := run(ctx, r.exec, builder.Delete(entitiesTable).
		Where(sq.Eq{"kind": kind, "id": id}))
	if err != nil {
		return fmt.Errorf("entityRepo.Delete: %w", err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("entityRepo.Delete: %s %s: %w", kind, id, domain.ErrNotFound)
	}
	return nil
}

func scanEntity(row store.Row) (*domain.Entity, error) {
	data, err := asJSONMap(row["data"])
	if err != nil {
		return nil, err
	}
	return &domain.Entity{
		ID:        asString(row["id"]),
		Kind:      asString(row["kind"]),
		Key:       asString(row["key"]),
		Data:      data,
		ParentID:  asStringPtr(row["parent_id"]),
		CreatedAt: asTime(row["created_at"]),
		UpdatedAt: asTime(row["updated_at"]),
	}, nil
}
