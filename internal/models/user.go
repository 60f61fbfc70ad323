package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/store"
)

var userColumns = []string{
	"id", "username", "email", "password_hash", "full_name", "role",
	"active", "last_login_at", "created_at", "updated_at",
}

// UserRepo persists login accounts. The system store keeps them in
// system_users, tenant stores in users.
type UserRepo struct {
	exec  ExecFunc
	table string
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(exec ExecFunc, system bool) *UserRepo {
	table := "users"
	if system {
		table = "system_users"
	}
	return &UserRepo{exec: exec, table: table}
}

// Tx returns a repository whose statements run on q.
func (r *UserRepo) Tx(q store.Querier) *UserRepo {
	return &UserRepo{exec: q.Exec, table: r.table}
}

// Scope reports which store the repository reads.
func (r *UserRepo) Scope() domain.Scope {
	if r.table == "system_users" {
		return domain.ScopeSystem
	}
	return domain.ScopeTenant
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt

	_, err := run(ctx, r.exec, builder.Insert(r.table).
		Columns(userColumns...).
		Values(u.ID, u.Username, nilIfEmpty(u.Email), u.PasswordHash, u.FullName, u.Role,
			u.Active, nil, u.CreatedAt, u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "userRepo.GetByID", sq.Eq{"id": id})
}

// GetByLogin finds the user whose username equals identifier, or whose email
// equals it case-insensitively.
func (r *UserRepo) GetByLogin(ctx context.Context, identifier string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	return r.getOne(ctx, "userRepo.GetByLogin", sq.Or{
		sq.Eq{"username": identifier},
		sq.Eq{"email": strings.ToLower(identifier)},
	})
}

func (r *UserRepo) List(ctx context.Context) ([]*domain.User, error) {
	res, err := run(ctx, r.exec, builder.Select(userColumns...).
		From(r.table).
		OrderBy("created_at", "id").
		Limit(maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("userRepo.List: %w", err)
	}

	users := make([]*domain.User, 0, len(res.Rows))
	for _, row := range res.Rows {
		users = append(users, scanUser(row))
	}
	return users, nil
}

func (r *UserRepo) TouchLogin(ctx context.Context, id string, at time.Time) error {
	at = at.UTC().Truncate(time.Microsecond)
	res, err := run(ctx, r.exec, builder.Update(r.table).
		Set("last_login_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("userRepo.TouchLogin: %w", err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("userRepo.TouchLogin: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, op string, where sq.Sqlizer) (*domain.User, error) {
	res, err := run(ctx, r.exec, builder.Select(userColumns...).
		From(r.table).
		Where(where).
		Limit(1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return scanUser(res.Rows[0]), nil
}

func scanUser(row store.Row) *domain.User {
	return &domain.User{
		ID:           asString(row["id"]),
		Username:     asString(row["username"]),
		Email:        asString(row["email"]),
		PasswordHash: asString(row["password_hash"]),
		FullName:     asString(row["full_name"]),
		Role:         asString(row["role"]),
		Active:       asBool(row["active"]),
		LastLoginAt:  asTimePtr(row["last_login_at"]),
		CreatedAt:    asTime(row["created_at"]),
		UpdatedAt:    asTime(row["updated_at"]),
	}
}
