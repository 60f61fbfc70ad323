package models_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/config"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/models"
	"github.com/nitinbetharia/schoolerp/internal/registry"
	"github.com/nitinbetharia/schoolerp/internal/store"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	dbCfg := config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		SQLiteDir:    t.TempDir(),
		SystemName:   "school_erp_system",
		TenantPrefix: "school_erp_trust_",
		MaxConns:     4,
		AutoMigrate:  true,
	}
	cfg := registry.ConfigFrom(dbCfg)
	cfg.HealthInterval = time.Hour
	r := registry.New(cfg, registry.NewOpener(dbCfg, registry.CreateMissing()))
	t.Cleanup(r.Close)
	return r
}

func tenantHandle(t *testing.T, r *registry.Registry, code string) *registry.Handle {
	t.Helper()
	h, err := r.Get(context.Background(), r.Naming().For(code, tenant.SourceHeader))
	require.NoError(t, err)
	return h
}

func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %T: %v", err, err)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, code, ae.Code)
}

// ---------------------------------------------------------------------------
// Set caching
// ---------------------------------------------------------------------------

func TestFor_CachedPerHandle(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)
	h := tenantHandle(t, r, "demo")

	assert.Same(t, models.For(h), models.For(h))
	assert.Equal(t, domain.ScopeTenant, models.For(h).Users.Scope())

	sys, err := r.System(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeSystem, models.For(sys).Users.Scope())
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

func TestEntityRepo_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := models.For(tenantHandle(t, newRegistry(t), "demo"))

	e := &domain.Entity{Kind: "student", Key: "S-001", Data: map[string]any{"name": "Asha", "grade": float64(5)}}
	require.NoError(t, m.Entities.Create(ctx, e))
	require.NotEmpty(t, e.ID)

	got, err := m.Entities.Get(ctx, "student", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "S-001", got.Key)
	assert.Equal(t, "Asha", got.Data["name"])
	assert.InDelta(t, 5, got.Data["grade"], 0)
	assert.Nil(t, got.ParentID)
	assert.WithinDuration(t, e.CreatedAt, got.CreatedAt, time.Second)

	got.Data["name"] = "Asha R"
	got.Key = "S-001A"
	require.NoError(t, m.Entities.Update(ctx, got))

	again, err := m.Entities.Get(ctx, "student", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "S-001A", again.Key)
	assert.Equal(t, "Asha R", again.Data["name"])

	require.NoError(t, m.Entities.Delete(ctx, "student", e.ID))
	_, err = m.Entities.Get(ctx, "student", e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntityRepo_KindScopesLookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := models.For(tenantHandle(t, newRegistry(t), "demo"))

	e := &domain.Entity{Kind: "student", Key: "S-001"}
	require.NoError(t, m.Entities.Create(ctx, e))

	_, err := m.Entities.Get(ctx, "teacher", e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, m.Entities.Delete(ctx, "teacher", e.ID), domain.ErrNotFound)
	assert.ErrorIs(t, m.Entities.Update(ctx, &domain.Entity{ID: e.ID, Kind: "teacher", Key: "x"}), domain.ErrNotFound)
}

func TestEntityRepo_ListPaginates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := models.For(tenantHandle(t, newRegistry(t), "demo"))

	school := &domain.Entity{Kind: "school", Key: "SCH-1"}
	require.NoError(t, m.Entities.Create(ctx, school))
	for _, key := range []string{"C-1", "C-2", "C-3"} {
		require.NoError(t, m.Entities.Create(ctx, &domain.Entity{Kind: "class", Key: key, ParentID: &school.ID}))
	}
	require.NoError(t, m.Entities.Create(ctx, &domain.Entity{Kind: "class", Key: "C-orphan"}))

	tests := []struct {
		name      string
		filter    domain.EntityFilter
		wantLen   int
		wantTotal int
	}{
		{name: "all of kind", filter: domain.EntityFilter{Kind: "class"}, wantLen: 4, wantTotal: 4},
		{name: "by parent", filter: domain.EntityFilter{Kind: "class", ParentID: school.ID}, wantLen: 3, wantTotal: 3},
		{name: "limited", filter: domain.EntityFilter{Kind: "class", Limit: 2}, wantLen: 2, wantTotal: 4},
		{name: "offset past end", filter: domain.EntityFilter{Kind: "class", Offset: 10}, wantLen: 0, wantTotal: 4},
		{name: "other kind", filter: domain.EntityFilter{Kind: "school"}, wantLen: 1, wantTotal: 1},
		{name: "unknown kind", filter: domain.EntityFilter{Kind: "bus"}, wantLen: 0, wantTotal: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := m.Entities.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, list, tt.wantLen)
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestEntityRepo_DuplicateKeyIsConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := models.For(tenantHandle(t, newRegistry(t), "demo"))

	require.NoError(t, m.Entities.Create(ctx, &domain.Entity{Kind: "student", Key: "S-001"}))
	err := m.Entities.Create(ctx, &domain.Entity{Kind: "student", Key: "S-001"})
	requireCode(t, err, http.StatusConflict, apperr.CodeDuplicateEntry)

	ae, _ := apperr.As(err)
	var fields []string
	for _, f := range ae.Fields() {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"kind", "key"}, fields)

	// Same key under another kind is fine.
	require.NoError(t, m.Entities.Create(ctx, &domain.Entity{Kind: "teacher", Key: "S-001"}))
}

func TestEntityRepo_MissingParentIsBusinessRule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := models.For(tenantHandle(t, newRegistry(t), "demo"))

	ghost := "does-not-exist"
	err := m.Entities.Create(ctx, &domain.Entity{Kind: "class", Key: "C-1", ParentID: &ghost})
	requireCode(t, err, http.StatusUnprocessableEntity, apperr.CodeReferenceMissing)
}

func TestEntityRepo_TxAllOrNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := tenantHandle(t, newRegistry(t), "demo")
	m := models.For(h)

	err := h.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		repo := m.Entities.Tx(q)
		if err := repo.Create(ctx, &domain.Entity{Kind: "student", Key: "S-1"}); err != nil {
			return err
		}
		return repo.Create(ctx, &domain.Entity{Kind: "student", Key: "S-1"})
	})
	requireCode(t, err, http.StatusConflict, apperr.CodeDuplicateEntry)

	_, total, err := m.Entities.List(ctx, domain.EntityFilter{Kind: "student"})
	require.NoError(t, err)
	assert.Zero(t, total)

	err = h.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		repo := m.Entities.Tx(q)
		for _, key := range []string{"S-1", "S-2"} {
			if err := repo.Create(ctx, &domain.Entity{Kind: "student", Key: key}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	_, total, err = m.Entities.List(ctx, domain.EntityFilter{Kind: "student"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func TestUserRepo_CreateAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := models.For(tenantHandle(t, newRegistry(t), "demo"))

	u := &domain.User{
		Username:     "teacher1",
		Email:        "Teacher1@Demo.School",
		PasswordHash: "$2a$12$hash",
		FullName:     "First Teacher",
		Role:         domain.RoleStaff,
		Active:       true,
	}
	require.NoError(t, m.Users.Create(ctx, u))
	assert.Equal(t, "teacher1@demo.school", u.Email)

	byName, err := m.Users.GetByLogin(ctx, "teacher1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
	assert.True(t, byName.Active)
	assert.Nil(t, byName.LastLoginAt)

	byEmail, err := m.Users.GetByLogin(ctx, "TEACHER1@demo.school")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = m.Users.GetByLogin(ctx, "nobody")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	at := time.Now().UTC()
	require.NoError(t, m.Users.TouchLogin(ctx, u.ID, at))
	touched, err := m.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, touched.LastLoginAt)
	assert.WithinDuration(t, at, *touched.LastLoginAt, time.Second)

	assert.ErrorIs(t, m.Users.TouchLogin(ctx, "ghost", at), domain.ErrNotFound)
}

func TestUserRepo_InactiveAndDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := models.For(tenantHandle(t, newRegistry(t), "demo"))

	require.NoError(t, m.Users.Create(ctx, &domain.User{Username: "old", PasswordHash: "x", Role: domain.RoleViewer}))
	old, err := m.Users.GetByLogin(ctx, "old")
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.Empty(t, old.Email)

	err = m.Users.Create(ctx, &domain.User{Username: "old", PasswordHash: "x", Role: domain.RoleViewer})
	requireCode(t, err, http.StatusConflict, apperr.CodeDuplicateEntry)

	users, err := m.Users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUserRepo_SystemAndTenantStoresAreSeparate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRegistry(t)
	sys, err := r.System(ctx)
	require.NoError(t, err)

	require.NoError(t, models.For(sys).Users.Create(ctx, &domain.User{
		Username: "admin", PasswordHash: "x", Role: domain.RoleSystemAdmin, Active: true,
	}))

	_, err = models.For(tenantHandle(t, r, "demo")).Users.GetByLogin(ctx, "admin")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	found, err := models.For(sys).Users.GetByLogin(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSystemAdmin, found.Role)
}
