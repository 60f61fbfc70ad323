package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/models"
	"github.com/nitinbetharia/schoolerp/internal/registry"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
	"github.com/nitinbetharia/schoolerp/internal/store"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// EntityBody is the writable part of an entity.
type EntityBody struct {
	Key      string         `json:"key,omitempty" validate:"required,notblank,max=128" doc:"Natural key, unique per kind"`
	Data     map[string]any `json:"data,omitempty" doc:"Free-form attributes"`
	ParentID *string        `json:"parent_id,omitempty" validate:"omitempty,max=64" doc:"Parent entity ID"`
}

func (b EntityBody) entity(kind string) *domain.Entity {
	return &domain.Entity{Kind: kind, Key: b.Key, Data: b.Data, ParentID: b.ParentID}
}

type ListEntitiesInput struct {
	Kind     string `path:"kind" validate:"required,entitykind" doc:"Entity kind, e.g. students"`
	Limit    int    `query:"limit" validate:"omitempty,min=1,max=500" doc:"Page size (default 50)"`
	Offset   int    `query:"offset" validate:"omitempty,min=0" doc:"Rows to skip"`
	ParentID string `query:"parent_id" validate:"omitempty,max=64" doc:"Only children of this entity"`
}

func (in *ListEntitiesInput) Resolve(huma.Context) []error { return check(in) }

type CreateEntityInput struct {
	Kind string `path:"kind" validate:"required,entitykind" doc:"Entity kind"`
	Body EntityBody
}

func (in *CreateEntityInput) Resolve(huma.Context) []error { return check(in) }

type BatchCreateEntitiesInput struct {
	Kind string `path:"kind" validate:"required,entitykind" doc:"Entity kind"`
	Body struct {
		Items []EntityBody `json:"items,omitempty" validate:"required,min=1,max=100,dive" doc:"Entities to create, all or none"`
	}
}

func (in *BatchCreateEntitiesInput) Resolve(huma.Context) []error { return check(in) }

type EntityPathInput struct {
	Kind string `path:"kind" validate:"required,entitykind" doc:"Entity kind"`
	ID   string `path:"id" validate:"required,max=64" doc:"Entity ID"`
}

func (in *EntityPathInput) Resolve(huma.Context) []error { return check(in) }

type UpdateEntityInput struct {
	Kind string `path:"kind" validate:"required,entitykind" doc:"Entity kind"`
	ID   string `path:"id" validate:"required,max=64" doc:"Entity ID"`
	Body EntityBody
}

func (in *UpdateEntityInput) Resolve(huma.Context) []error { return check(in) }

type DeletedData struct {
	ID string `json:"id"`
}

// tenantHandle returns the connection handle of the request's tenant.
func tenantHandle(ctx context.Context, reg Registry) (*registry.Handle, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, apperr.Validation("A tenant is required for this request", apperr.WithCode(apperr.CodeTenantRequired))
	}
	return reg.Get(ctx, tc)
}

// RegisterEntityRoutes registers the entity operations. The API must sit
// behind tenant resolution and RequireAuth; roles are checked per operation.
func RegisterEntityRoutes(api huma.API, reg Registry) {
	huma.Register(api, huma.Operation{
		OperationID: "list-entities",
		Method:      http.MethodGet,
		Path:        "/entities/{kind}",
		Summary:     "List entities of a kind",
		Tags:        []string{"Entities"},
		Middlewares: requireRole(api, tenantRoles...),
	}, func(ctx context.Context, input *ListEntitiesInput) (*Output[[]*domain.Entity], error) {
		h, err := tenantHandle(ctx, reg)
		if err != nil {
			return nil, err
		}

		list, total, err := models.For(h).Entities.List(ctx, domain.EntityFilter{
			Kind:     input.Kind,
			ParentID: input.ParentID,
			Limit:    input.Limit,
			Offset:   input.Offset,
		})
		if err != nil {
			return nil, err
		}

		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		return paged(list, respond.Meta{Total: total, Limit: limit, Offset: input.Offset}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-entity",
		Method:        http.MethodPost,
		Path:          "/entities/{kind}",
		Summary:       "Create an entity",
		Tags:          []string{"Entities"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   requireRole(api, writerRoles...),
	}, func(ctx context.Context, input *CreateEntityInput) (*Output[*domain.Entity], error) {
		h, err := tenantHandle(ctx, reg)
		if err != nil {
			return nil, err
		}

		e := input.Body.entity(input.Kind)
		if err := models.For(h).Entities.Create(ctx, e); err != nil {
			return nil, err
		}
		return success("Entity created", e), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "batch-create-entities",
		Method:        http.MethodPost,
		Path:          "/entities/{kind}/batch",
		Summary:       "Create several entities in one transaction",
		Tags:          []string{"Entities"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   requireRole(api, writerRoles...),
	}, func(ctx context.Context, input *BatchCreateEntitiesInput) (*Output[[]*domain.Entity], error) {
		h, err := tenantHandle(ctx, reg)
		if err != nil {
			return nil, err
		}

		created := make([]*domain.Entity, 0, len(input.Body.Items))
		err = h.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
			repo := models.For(h).Entities.Tx(q)
			for _, item := range input.Body.Items {
				e := item.entity(input.Kind)
				if err := repo.Create(ctx, e); err != nil {
					return err
				}
				created = append(created, e)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		out := paged(created, respond.Meta{Total: len(created), Limit: len(created)})
		out.Body.Message = "Entities created"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/entities/{kind}/{id}",
		Summary:     "Get an entity",
		Tags:        []string{"Entities"},
		Middlewares: requireRole(api, tenantRoles...),
	}, func(ctx context.Context, input *EntityPathInput) (*Output[*domain.Entity], error) {
		h, err := tenantHandle(ctx, reg)
		if err != nil {
			return nil, err
		}

		e, err := models.For(h).Entities.Get(ctx, input.Kind, input.ID)
		if err != nil {
			return nil, err
		}
		return success("", e), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-entity",
		Method:      http.MethodPut,
		Path:        "/entities/{kind}/{id}",
		Summary:     "Replace an entity",
		Tags:        []string{"Entities"},
		Middlewares: requireRole(api, writerRoles...),
	}, func(ctx context.Context, input *UpdateEntityInput) (*Output[*domain.Entity], error) {
		h, err := tenantHandle(ctx, reg)
		if err != nil {
			return nil, err
		}

		repo := models.For(h).Entities
		e := input.Body.entity(input.Kind)
		e.ID = input.ID
		if err := repo.Update(ctx, e); err != nil {
			return nil, err
		}

		updated, err := repo.Get(ctx, input.Kind, input.ID)
		if err != nil {
			return nil, err
		}
		return success("Entity updated", updated), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-entity",
		Method:      http.MethodDelete,
		Path:        "/entities/{kind}/{id}",
		Summary:     "Delete an entity",
		Tags:        []string{"Entities"},
		Middlewares: requireRole(api, adminRoles...),
	}, func(ctx context.Context, input *EntityPathInput) (*Output[DeletedData], error) {
		h, err := tenantHandle(ctx, reg)
		if err != nil {
			return nil, err
		}

		if err := models.For(h).Entities.Delete(ctx, input.Kind, input.ID); err != nil {
			return nil, err
		}
		return success("Entity deleted", DeletedData{ID: input.ID}), nil
	})
}
