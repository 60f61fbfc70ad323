package v1

import (
	"context"

	"github.com/nitinbetharia/schoolerp/internal/auth"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/registry"
	redisstore "github.com/nitinbetharia/schoolerp/internal/store/redis"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Login(ctx context.Context, tc *tenant.Context, identifier, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sess *redisstore.Session) (*domain.User, error)
}

// Registry abstracts the connection registry for handler testing.
// *registry.Registry satisfies this interface.
type Registry interface {
	Get(ctx context.Context, tc tenant.Context) (*registry.Handle, error)
	System(ctx context.Context) (*registry.Handle, error)
	Lookup(code string) (*registry.Handle, bool)
	Naming() tenant.Naming
	Stats() []registry.HandleStats
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
