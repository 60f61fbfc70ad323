package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/server/middleware"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// LoginInput accepts a username or an email address as the identifier.
type LoginInput struct {
	Body struct {
		Username string `json:"username,omitempty" validate:"required,notblank,max=255" doc:"Username or email address"`
		Password string `json:"password,omitempty" validate:"required,max=128" doc:"Password"` //nolint:gosec // login credential DTO
	}
}

func (in *LoginInput) Resolve(huma.Context) []error { return check(in) }

type LoginData struct {
	Token     string       `json:"token"` //nolint:gosec // session token returned to the client
	ExpiresAt time.Time    `json:"expires_at"`
	Scope     domain.Scope `json:"scope"`
	Tenant    string       `json:"tenant,omitempty"`
	User      *domain.User `json:"user"`
}

type LoginOutput struct {
	SetCookie string `header:"Set-Cookie"`
	Body      Envelope[LoginData]
}

type LogoutData struct {
	SessionID string `json:"session_id"`
}

type LogoutOutput struct {
	SetCookie string `header:"Set-Cookie"`
	Body      Envelope[LogoutData]
}

type MeData struct {
	User      *domain.User `json:"user"`
	Scope     domain.Scope `json:"scope"`
	Tenant    string       `json:"tenant,omitempty"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

func (c CookieConfig) set(value string, expires time.Time) string {
	return (&http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}).String()
}

func (c CookieConfig) clear() string {
	return (&http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}).String()
}

// RegisterLoginRoute registers the login operation. It authenticates against
// the resolved tenant, or against the system store when the request carries
// no tenant.
func RegisterLoginRoute(api huma.API, svc AuthService, cookie CookieConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in and start a session",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
		var tcp *tenant.Context
		if tc, ok := tenant.FromContext(ctx); ok {
			tcp = &tc
		}

		res, err := svc.Login(ctx, tcp, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, err
		}

		return &LoginOutput{
			SetCookie: cookie.set(res.Token, res.Session.ExpiresAt),
			Body: Envelope[LoginData]{
				Success: true,
				Message: "Login successful",
				Data: LoginData{
					Token:     res.Token,
					ExpiresAt: res.Session.ExpiresAt,
					Scope:     res.Session.Scope,
					Tenant:    res.Session.TenantCode,
					User:      res.User,
				},
			},
		}, nil
	})
}

// RegisterSessionRoutes registers the operations on the caller's session.
// The API must sit behind RequireAuth.
func RegisterSessionRoutes(api huma.API, svc AuthService, cookie CookieConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "End the current session",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, _ *struct{}) (*LogoutOutput, error) {
		sess, ok := middleware.SessionFromContext(ctx)
		if !ok {
			return nil, apperr.Authentication("Authentication required")
		}
		if err := svc.Logout(ctx, sess.ID); err != nil {
			return nil, err
		}

		return &LogoutOutput{
			SetCookie: cookie.clear(),
			Body:      Envelope[LogoutData]{Success: true, Message: "Logged out", Data: LogoutData{SessionID: sess.ID}},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-current-user",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Get the authenticated user",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, _ *struct{}) (*Output[MeData], error) {
		sess, ok := middleware.SessionFromContext(ctx)
		if !ok {
			return nil, apperr.Authentication("Authentication required")
		}
		u, err := svc.CurrentUser(ctx, sess)
		if err != nil {
			return nil, err
		}

		return success("", MeData{
			User:      u,
			Scope:     sess.Scope,
			Tenant:    sess.TenantCode,
			ExpiresAt: sess.ExpiresAt,
		}), nil
	})
}
