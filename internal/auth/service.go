package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	redisstore "github.com/nitinbetharia/schoolerp/internal/store/redis"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// UsersFunc returns the user repository of the store tc points at.
type UsersFunc func(ctx context.Context, tc tenant.Context) (domain.UserRepository, error)

// SessionStore persists sessions between requests.
type SessionStore interface {
	Create(ctx context.Context, sess *redisstore.Session) error
	Get(ctx context.Context, id string) (*redisstore.Session, error)
	Delete(ctx context.Context, id string) error
}

// Service authenticates users against the system store or a tenant store
// and manages their sessions.
type Service struct {
	users    UsersFunc
	sessions SessionStore
	naming   tenant.Naming
	secret   string
	ttl      time.Duration
}

func NewService(users UsersFunc, sessions SessionStore, naming tenant.Naming, secret string, ttl time.Duration) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		naming:   naming,
		secret:   secret,
		ttl:      ttl,
	}
}

// LoginResult is a successful login.
type LoginResult struct {
	Token   string
	Session *redisstore.Session
	User    *domain.User
}

// Login checks identifier and password. Without a tenant it authenticates a
// system user; with one it authenticates a user of that tenant only.
func (s *Service) Login(ctx context.Context, tc *tenant.Context, identifier, password string) (*LoginResult, error) {
	target := s.naming.System()
	scope := domain.ScopeSystem
	if tc != nil {
		target = *tc
		scope = domain.ScopeTenant
	}

	repo, err := s.users(ctx, target)
	if err != nil {
		return nil, err
	}

	u, err := repo.GetByLogin(ctx, identifier)
	if errors.Is(err, domain.ErrNotFound) {
		CheckPassword(dummyHash(), password)
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	if !CheckPassword(u.PasswordHash, password) {
		return nil, invalidCredentials()
	}
	if !u.Active {
		return nil, apperr.Authorization("Account is inactive", apperr.WithCode(apperr.CodeAccountInactive))
	}
	if !domain.ValidRole(scope, u.Role) {
		return nil, apperr.Authorization("Account role is not permitted here", apperr.WithCode(apperr.CodeForbidden))
	}

	now := time.Now().UTC()
	if err := repo.TouchLogin(ctx, u.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", u.ID).Msg("recording last login failed")
	}

	sess := &redisstore.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		Scope:     scope,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if scope == domain.ScopeTenant {
		sess.TenantCode = target.Code
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	token, err := IssueToken(s.secret, Claims{
		SessionID:  sess.ID,
		TenantCode: sess.TenantCode,
		UserID:     sess.UserID,
		Role:       sess.Role,
		Scope:      sess.Scope,
	}, sess.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	return &LoginResult{Token: token, Session: sess, User: u}, nil
}

// Authenticate resolves a session token to its live session.
func (s *Service) Authenticate(ctx context.Context, token string) (*redisstore.Session, error) {
	claims, err := ParseToken(s.secret, token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Authentication("Session token has expired",
				apperr.WithCode(apperr.CodeTokenExpired), apperr.WithCause(err))
		}
		return nil, apperr.Authentication("Session token is invalid",
			apperr.WithCode(apperr.CodeTokenInvalid), apperr.WithCause(err))
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, redisstore.ErrSessionNotFound) {
		return nil, apperr.Authentication("Session has expired, please log in again",
			apperr.WithCode(apperr.CodeSessionExpired), apperr.WithCause(err))
	}
	if err != nil {
		return nil, fmt.Errorf("auth.Authenticate: %w", err)
	}

	if sess.UserID != claims.UserID || sess.TenantCode != claims.TenantCode {
		return nil, apperr.Authentication("Session token is invalid", apperr.WithCode(apperr.CodeTokenInvalid))
	}
	return sess, nil
}

// Logout ends the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("auth.Logout: %w", err)
	}
	return nil
}

// CurrentUser loads the user a session belongs to from the session's store.
func (s *Service) CurrentUser(ctx context.Context, sess *redisstore.Session) (*domain.User, error) {
	target := s.naming.System()
	if sess.Scope == domain.ScopeTenant {
		target = s.naming.For(sess.TenantCode, tenant.SourceSession)
	}

	repo, err := s.users(ctx, target)
	if err != nil {
		return nil, err
	}
	u, err := repo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("auth.CurrentUser: %w", err)
	}
	return u, nil
}

func invalidCredentials() error {
	return apperr.Authentication("Invalid username or password", apperr.WithCode(apperr.CodeInvalidCredential))
}
