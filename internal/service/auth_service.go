package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitekit/internal/apiclient"
	"sitekit/internal/domain"
	"sitekit/internal/kvstore"
)

// RemoteAuthenticator valida credenciales contra el backend del sitio.
type RemoteAuthenticator interface {
	Login(ctx context.Context, username, password string) (domain.User, error)
}

// LoginSource indica quien valido las credenciales.
type LoginSource string

const (
	LoginSourceRemote LoginSource = "remote"
	LoginSourceLocal  LoginSource = "local"
)

type LoginInput struct {
	Username   string
	Password   string
	RememberMe bool
	Path       string
}

type LoginResult struct {
	User      domain.User
	Token     string
	ExpiresAt time.Time
	Source    LoginSource
}

// SessionStatus es la vista de la sesion que consume la UI.
type SessionStatus struct {
	State      domain.SessionState `json:"state"`
	Remaining  time.Duration       `json:"remaining"`
	User       *domain.User        `json:"user,omitempty"`
	RememberMe bool                `json:"remember_me"`
}

// AuthService maneja login, identidad y sesion de un origen.
type AuthService struct {
	store   *kvstore.Store
	tokens  *TokenService
	remote  RemoteAuthenticator
	limiter LoginRateLimiter
	users   *UserDirectory
	monitor *SessionMonitor
	logger  *zap.Logger
}

func NewAuthService(
	store *kvstore.Store,
	tokens *TokenService,
	remote RemoteAuthenticator,
	limiter LoginRateLimiter,
	users *UserDirectory,
	monitor *SessionMonitor,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		store:   store,
		tokens:  tokens,
		remote:  remote,
		limiter: limiter,
		users:   users,
		monitor: monitor,
		logger:  logger,
	}
}

// Login prueba primero el backend remoto y cae a la lista local solo si el
// remoto no esta disponible. Un 4xx remoto es un rechazo definitivo.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	if s.limiter != nil && !s.limiter.Allow(strings.ToLower(username)) {
		s.logger.Warn("login rate limited", zap.String("username", username))
		return LoginResult{}, ErrRateLimited
	}

	user, source, err := s.authenticate(ctx, username, in.Password)
	if err != nil {
		s.logger.Info("login rejected", zap.String("username", username), zap.Error(err))
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, ErrUserInactive
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	user = user.Public()
	if err := s.store.Set(ctx, domain.KeyToken, token); err != nil {
		return LoginResult{}, err
	}
	if err := s.store.Set(ctx, domain.KeyUser, user); err != nil {
		return LoginResult{}, err
	}
	if err := s.store.Set(ctx, domain.KeyRememberMe, in.RememberMe); err != nil {
		return LoginResult{}, err
	}
	if err := s.monitor.Start(ctx, in.Path); err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("login succeeded",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("source", string(source)),
	)
	return LoginResult{User: user, Token: token, ExpiresAt: expiresAt, Source: source}, nil
}

func (s *AuthService) authenticate(ctx context.Context, username, password string) (domain.User, LoginSource, error) {
	if s.remote != nil {
		user, err := s.remote.Login(ctx, username, password)
		if err == nil {
			if !user.Role.Valid() || user.ID == "" {
				return domain.User{}, "", fmt.Errorf("%w: remote user incomplete", ErrInvalidCredentials)
			}
			return user, LoginSourceRemote, nil
		}
		if status := apiclient.StatusCode(err); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			if status == http.StatusForbidden {
				return domain.User{}, "", ErrUserInactive
			}
			return domain.User{}, "", ErrInvalidCredentials
		}
		if errors.Is(err, context.Canceled) {
			return domain.User{}, "", err
		}
		s.logger.Warn("remote auth unavailable, using local users", zap.Error(err))
	}

	if s.users != nil {
		if _, err := s.users.Seed(ctx, s.store); err != nil {
			return domain.User{}, "", err
		}
	}
	user, err := authenticateLocal(ctx, s.store, username, password)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, LoginSourceLocal, nil
}

// Logout cancela los timers y borra todas las claves del origen.
func (s *AuthService) Logout(ctx context.Context) error {
	s.monitor.Stop()
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("logout")
	return nil
}

// IsAuthenticated exige un token valido y una sesion no expirada.
func (s *AuthService) IsAuthenticated(ctx context.Context) bool {
	token, ok := s.Token(ctx)
	if !ok || !s.tokens.Verify(token) {
		return false
	}
	state, err := s.monitor.Check(ctx)
	if err != nil {
		s.logger.Warn("session check failed", zap.Error(err))
		return false
	}
	return state == domain.SessionActive || state == domain.SessionWarned
}

// Token devuelve el token guardado, sin verificarlo.
func (s *AuthService) Token(ctx context.Context) (string, bool) {
	var token string
	ok, err := s.store.Get(ctx, domain.KeyToken, &token)
	if err != nil || !ok || token == "" {
		return "", false
	}
	return token, true
}

func (s *AuthService) CurrentUser(ctx context.Context) (domain.User, bool) {
	if !s.IsAuthenticated(ctx) {
		return domain.User{}, false
	}
	var user domain.User
	ok, err := s.store.Get(ctx, domain.KeyUser, &user)
	if err != nil || !ok {
		return domain.User{}, false
	}
	return user, true
}

func (s *AuthService) HasRole(ctx context.Context, roles ...domain.Role) bool {
	user, ok := s.CurrentUser(ctx)
	if !ok {
		return false
	}
	for _, r := range roles {
		if user.Role == r {
			return true
		}
	}
	return false
}

// CanAccessProject: admin y staff ven todo; un cliente solo sus proyectos.
func (s *AuthService) CanAccessProject(ctx context.Context, projectID string) bool {
	user, ok := s.CurrentUser(ctx)
	if !ok {
		return false
	}
	switch user.Role {
	case domain.RoleAdmin, domain.RoleStaff:
		return true
	case domain.RoleClient:
		return user.HasProject(projectID)
	}
	return false
}

// RecordActivity resetea el timer de inactividad.
func (s *AuthService) RecordActivity(ctx context.Context, path string) error {
	return s.monitor.Touch(ctx, path)
}

func (s *AuthService) SessionStatus(ctx context.Context) (SessionStatus, error) {
	if _, err := s.monitor.Check(ctx); err != nil {
		return SessionStatus{}, err
	}
	state, remaining, err := s.monitor.State(ctx)
	if err != nil {
		return SessionStatus{}, err
	}
	status := SessionStatus{State: state, Remaining: remaining}
	var remember bool
	if ok, _ := s.store.Get(ctx, domain.KeyRememberMe, &remember); ok {
		status.RememberMe = remember
	}
	if state == domain.SessionActive || state == domain.SessionWarned {
		var user domain.User
		if ok, _ := s.store.Get(ctx, domain.KeyUser, &user); ok {
			status.User = &user
		}
	}
	return status, nil
}
