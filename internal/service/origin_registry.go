package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sitekit/internal/apiclient"
	"sitekit/internal/cache"
	"sitekit/internal/domain"
	"sitekit/internal/errlog"
	"sitekit/internal/kvstore"
)

var ErrInvalidOrigin = errors.New("invalid origin id")

// Origin agrupa los servicios de un visitante. Cada origen tiene su propio
// espacio de claves y su propio monitor de sesion.
type Origin struct {
	ID     string
	Store  *kvstore.Store
	Auth   *AuthService
	API    *apiclient.Client
	Perf   *PerfRecorder
	Logger *zap.Logger
}

// Client devuelve el cliente API con el bearer token del origen, si lo hay.
func (o *Origin) Client(ctx context.Context) *apiclient.Client {
	if token, ok := o.Auth.Token(ctx); ok {
		return o.API.WithToken(token)
	}
	return o.API
}

const (
	defaultMaxOrigins = 10000
	defaultOriginIdle = 30 * time.Minute
	releaseTimeout    = 5 * time.Second
)

// Claves que sobreviven a la liberacion de un origen sin sesion: lo que el
// visitante envio y aun no llego al backend.
var retainedOnRelease = map[string]struct{}{
	domain.KeyPendingQuotes:        {},
	domain.KeyPendingNewsletter:    {},
	domain.KeyPendingCostEstimates: {},
	domain.KeyFeedbackQueue:        {},
}

type RegistryDeps struct {
	Store          *kvstore.Store
	Tokens         *TokenService
	Limiter        LoginRateLimiter
	API            *apiclient.Client
	Users          *UserDirectory
	Logger         *zap.Logger
	SessionTimeout time.Duration
	SessionWarning time.Duration
	ErrorLogMax    int
	MaxOrigins     int
	IdleTTL        time.Duration
}

// Registry construye los origenes bajo demanda y los mantiene en un LRU con
// expiracion por inactividad. Al salir del LRU se paran los timers del origen
// y, si no tiene sesion viva, se borran sus claves salvo las colas pendientes.
type Registry struct {
	mu        sync.Mutex
	deps      RegistryDeps
	origins   *expirable.LRU[string, *Origin]
	summaries *cache.TTL[[]MetricSummary]
	releases  sync.WaitGroup
}

func NewRegistry(deps RegistryDeps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxOrigins <= 0 {
		deps.MaxOrigins = defaultMaxOrigins
	}
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = deps.SessionTimeout
	}
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = defaultOriginIdle
	}
	r := &Registry{
		deps:      deps,
		summaries: cache.NewTTL[[]MetricSummary](),
	}
	r.origins = expirable.NewLRU[string, *Origin](deps.MaxOrigins, r.evicted, deps.IdleTTL)
	return r
}

// NewOriginID genera un id nuevo para la cookie de origen.
func NewOriginID() string {
	return uuid.NewString()
}

// Get devuelve el origen y renueva su expiracion. Construirlo no toca el store:
// los usuarios se siembran en el primer login local.
func (r *Registry) Get(ctx context.Context, id string) (*Origin, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidOrigin
	}
	id = parsed.String()

	if o, ok := r.origins.Get(id); ok {
		r.origins.Add(id, o)
		return o, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.origins.Get(id); ok {
		r.origins.Add(id, o)
		return o, nil
	}
	// una entrada vencida que el LRU aun no limpio se libera antes de reemplazarla
	r.origins.Remove(id)
	o := r.build(id)
	r.origins.Add(id, o)
	return o, nil
}

func (r *Registry) Len() int {
	return r.origins.Len()
}

// evicted corre bajo el lock del LRU; la liberacion va aparte.
func (r *Registry) evicted(id string, o *Origin) {
	r.releases.Add(1)
	go func() {
		defer r.releases.Done()
		r.release(id, o)
	}()
}

func (r *Registry) release(id string, o *Origin) {
	o.Auth.monitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	state, _, err := o.Auth.monitor.State(ctx)
	if err != nil {
		r.deps.Logger.Warn("release origin: read session failed", zap.String("origin_id", id), zap.Error(err))
		return
	}
	if state == domain.SessionActive || state == domain.SessionWarned {
		return
	}

	keys, err := o.Store.Keys(ctx)
	if err != nil {
		r.deps.Logger.Warn("release origin: list keys failed", zap.String("origin_id", id), zap.Error(err))
		return
	}
	drop := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, keep := retainedOnRelease[k]; !keep {
			drop = append(drop, k)
		}
	}
	if len(drop) == 0 || r.origins.Contains(id) {
		return
	}
	if err := o.Store.Remove(ctx, drop...); err != nil {
		r.deps.Logger.Warn("release origin: clear keys failed", zap.String("origin_id", id), zap.Error(err))
		return
	}
	r.deps.Logger.Debug("origin released", zap.String("origin_id", id), zap.Int("keys", len(drop)))
}

func (r *Registry) build(id string) *Origin {
	store := r.deps.Store.WithPrefix("origin:" + id + ":")
	logger := zap.New(zapcore.NewTee(
		r.deps.Logger.Core(),
		errlog.NewCore(store, r.deps.ErrorLogMax),
	)).With(zap.String("origin_id", id))

	monitor := NewSessionMonitor(store, logger, r.deps.SessionTimeout, r.deps.SessionWarning, SessionHooks{
		OnWarning: func(e SessionEvent) {
			logger.Info("session about to expire", zap.Duration("remaining", e.Remaining))
		},
		OnExpire: func(e SessionEvent) {
			logger.Info("session expired by inactivity", zap.Bool("redirect_to_login", e.RedirectToLogin))
		},
	})

	var remote RemoteAuthenticator
	var api *apiclient.Client
	if r.deps.API != nil {
		api = r.deps.API.WithStore(store)
		remote = api
	}

	return &Origin{
		ID:     id,
		Store:  store,
		Auth:   NewAuthService(store, r.deps.Tokens, remote, r.deps.Limiter, r.deps.Users, monitor, logger),
		API:    api,
		Perf:   NewPerfRecorder(store, r.summaries),
		Logger: logger,
	}
}
