package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitekit/internal/domain"
	"sitekit/internal/kvstore"
)

var (
	ErrNoSession      = errors.New("no active session")
	ErrSessionExpired = errors.New("session expired")
)

const adminPathPrefix = "/admin"

// SessionEvent describe una transicion emitida por el monitor.
type SessionEvent struct {
	State           domain.SessionState
	Remaining       time.Duration
	RedirectToLogin bool
	At              time.Time
}

// SessionHooks recibe el aviso de inactividad y la expiracion. Ambos son opcionales.
type SessionHooks struct {
	OnWarning func(SessionEvent)
	OnExpire  func(SessionEvent)
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

// SessionMonitor mantiene el registro de sesion de un origen y lo expira por
// inactividad. Los timers se programan en el instante exacto de aviso y de
// expiracion y se rearman con cada actividad.
type SessionMonitor struct {
	mu      sync.Mutex
	store   *kvstore.Store
	logger  *zap.Logger
	timeout time.Duration
	warning time.Duration
	hooks   SessionHooks
	now     func() time.Time
	after   afterFunc

	warnTimer   stopper
	expireTimer stopper
}

func NewSessionMonitor(store *kvstore.Store, logger *zap.Logger, timeout, warning time.Duration, hooks SessionHooks) *SessionMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if warning < 0 || warning >= timeout {
		warning = 0
	}
	return &SessionMonitor{
		store:   store,
		logger:  logger,
		timeout: timeout,
		warning: warning,
		hooks:   hooks,
		now:     func() time.Time { return time.Now().UTC() },
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Start crea el registro de sesion (LoggedOut -> Active).
func (m *SessionMonitor) Start(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	record := domain.SessionRecord{
		StartTime:    now,
		LastActivity: now,
		CurrentPath:  path,
	}
	if err := m.store.Set(ctx, domain.KeySession, record); err != nil {
		return err
	}
	m.arm(record)
	return nil
}

// Touch registra actividad: resetea el tiempo de inactividad y el aviso.
func (m *SessionMonitor) Touch(ctx context.Context, path string) error {
	m.mu.Lock()
	record, ok, err := m.load(ctx)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !ok {
		m.mu.Unlock()
		return ErrNoSession
	}
	now := m.now()
	if record.Idle(now) >= m.timeout {
		event := m.expireLocked(ctx, record, now)
		m.mu.Unlock()
		m.emitExpire(event)
		return ErrSessionExpired
	}
	record.LastActivity = now
	record.WarningShown = false
	if path != "" {
		record.CurrentPath = path
	}
	if err := m.store.Set(ctx, domain.KeySession, record); err != nil {
		m.mu.Unlock()
		return err
	}
	m.arm(record)
	m.mu.Unlock()
	return nil
}

// State calcula el estado actual sin aplicar transiciones.
func (m *SessionMonitor) State(ctx context.Context) (domain.SessionState, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok, err := m.load(ctx)
	if err != nil {
		return domain.SessionLoggedOut, 0, err
	}
	if !ok {
		return domain.SessionLoggedOut, 0, nil
	}
	state, remaining := m.evaluate(record, m.now())
	return state, remaining, nil
}

// Check evalua el estado y aplica las transiciones pendientes: emite el aviso
// una sola vez y, al vencer, borra sesion, token y usuario.
func (m *SessionMonitor) Check(ctx context.Context) (domain.SessionState, error) {
	m.mu.Lock()
	record, ok, err := m.load(ctx)
	if err != nil {
		m.mu.Unlock()
		return domain.SessionLoggedOut, err
	}
	if !ok {
		m.mu.Unlock()
		return domain.SessionLoggedOut, nil
	}

	now := m.now()
	state, remaining := m.evaluate(record, now)
	switch state {
	case domain.SessionExpired:
		event := m.expireLocked(ctx, record, now)
		m.mu.Unlock()
		m.emitExpire(event)
		return state, nil
	case domain.SessionWarned:
		if record.WarningShown {
			m.mu.Unlock()
			return state, nil
		}
		record.WarningShown = true
		if err := m.store.Set(ctx, domain.KeySession, record); err != nil {
			m.logger.Warn("persist session warning failed", zap.Error(err))
		}
		m.mu.Unlock()
		m.logger.Info("session inactivity warning", zap.Duration("remaining", remaining))
		if m.hooks.OnWarning != nil {
			m.hooks.OnWarning(SessionEvent{State: state, Remaining: remaining, At: now})
		}
		return state, nil
	default:
		m.mu.Unlock()
		return state, nil
	}
}

// Stop cancela los timers pendientes; no toca el store.
func (m *SessionMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimers()
}

func (m *SessionMonitor) evaluate(record domain.SessionRecord, now time.Time) (domain.SessionState, time.Duration) {
	idle := record.Idle(now)
	remaining := m.timeout - idle
	if remaining <= 0 {
		return domain.SessionExpired, 0
	}
	if m.warning > 0 && remaining <= m.warning {
		return domain.SessionWarned, remaining
	}
	return domain.SessionActive, remaining
}

func (m *SessionMonitor) expireLocked(ctx context.Context, record domain.SessionRecord, now time.Time) SessionEvent {
	m.stopTimers()
	if err := m.store.Remove(ctx, domain.KeySession, domain.KeyToken, domain.KeyUser); err != nil {
		m.logger.Error("clear expired session failed", zap.Error(err))
	}
	redirect := IsAdminPath(record.CurrentPath)
	m.logger.Info("session expired",
		zap.Duration("idle", record.Idle(now)),
		zap.Bool("redirect_to_login", redirect),
	)
	return SessionEvent{State: domain.SessionExpired, RedirectToLogin: redirect, At: now}
}

func (m *SessionMonitor) emitExpire(event SessionEvent) {
	if m.hooks.OnExpire != nil {
		m.hooks.OnExpire(event)
	}
}

func (m *SessionMonitor) arm(record domain.SessionRecord) {
	m.stopTimers()
	untilExpiry := record.LastActivity.Add(m.timeout).Sub(m.now())
	if m.warning > 0 {
		untilWarning := untilExpiry - m.warning
		if untilWarning < 0 {
			untilWarning = 0
		}
		m.warnTimer = m.after(untilWarning, m.fire)
	}
	if untilExpiry < 0 {
		untilExpiry = 0
	}
	m.expireTimer = m.after(untilExpiry, m.fire)
}

func (m *SessionMonitor) fire() {
	if _, err := m.Check(context.Background()); err != nil {
		m.logger.Warn("session timer check failed", zap.Error(err))
	}
}

func (m *SessionMonitor) stopTimers() {
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.expireTimer != nil {
		m.expireTimer.Stop()
		m.expireTimer = nil
	}
}

func (m *SessionMonitor) load(ctx context.Context) (domain.SessionRecord, bool, error) {
	var record domain.SessionRecord
	ok, err := m.store.Get(ctx, domain.KeySession, &record)
	return record, ok, err
}

// IsAdminPath reporta si path es /admin o cuelga de /admin/.
func IsAdminPath(path string) bool {
	return path == adminPathPrefix || strings.HasPrefix(path, adminPathPrefix+"/")
}
