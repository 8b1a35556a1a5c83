package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrNotList       = errors.New("stored value is not a list")
)

const defaultStaleAfter = 7 * 24 * time.Hour

// Backend guarda bytes crudos por clave. Las implementaciones no interpretan el contenido.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Entry es el sobre con timestamp en el que se persiste cada valor.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store serializa valores a JSON sobre un Backend, con sobres timestamped y
// eviccion de entradas viejas cuando se agota la cuota.
type Store struct {
	backend    Backend
	prefix     string
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

type Option func(*Store)

// WithStaleAfter define la edad a partir de la cual una entrada se puede desalojar.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(backend Backend, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend:    backend,
		staleAfter: defaultStaleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithPrefix devuelve un Store que comparte backend pero solo ve las claves del prefijo.
func (s *Store) WithPrefix(prefix string) *Store {
	scoped := *s
	scoped.prefix = s.prefix + prefix
	return &scoped
}

func (s *Store) Prefix() string {
	return s.prefix
}

func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.setRaw(ctx, key, raw)
}

func (s *Store) setRaw(ctx context.Context, key string, raw json.RawMessage) error {
	data, err := json.Marshal(Entry{Value: raw, Timestamp: s.now()})
	if err != nil {
		return fmt.Errorf("marshal entry %s: %w", key, err)
	}

	err = s.backend.Set(ctx, s.prefix+key, data)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		s.logger.Error("kv set failed", zap.String("key", key), zap.Error(err))
		return err
	}

	evicted, evictErr := s.EvictStale(ctx)
	if evictErr != nil {
		s.logger.Warn("kv stale eviction failed", zap.Error(evictErr))
	}
	s.logger.Warn("kv quota exceeded, retrying after eviction",
		zap.String("key", key),
		zap.Int("evicted", evicted),
	)
	if err := s.backend.Set(ctx, s.prefix+key, data); err != nil {
		s.logger.Error("kv set failed after eviction", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Get decodifica el valor guardado en dst. Devuelve false si la clave no existe.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	entry, ok, err := s.GetEntry(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(entry.Value, dst); err != nil {
		return true, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) GetEntry(ctx context.Context, key string) (Entry, bool, error) {
	data, ok, err := s.backend.Get(ctx, s.prefix+key)
	if err != nil {
		return Entry{}, false, err
	}
	if !ok {
		return Entry{}, false, nil
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal entry %s: %w", key, err)
	}
	return entry, true, nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.backend.Get(ctx, s.prefix+key)
	return ok, err
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.prefix+k)
	}
	return s.backend.Delete(ctx, full...)
}

// Append agrega item a la lista guardada en key. Si el valor existente no es
// una lista devuelve ErrNotList y no lo modifica.
func (s *Store) Append(ctx context.Context, key string, item any) error {
	return s.AppendCapped(ctx, key, item, 0)
}

// AppendCapped es Append conservando solo los max items mas nuevos (max <= 0: sin limite).
func (s *Store) AppendCapped(ctx context.Context, key string, item any, max int) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", key, err)
	}

	var list []json.RawMessage
	entry, ok, err := s.GetEntry(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		if !isJSONArray(entry.Value) {
			return fmt.Errorf("append %s: %w", key, ErrNotList)
		}
		if err := json.Unmarshal(entry.Value, &list); err != nil {
			return fmt.Errorf("append %s: %w", key, ErrNotList)
		}
	}

	list = append(list, raw)
	if max > 0 && len(list) > max {
		list = list[len(list)-max:]
	}

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.setRaw(ctx, key, data)
}

// Keys devuelve las claves visibles para este Store, sin prefijo.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	full, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	return keys, nil
}

// Clear borra todas las claves del prefijo.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.backend.Delete(ctx, keys...)
}

// EvictStale borra entradas del prefijo mas viejas que staleAfter. Best-effort:
// entradas ilegibles se ignoran.
func (s *Store) EvictStale(ctx context.Context) (int, error) {
	keys, err := s.backend.Keys(ctx, s.prefix)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.staleAfter)
	var stale []string
	for _, k := range keys {
		data, ok, err := s.backend.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.Timestamp.Before(cutoff) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.backend.Delete(ctx, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
