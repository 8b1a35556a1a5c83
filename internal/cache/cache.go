package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL es un cache en memoria con entradas de duracion fija. La expiracion se
// verifica al leer; no hay limpieza proactiva.
type TTL[V any] struct {
	mu    sync.Mutex
	items map[string]item[V]
	now   func() time.Time
}

func NewTTL[V any]() *TTL[V] {
	return &TTL[V]{
		items: make(map[string]item[V]),
		now:   time.Now,
	}
}

// WithClock reemplaza el reloj; util en tests.
func (c *TTL[V]) WithClock(now func() time.Time) *TTL[V] {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *TTL[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Get devuelve el valor si existe y no vencio. Las entradas vencidas se borran aca.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	it, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(it.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return it.value, true
}

func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len cuenta entradas guardadas, incluidas las vencidas que nadie leyo.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
