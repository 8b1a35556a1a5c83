package service

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Ventana deslizante: un miembro por intento aceptado, puntuado en ms.
// ARGV: ahora, ventana (ms), maximo, miembro unico.
const redisLoginAllowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local allowed = 0
if redis.call("ZCARD", KEYS[1]) < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window)
return allowed
`

type redisLoginRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
	now    func() time.Time
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisLoginRateLimiter comparte el contador de intentos entre instancias.
func NewRedisLoginRateLimiter(client *redis.Client, window time.Duration, max int) LoginRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisLoginRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "login:rl:",
		now:    time.Now,
	}
}

func (l *redisLoginRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	now := time.Now
	if l.now != nil {
		now = l.now
	}
	args := []interface{}{
		now().UnixMilli(),
		l.window.Milliseconds(),
		l.max,
		ulid.Make().String(),
	}
	allowed, err := l.client.Eval(ctx, redisLoginAllowScript, []string{l.prefix + normalizedKey}, args...).Int()
	if err != nil {
		return true
	}
	return allowed == 1
}
