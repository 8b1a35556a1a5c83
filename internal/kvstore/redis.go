package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisScanCount  = 100
	redisIndexInfix = "__idx:"
)

type redisKVClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// RedisBackend guarda las entradas en Redis bajo un namespace comun. Cada
// clave se registra en un set por cada prefijo terminado en ':' ("origin:",
// "origin:<id>:"), asi Keys de un origen no recorre todo el keyspace.
type RedisBackend struct {
	client    redisKVClient
	namespace string
	timeout   time.Duration
}

func NewRedisBackend(client *redis.Client, namespace string) *RedisBackend {
	if client == nil {
		return nil
	}
	return &RedisBackend{
		client:    client,
		namespace: namespace,
		timeout:   500 * time.Millisecond,
	}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	data, err := b.client.Get(ctx, b.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapRedisErr(err)
	}
	return data, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	for _, prefix := range indexPrefixes(key) {
		if err := b.client.SAdd(ctx, b.indexKey(prefix), key).Err(); err != nil {
			return mapRedisErr(err)
		}
	}
	return mapRedisErr(b.client.Set(ctx, b.namespace+key, value, 0).Err())
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	byIndex := make(map[string][]interface{})
	for _, k := range keys {
		full = append(full, b.namespace+k)
		for _, prefix := range indexPrefixes(k) {
			byIndex[prefix] = append(byIndex[prefix], k)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.client.Del(ctx, full...).Err(); err != nil {
		return mapRedisErr(err)
	}
	for prefix, members := range byIndex {
		if err := b.client.SRem(ctx, b.indexKey(prefix), members...).Err(); err != nil {
			return mapRedisErr(err)
		}
	}
	return nil
}

// Keys usa el set del prefijo cuando termina en ':'; si no, cae a SCAN.
func (b *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" && strings.HasSuffix(prefix, ":") {
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		members, err := b.client.SMembers(ctx, b.indexKey(prefix)).Result()
		if err != nil {
			return nil, mapRedisErr(err)
		}
		sort.Strings(members)
		return members, nil
	}
	return b.scanKeys(ctx, prefix)
}

func (b *RedisBackend) scanKeys(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(b.namespace+prefix) + "*"
	indexPrefix := b.namespace + redisIndexInfix
	var (
		keys   []string
		cursor uint64
	)
	for {
		pageCtx, cancel := context.WithTimeout(ctx, b.timeout)
		page, next, err := b.client.Scan(pageCtx, cursor, match, redisScanCount).Result()
		cancel()
		if err != nil {
			return nil, mapRedisErr(err)
		}
		for _, k := range page {
			if strings.HasPrefix(k, indexPrefix) {
				continue
			}
			keys = append(keys, strings.TrimPrefix(k, b.namespace))
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (b *RedisBackend) indexKey(prefix string) string {
	return b.namespace + redisIndexInfix + prefix
}

// indexPrefixes devuelve los prefijos de key que terminan en ':'.
func indexPrefixes(key string) []string {
	var out []string
	for i := 0; i < len(key)-1; i++ {
		if key[i] == ':' {
			out = append(out, key[:i+1])
		}
	}
	return out
}

// mapRedisErr traduce el error OOM de maxmemory a ErrQuotaExceeded.
func mapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "OOM ") {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
