package errlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap/zapcore"

	"sitekit/internal/domain"
)

const DefaultMaxEntries = 50

// Appender es lo minimo que necesita el core del key-value store.
type Appender interface {
	AppendCapped(ctx context.Context, key string, item any, max int) error
}

// Core es un zapcore.Core que copia los logs warn+ al error_log del store.
// Los fallos de escritura se ignoran: el log local nunca rompe al llamador.
type Core struct {
	store   Appender
	max     int
	level   zapcore.LevelEnabler
	fields  []zapcore.Field
	timeout time.Duration
}

func NewCore(store Appender, max int) *Core {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Core{
		store:   store,
		max:     max,
		level:   zapcore.WarnLevel,
		timeout: time.Second,
	}
}

func (c *Core) Enabled(lvl zapcore.Level) bool {
	return c.store != nil && c.level.Enabled(lvl)
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	entry := domain.ErrorEntry{
		ID:        ulid.Make().String(),
		Level:     ent.Level.String(),
		Message:   ent.Message,
		Context:   encodeFields(c.fields, fields),
		Timestamp: ent.Time.UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	_ = c.store.AppendCapped(ctx, domain.KeyErrorLog, entry, c.max)
	return nil
}

func (c *Core) Sync() error { return nil }

func encodeFields(groups ...[]zapcore.Field) string {
	enc := zapcore.NewMapObjectEncoder()
	for _, fields := range groups {
		for _, f := range fields {
			f.AddTo(enc)
		}
	}
	if len(enc.Fields) == 0 {
		return ""
	}
	raw, err := json.Marshal(enc.Fields)
	if err != nil {
		return ""
	}
	return string(raw)
}
