package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort     string        `env:"HTTP_PORT" envDefault:"8080"`
	APIBaseURL   string        `env:"API_BASE_URL" envDefault:"http://localhost:3000/api"`
	APITimeout   time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`

	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"30m"`
	SessionWarning time.Duration `env:"SESSION_WARNING" envDefault:"5m"`
	TokenSecret    string        `env:"TOKEN_SECRET"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	AdminUsername  string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword  string        `env:"ADMIN_PASSWORD"`
	AdminEmail     string        `env:"ADMIN_EMAIL"`
	SeedDemoUsers  bool          `env:"SEED_DEMO_USERS" envDefault:"false"`

	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindow      time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`

	StoreBackend    string        `env:"STORE_BACKEND" envDefault:"memory"`
	StoreQuotaBytes int           `env:"STORE_QUOTA_BYTES" envDefault:"5242880"`
	StoreStaleAfter time.Duration `env:"STORE_STALE_AFTER" envDefault:"168h"`
	ErrorLogMax     int           `env:"ERROR_LOG_MAX" envDefault:"50"`
	OriginMax       int           `env:"ORIGIN_MAX" envDefault:"10000"`
	OriginIdleTTL   time.Duration `env:"ORIGIN_IDLE_TTL" envDefault:"0s"`

	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
