package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Duration parses "10s", "5m" or a bare number of seconds. It implements
// cleanenv.Setter.
type Duration time.Duration

func (d *Duration) SetValue(data string) error {
	v, err := parseDuration(data)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(s string) (time.Duration, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration must be like 10s, 5m or a number of seconds: %w", err)
	}
	return d, nil
}

type Config struct {
	App         AppConfig
	HTTP        HTTPConfig
	DB          DBConfig
	Redis       RedisConfig
	Leaderboard LeaderboardConfig
}

type AppConfig struct {
	Env                string `env:"APP_ENV" env-default:"dev"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat          string `env:"LOG_FORMAT" env-default:"json"`
	ReferralCodeLength int    `env:"REFERRAL_CODE_LENGTH" env-default:"8"`
}

type HTTPConfig struct {
	Port           string   `env:"PORT" env-default:"5000"`
	ReadTimeout    Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout   Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout    Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	RequestTimeout Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"5s"`
	CORSOrigin     string   `env:"CORS_ORIGIN" env-default:"*"`
	// AuthRateLimit is requests per minute per IP on the check endpoints; 0 disables it.
	AuthRateLimit int `env:"AUTH_RATE_LIMIT" env-default:"30"`
}

type DBConfig struct {
	URL             string   `env:"DATABASE_URL"`
	MaxOpenConns    int      `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns    int      `env:"DB_MAX_IDLE_CONNS" env-default:"2"`
	ConnMaxLifetime Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
	MigrateOnStart  bool     `env:"MIGRATE_ON_START" env-default:"true"`
}

// RedisConfig is optional. URL wins over Addr/Password/DB when set.
type RedisConfig struct {
	URL      string `env:"REDIS_URL"`
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Addr != ""
}

type LeaderboardConfig struct {
	CacheTTL Duration `env:"LEADERBOARD_CACHE_TTL" env-default:"60s"`
}

// Load reads .env (if present) and the environment. DATABASE_URL is required.
func Load() (Config, error) {
	cfg, err := read()
	if err != nil {
		return Config{}, err
	}
	if cfg.DB.URL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadWithoutDatabase is Load for binaries that never touch Postgres.
func LoadWithoutDatabase() (Config, error) {
	return read()
}

func read() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if cfg.App.ReferralCodeLength < 4 || cfg.App.ReferralCodeLength > 32 {
		return Config{}, fmt.Errorf("REFERRAL_CODE_LENGTH must be between 4 and 32, got %d", cfg.App.ReferralCodeLength)
	}
	if cfg.HTTP.AuthRateLimit < 0 {
		return Config{}, fmt.Errorf("AUTH_RATE_LIMIT must not be negative")
	}
	return cfg, nil
}

// Addr is the fiber listen address.
func (h HTTPConfig) Addr() string {
	if strings.Contains(h.Port, ":") {
		return h.Port
	}
	return ":" + h.Port
}
