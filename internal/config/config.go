package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	NotifyLocal = "local"
	NotifyRedis = "redis"
	NotifyOff   = "off"
)

type AppConfig struct {
	HTTPAddr string

	StoreBackend string
	ScoreBackend string
	RedisURL     string
	DatabaseURL  string

	JWTSecret string

	RoomTTL           time.Duration
	SweepInterval     time.Duration
	MinPlayersToStart int

	NotifyMode     string
	WebhookURL     string
	WebhookTimeout time.Duration

	MessagesDir string
	CORSOrigins []string
}

// RegisterFlags declares the command-line overrides. Every flag is also read
// from the environment under its upper-snake name (http-addr -> HTTP_ADDR).
func RegisterFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.String("http-addr", ":3000", "listen address (env: HTTP_ADDR)")
	fs.String("store-backend", BackendMemory, "room store: memory|redis|postgres (env: STORE_BACKEND)")
	fs.String("score-backend", BackendMemory, "solo score store: memory|postgres (env: SCORE_BACKEND)")
	fs.String("redis-url", "", "redis connection url (env: REDIS_URL)")
	fs.String("database-url", "", "postgres dsn (env: DATABASE_URL)")
	fs.Duration("room-ttl", 2*time.Hour, "idle room lifetime (env: ROOM_TTL)")
	fs.Duration("sweep-interval", time.Minute, "expired room sweep period (env: SWEEP_INTERVAL)")
	fs.Int("min-players-to-start", 2, "players required before start (env: MIN_PLAYERS_TO_START)")
	fs.String("notify-mode", NotifyLocal, "room event fan-out: local|redis|off (env: NOTIFY_MODE)")
	fs.String("webhook-url", "", "optional webhook receiving room events (env: WEBHOOK_URL)")
	fs.Duration("webhook-timeout", 5*time.Second, "webhook request timeout (env: WEBHOOK_TIMEOUT)")
	fs.String("messages-dir", "", "directory overriding the embedded message catalog (env: MESSAGES_DIR)")
	fs.String("cors-origins", "*", "comma separated allowed origins (env: CORS_ORIGINS)")
}

// Load resolves flags, environment, .env and defaults, in that order.
// fs may be nil, in which case only the environment and defaults apply.
func Load(fs *pflag.FlagSet) (*AppConfig, error) {
	// .env는 선택 사항. 이미 설정된 환경 변수는 덮어쓰지 않는다.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs == nil {
		fs = pflag.NewFlagSet("battlehub", pflag.ContinueOnError)
		RegisterFlags(fs)
	}
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}
	v.SetDefault("jwt-secret", "")

	cfg := &AppConfig{
		HTTPAddr:          strings.TrimSpace(v.GetString("http-addr")),
		StoreBackend:      strings.ToLower(strings.TrimSpace(v.GetString("store-backend"))),
		ScoreBackend:      strings.ToLower(strings.TrimSpace(v.GetString("score-backend"))),
		RedisURL:          strings.TrimSpace(v.GetString("redis-url")),
		DatabaseURL:       strings.TrimSpace(v.GetString("database-url")),
		JWTSecret:         strings.TrimSpace(v.GetString("jwt-secret")),
		RoomTTL:           v.GetDuration("room-ttl"),
		SweepInterval:     v.GetDuration("sweep-interval"),
		MinPlayersToStart: v.GetInt("min-players-to-start"),
		NotifyMode:        strings.ToLower(strings.TrimSpace(v.GetString("notify-mode"))),
		WebhookURL:        strings.TrimSpace(v.GetString("webhook-url")),
		WebhookTimeout:    v.GetDuration("webhook-timeout"),
		MessagesDir:       strings.TrimSpace(v.GetString("messages-dir")),
		CORSOrigins:       splitList(v.GetString("cors-origins")),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":3000"
	}
	if cfg.RoomTTL <= 0 {
		cfg.RoomTTL = 2 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.MinPlayersToStart < 1 {
		cfg.MinPlayersToStart = 2
	}
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 5 * time.Second
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORE_BACKEND=redis")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.ScoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when SCORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown SCORE_BACKEND %q", c.ScoreBackend)
	}
	switch c.NotifyMode {
	case NotifyLocal, NotifyOff:
	case NotifyRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when NOTIFY_MODE=redis")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_MODE %q", c.NotifyMode)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
