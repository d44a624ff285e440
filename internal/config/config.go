package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Proximity ProximityConfig `yaml:"proximity"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type ServerConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Environment      string `yaml:"environment"` // "development", "production", "test"
	Debug            bool   `yaml:"debug"`
	LogLevel         string `yaml:"log_level"`
	EnableTestRoutes bool   `yaml:"-"`
	TestRoutes       *bool  `yaml:"enable_test_routes"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"name"`
	SSLMode        string `yaml:"sslmode"`
	MigrationsPath string `yaml:"migrations_path"`
	MaxConns       int    `yaml:"max_conns"` // 0 uses the pool default
	MinConns       int    `yaml:"min_conns"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type RealtimeConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"` // 0 disables the sweeper
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	FanoutWorkers  int           `yaml:"fanout_workers"`
	FanoutQueue    int           `yaml:"fanout_queue"`
}

type RateLimitConfig struct {
	LocationPerMinute int64 `yaml:"location_per_minute"`
}

type ProximityConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RadiusKm float64       `yaml:"radius_km"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type NotifyConfig struct {
	Provider     string `yaml:"provider"` // "console", "nats", "resend"
	NATSURL      string `yaml:"nats_url"`
	NATSSubject  string `yaml:"nats_subject"`
	ResendAPIKey string `yaml:"resend_api_key"`
	FromAddress  string `yaml:"from_address"`
	FromName     string `yaml:"from_name"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			Environment: "development",
			LogLevel:    "info",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "oasis",
			Password:       "oasis",
			DBName:         "oasis",
			SSLMode:        "disable",
			MigrationsPath: "migrations",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Realtime: RealtimeConfig{
			SendBuffer:    64,
			WriteTimeout:  10 * time.Second,
			SweepInterval: 30 * time.Second,
			FanoutWorkers: 4,
			FanoutQueue:   256,
		},
		RateLimit: RateLimitConfig{
			LocationPerMinute: 120,
		},
		Proximity: ProximityConfig{
			Enabled:  true,
			RadiusKm: 1.0,
			Cooldown: 30 * time.Minute,
		},
		Notify: NotifyConfig{
			Provider:    "console",
			NATSURL:     "nats://localhost:4222",
			NATSSubject: "oasis.push.proximity",
			FromAddress: "noreply@oasis.app",
			FromName:    "Oasis",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("SERVER_HOST", s.Host)
	s.Port = getEnvInt("SERVER_PORT", s.Port)
	s.Environment = getEnv("APP_ENV", s.Environment)
	s.Debug = getEnvBool("DEBUG", s.Debug)
	s.LogLevel = getEnvNonEmpty("LOG_LEVEL", s.LogLevel)
	testRoutesDefault := s.Environment == "development"
	if s.TestRoutes != nil {
		testRoutesDefault = *s.TestRoutes
	}
	s.EnableTestRoutes = getEnvBool("ENABLE_TEST_ROUTES", testRoutesDefault)

	d := &cfg.Database
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnvInt("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.DBName = getEnv("DB_NAME", d.DBName)
	d.SSLMode = getEnv("DB_SSLMODE", d.SSLMode)
	d.MigrationsPath = getEnvNonEmpty("MIGRATIONS_PATH", d.MigrationsPath)
	d.MaxConns = getEnvInt("DB_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("DB_MIN_CONNS", d.MinConns)

	r := &cfg.Redis
	r.Host = getEnv("REDIS_HOST", r.Host)
	r.Port = getEnvInt("REDIS_PORT", r.Port)
	r.Password = getEnv("REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("REDIS_POOL_SIZE", r.PoolSize)

	rt := &cfg.Realtime
	rt.SendBuffer = getEnvInt("WS_SEND_BUFFER", rt.SendBuffer)
	rt.WriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", rt.WriteTimeout)
	rt.IdleTimeout = getEnvDuration("WS_IDLE_TIMEOUT", rt.IdleTimeout)
	rt.SweepInterval = getEnvDuration("WS_SWEEP_INTERVAL", rt.SweepInterval)
	rt.AllowedOrigins = getEnvList("WS_ALLOWED_ORIGINS", rt.AllowedOrigins)
	rt.FanoutWorkers = getEnvInt("FANOUT_WORKERS", rt.FanoutWorkers)
	rt.FanoutQueue = getEnvInt("FANOUT_QUEUE", rt.FanoutQueue)

	cfg.RateLimit.LocationPerMinute = int64(getEnvInt("LOCATION_RATE_LIMIT", int(cfg.RateLimit.LocationPerMinute)))

	p := &cfg.Proximity
	p.Enabled = getEnvBool("PROXIMITY_ENABLED", p.Enabled)
	p.RadiusKm = getEnvFloat64("PROXIMITY_RADIUS_KM", p.RadiusKm)
	p.Cooldown = getEnvDuration("PROXIMITY_COOLDOWN", p.Cooldown)

	n := &cfg.Notify
	n.Provider = getEnvNonEmpty("NOTIFY_PROVIDER", n.Provider)
	n.NATSURL = getEnvNonEmpty("NATS_URL", n.NATSURL)
	n.NATSSubject = getEnvNonEmpty("NATS_SUBJECT", n.NATSSubject)
	n.ResendAPIKey = getEnv("RESEND_API_KEY", n.ResendAPIKey)
	n.FromAddress = getEnvNonEmpty("EMAIL_FROM_ADDRESS", n.FromAddress)
	n.FromName = getEnvNonEmpty("EMAIL_FROM_NAME", n.FromName)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.Realtime.SendBuffer)
	}
	if c.Realtime.FanoutWorkers <= 0 || c.Realtime.FanoutQueue <= 0 {
		return fmt.Errorf("fanout workers and queue must be positive")
	}
	if c.Proximity.RadiusKm < 0 {
		return fmt.Errorf("PROXIMITY_RADIUS_KM must not be negative")
	}
	switch c.Notify.Provider {
	case "console", "nats", "resend":
	default:
		return fmt.Errorf("unknown NOTIFY_PROVIDER %q", c.Notify.Provider)
	}
	if c.Notify.Provider == "resend" && c.Notify.ResendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY is required when NOTIFY_PROVIDER=resend")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvNonEmpty(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		if strings.TrimSpace(value) != "" {
			return value
		}
		return defaultValue
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValues []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return defaultValues
		}
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			item := strings.TrimSpace(part)
			if item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return defaultValues
}
