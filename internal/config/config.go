package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// EnvPrefix prefixes every environment override, e.g. CLINIC_DATABASE_HOST
const EnvPrefix = "clinic"

type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Trial      TrialConfig      `mapstructure:"trial"`
	License    LicenseConfig    `mapstructure:"license"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" split_words:"true"`
	Mail       MailConfig       `mapstructure:"mail"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Web        WebConfig        `mapstructure:"web"`
	Seed       SeedConfig       `mapstructure:"seed"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes" split_words:"true"`
	CORSOrigins     []string      `mapstructure:"cors_origins" split_words:"true"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
	Migrate         bool          `mapstructure:"migrate"`
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Prefix       string        `mapstructure:"prefix"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" split_words:"true"`
}

const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

type CacheConfig struct {
	Driver          string        `mapstructure:"driver"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl" split_words:"true"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
	PermissionTTL   time.Duration `mapstructure:"permission_ttl" split_words:"true"`
	SettingTTL      time.Duration `mapstructure:"setting_ttl" split_words:"true"`
	LicenseTTL      time.Duration `mapstructure:"license_ttl" split_words:"true"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" split_words:"true"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" split_words:"true"`
}

type TrialConfig struct {
	DurationDays int `mapstructure:"duration_days" split_words:"true"`
}

// Duration returns the trial length
func (t TrialConfig) Duration() time.Duration {
	if t.DurationDays <= 0 {
		return model.TrialDuration
	}
	return time.Duration(t.DurationDays) * 24 * time.Hour
}

type LicenseConfig struct {
	// TrialLimits apply while no license row exists
	TrialLimits model.UsageLimits `mapstructure:"trial_limits" ignored:"true"`
}

type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Requests    int           `mapstructure:"requests"`
	Window      time.Duration `mapstructure:"window"`
	GlobalRPS   float64       `mapstructure:"global_rps" split_words:"true"`
	GlobalBurst int           `mapstructure:"global_burst" split_words:"true"`
}

type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SchedulerConfig struct {
	LicenseExpirySpec string `mapstructure:"license_expiry_spec" split_words:"true"`
	TrialReminderSpec string `mapstructure:"trial_reminder_spec" split_words:"true"`
	ReminderDays      int    `mapstructure:"reminder_days" split_words:"true"`
	AuditCleanupSpec  string `mapstructure:"audit_cleanup_spec" split_words:"true"`
	AuditRetention    int    `mapstructure:"audit_retention_days" envconfig:"AUDIT_RETENTION_DAYS"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path" split_words:"true"`
	Namespace   string `mapstructure:"namespace"`
}

// WebConfig holds the redirect targets used for browser requests
type WebConfig struct {
	OnboardingPath string `mapstructure:"onboarding_path" split_words:"true"`
	LicensePath    string `mapstructure:"license_path" split_words:"true"`
	LoginPath      string `mapstructure:"login_path" split_words:"true"`
	DashboardPath  string `mapstructure:"dashboard_path" split_words:"true"`
}

type SeedConfig struct {
	OnStartup bool `mapstructure:"on_startup" split_words:"true"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "clinic")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.prefix", "clinic:")

	v.SetDefault("cache.driver", CacheDriverMemory)
	v.SetDefault("cache.default_ttl", time.Hour)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)
	v.SetDefault("cache.permission_ttl", time.Hour)
	v.SetDefault("cache.setting_ttl", time.Hour)
	v.SetDefault("cache.license_ttl", 5*time.Minute)

	v.SetDefault("jwt.issuer", "clinic-api")
	v.SetDefault("jwt.access_ttl", 24*time.Hour)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("trial.duration_days", 14)
	v.SetDefault("license.trial_limits.users", 5)
	v.SetDefault("license.trial_limits.clinics", 1)
	v.SetDefault("license.trial_limits.patients", 100)
	v.SetDefault("license.trial_limits.appointments", 500)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.global_rps", 200.0)
	v.SetDefault("rate_limit.global_burst", 400)

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@clinic.local")

	v.SetDefault("scheduler.license_expiry_spec", "@hourly")
	v.SetDefault("scheduler.trial_reminder_spec", "0 9 * * *")
	v.SetDefault("scheduler.reminder_days", 3)
	v.SetDefault("scheduler.audit_cleanup_spec", "30 3 * * *")
	v.SetDefault("scheduler.audit_retention_days", 365)

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/api/v1/health/metrics")
	v.SetDefault("monitoring.namespace", "clinic")

	v.SetDefault("web.onboarding_path", "/onboarding")
	v.SetDefault("web.license_path", "/license")
	v.SetDefault("web.login_path", "/login")
	v.SetDefault("web.dashboard_path", "/dashboard")

	v.SetDefault("seed.on_startup", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads .env, then config.yml, then CLINIC_* environment overrides.
// A missing config file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.JWT.Secret) == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be positive")
	}
	switch c.Cache.Driver {
	case CacheDriverMemory, CacheDriverRedis:
	default:
		problems = append(problems, fmt.Sprintf("cache.driver %q is not one of memory, redis", c.Cache.Driver))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		problems = append(problems, "rate_limit.requests and rate_limit.window must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
