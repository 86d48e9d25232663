package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. PORTAL_AUTH_SIGNER.
	EnvPrefix = "PORTAL"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultSecret is the static secret shared by the code digests and the
	// legacy token signature. Override it in any real deployment.
	DefaultSecret = "MINUCST2026_ULTRA_SECURE_SECRET_KEY_FOR_AUTHENTICATION_SYSTEM"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultSQLitePath is the default audit database file.
	DefaultSQLitePath = "portal.db"

	// DefaultMetricsPath is where Prometheus metrics are served.
	DefaultMetricsPath = "/metrics"

	redacted = "<redacted>"
)

// Hasher and signer implementations.
const (
	HasherStatic = "static"
	HasherBcrypt = "bcrypt"
	SignerLegacy = "legacy"
	SignerJWT    = "jwt"
)

// Config is the root configuration for the portal.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// AuthConfig contains login limits, durations and secrets.
type AuthConfig struct {
	MaxLoginAttempts    int           `yaml:"max_login_attempts" mapstructure:"max_login_attempts"`
	CaptchaThreshold    int           `yaml:"captcha_threshold" mapstructure:"captcha_threshold"`
	SourceBlockDuration time.Duration `yaml:"source_block_duration" mapstructure:"source_block_duration"`
	CodeBlockDuration   time.Duration `yaml:"code_block_duration" mapstructure:"code_block_duration"`
	SessionDuration     time.Duration `yaml:"session_duration" mapstructure:"session_duration"`
	InactivityTimeout   time.Duration `yaml:"inactivity_timeout" mapstructure:"inactivity_timeout"`
	AttemptWindow       time.Duration `yaml:"attempt_window" mapstructure:"attempt_window"`
	AttemptHistory      int           `yaml:"attempt_history" mapstructure:"attempt_history"`
	LoginDelay          time.Duration `yaml:"login_delay" mapstructure:"login_delay"`
	Hasher              string        `yaml:"hasher" mapstructure:"hasher"`
	HashSecret          string        `yaml:"hash_secret" mapstructure:"hash_secret"`
	BcryptCost          int           `yaml:"bcrypt_cost" mapstructure:"bcrypt_cost"`
	Signer              string        `yaml:"signer" mapstructure:"signer"`
	TokenSecret         string        `yaml:"token_secret" mapstructure:"token_secret"`
	DashboardPassword   string        `yaml:"dashboard_password" mapstructure:"dashboard_password"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	// TrustedProxies lists the peers (CIDRs or single IPs) whose
	// X-Forwarded-For header is honoured. Requests from any other peer are
	// identified by their remote address.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty" mapstructure:"trusted_proxies"`
}

// TrustedProxyPrefixes parses TrustedProxies. A bare IP becomes a
// single-address prefix.
func (s *ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))

	for _, raw := range s.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}

			prefixes = append(prefixes, p.Masked())

			continue
		}

		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}

		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

// RateLimitConfig contains per-IP request throttling settings.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth    RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Public  RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
	Admin   RateLimitTier `yaml:"admin,omitempty" mapstructure:"admin"`
}

// RateLimitTier configures one group of endpoints.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// DatabaseConfig contains the audit store settings.
type DatabaseConfig struct {
	Enabled       bool                 `yaml:"enabled" mapstructure:"enabled"`
	Driver        string               `yaml:"driver" mapstructure:"driver"`
	SQLite        SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres      PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
	Retention     time.Duration        `yaml:"retention" mapstructure:"retention"`
	SweepInterval time.Duration        `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Global: GlobalConfig{LogLevel: DefaultLogLevel},
		Auth: AuthConfig{
			MaxLoginAttempts:    3,
			CaptchaThreshold:    2,
			SourceBlockDuration: 30 * time.Minute,
			CodeBlockDuration:   24 * time.Hour,
			SessionDuration:     30 * time.Minute,
			InactivityTimeout:   5 * time.Minute,
			AttemptWindow:       time.Hour,
			AttemptHistory:      10,
			Hasher:              HasherStatic,
			HashSecret:          DefaultSecret,
			BcryptCost:          10,
			Signer:              SignerLegacy,
			TokenSecret:         DefaultSecret,
		},
		Server: ServerConfig{
			Listen: DefaultListen,
			RateLimit: RateLimitConfig{
				Enabled: true,
				Auth:    RateLimitTier{RequestsPerMinute: 20},
				Public:  RateLimitTier{RequestsPerMinute: 120},
				Admin:   RateLimitTier{RequestsPerMinute: 60},
			},
		},
		Database: DatabaseConfig{
			Driver:        "sqlite",
			SQLite:        SQLiteDatabaseConfig{Path: DefaultSQLitePath},
			Postgres:      PostgresConfig{Port: 5432, SSLMode: "disable"},
			Retention:     30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Metrics: MetricsConfig{Enabled: true, Path: DefaultMetricsPath},
	}
}

// Load reads the configuration file at path, if any, and applies
// PORTAL_* environment overrides on top of it and of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key with viper so that environment
// overrides apply even to keys missing from the file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("global.log_level", d.Global.LogLevel)

	v.SetDefault("auth.max_login_attempts", d.Auth.MaxLoginAttempts)
	v.SetDefault("auth.captcha_threshold", d.Auth.CaptchaThreshold)
	v.SetDefault("auth.source_block_duration", d.Auth.SourceBlockDuration)
	v.SetDefault("auth.code_block_duration", d.Auth.CodeBlockDuration)
	v.SetDefault("auth.session_duration", d.Auth.SessionDuration)
	v.SetDefault("auth.inactivity_timeout", d.Auth.InactivityTimeout)
	v.SetDefault("auth.attempt_window", d.Auth.AttemptWindow)
	v.SetDefault("auth.attempt_history", d.Auth.AttemptHistory)
	v.SetDefault("auth.login_delay", d.Auth.LoginDelay)
	v.SetDefault("auth.hasher", d.Auth.Hasher)
	v.SetDefault("auth.hash_secret", d.Auth.HashSecret)
	v.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)
	v.SetDefault("auth.signer", d.Auth.Signer)
	v.SetDefault("auth.token_secret", d.Auth.TokenSecret)
	v.SetDefault("auth.dashboard_password", d.Auth.DashboardPassword)

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.trusted_proxies", d.Server.TrustedProxies)
	v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	v.SetDefault("server.rate_limit.auth.requests_per_minute", d.Server.RateLimit.Auth.RequestsPerMinute)
	v.SetDefault("server.rate_limit.public.requests_per_minute", d.Server.RateLimit.Public.RequestsPerMinute)
	v.SetDefault("server.rate_limit.admin.requests_per_minute", d.Server.RateLimit.Admin.RequestsPerMinute)

	v.SetDefault("database.enabled", d.Database.Enabled)
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.sqlite.path", d.Database.SQLite.Path)
	v.SetDefault("database.postgres.host", d.Database.Postgres.Host)
	v.SetDefault("database.postgres.port", d.Database.Postgres.Port)
	v.SetDefault("database.postgres.user", d.Database.Postgres.User)
	v.SetDefault("database.postgres.password", d.Database.Postgres.Password)
	v.SetDefault("database.postgres.database", d.Database.Postgres.Database)
	v.SetDefault("database.postgres.ssl_mode", d.Database.Postgres.SSLMode)
	v.SetDefault("database.retention", d.Database.Retention)
	v.SetDefault("database.sweep_interval", d.Database.SweepInterval)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("global.log_level: %w", err)
	}

	if err := c.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	if c.Server.RateLimit.Enabled {
		tiers := map[string]RateLimitTier{
			"auth":   c.Server.RateLimit.Auth,
			"public": c.Server.RateLimit.Public,
			"admin":  c.Server.RateLimit.Admin,
		}

		for name, tier := range tiers {
			if tier.RequestsPerMinute <= 0 {
				return fmt.Errorf("server.rate_limit.%s.requests_per_minute must be positive", name)
			}
		}
	}

	if c.Database.Enabled {
		if err := c.Database.validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

func (a *AuthConfig) validate() error {
	if a.MaxLoginAttempts <= 0 {
		return fmt.Errorf("max_login_attempts must be positive")
	}

	if a.CaptchaThreshold <= 0 || a.CaptchaThreshold > a.MaxLoginAttempts {
		return fmt.Errorf("captcha_threshold must be between 1 and max_login_attempts")
	}

	durations := map[string]time.Duration{
		"source_block_duration": a.SourceBlockDuration,
		"code_block_duration":   a.CodeBlockDuration,
		"session_duration":      a.SessionDuration,
		"inactivity_timeout":    a.InactivityTimeout,
		"attempt_window":        a.AttemptWindow,
	}

	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if a.LoginDelay < 0 {
		return fmt.Errorf("login_delay must not be negative")
	}

	if a.AttemptHistory < a.MaxLoginAttempts {
		return fmt.Errorf("attempt_history must be at least max_login_attempts")
	}

	switch a.Hasher {
	case HasherStatic:
		if a.HashSecret == "" {
			return fmt.Errorf("hash_secret is required for the static hasher")
		}
	case HasherBcrypt:
		if a.BcryptCost < 4 || a.BcryptCost > 31 {
			return fmt.Errorf("bcrypt_cost must be between 4 and 31")
		}
	default:
		return fmt.Errorf("unsupported hasher %q", a.Hasher)
	}

	switch a.Signer {
	case SignerLegacy, SignerJWT:
	default:
		return fmt.Errorf("unsupported signer %q", a.Signer)
	}

	if a.TokenSecret == "" {
		return fmt.Errorf("token_secret is required")
	}

	if a.DashboardPassword == "" {
		return fmt.Errorf("dashboard_password is required")
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case "postgres":
		if d.Postgres.Host == "" || d.Postgres.Database == "" {
			return fmt.Errorf("postgres.host and postgres.database are required")
		}
	default:
		return fmt.Errorf("unsupported driver %q", d.Driver)
	}

	if d.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}

	if d.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}

	return nil
}

// Render returns the configuration as YAML. Secrets are masked unless
// showSecrets is set.
func (c *Config) Render(showSecrets bool) ([]byte, error) {
	out := *c
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)

	if !showSecrets {
		maskIfSet(&out.Auth.HashSecret)
		maskIfSet(&out.Auth.TokenSecret)
		maskIfSet(&out.Auth.DashboardPassword)
		maskIfSet(&out.Database.Postgres.Password)
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	return data, nil
}

func maskIfSet(s *string) {
	if *s != "" {
		*s = redacted
	}
}
