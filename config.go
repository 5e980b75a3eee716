package pubapi

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eringen/pubapi/contact"
	"github.com/eringen/pubapi/logs"
	"github.com/eringen/pubapi/storage"
	"github.com/eringen/pubapi/telemetry"
)

// SiteConfig holds all configuration for a pubapi service.
type SiteConfig struct {
	Site      SiteInfo         `mapstructure:"site"`
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Features  FeaturesConfig   `mapstructure:"features"`
	Admin     AdminConfig      `mapstructure:"admin"`
	RateLimit RateLimitConfig  `mapstructure:"ratelimit"`
	Mail      MailConfig       `mapstructure:"mail"`
	Logging   logs.Config      `mapstructure:"logging"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// SiteInfo describes the public site; URL is the base for feed and
// sitemap links.
type SiteInfo struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url"`
	Description string `mapstructure:"description"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Environment     string        `mapstructure:"environment"`
	StaticDir       string        `mapstructure:"static_dir"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`

	// StrictProvisioning makes a failed schema provisioning fatal for serve.
	StrictProvisioning bool `mapstructure:"strict_provisioning"`
}

// Storage converts to the storage package's config.
func (d DatabaseConfig) Storage() storage.Config {
	return storage.Config{
		Driver:       d.Driver,
		DSN:          d.DSN,
		MaxOpenConns: d.MaxOpenConns,
		MaxIdleConns: d.MaxIdleConns,
	}
}

type FeaturesConfig struct {
	Blog bool `mapstructure:"blog"`
}

// AdminConfig gates the administrative endpoints. An empty Password leaves
// them open.
type AdminConfig struct {
	Password      string `mapstructure:"password"`
	SessionSecret string `mapstructure:"session_secret"`
	CookieSecure  bool   `mapstructure:"cookie_secure"`
}

// RateLimitConfig limits contact submissions per client IP. Zero means the
// default of 5 per minute; a negative value turns the limit off.
type RateLimitConfig struct {
	ContactPerMinute int    `mapstructure:"contact_per_minute"`
	RedisAddr        string `mapstructure:"redis_addr"`
	RedisPassword    string `mapstructure:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db"`
}

type MailConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	UseTLS   bool          `mapstructure:"use_tls"`
	From     string        `mapstructure:"from"`
	To       []string      `mapstructure:"to"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() SiteConfig {
	var c SiteConfig
	c.Features.Blog = true
	c.Logging.Stdout = true
	c.setDefaults()
	return c
}

func (c *SiteConfig) setDefaults() {
	if c.Site.Name == "" {
		c.Site.Name = "Blog"
	}
	if c.Site.URL == "" {
		c.Site.URL = "http://localhost:3000"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "production"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = string(storage.SQLite)
	}
	if c.Database.DSN == "" && c.Database.Driver == string(storage.SQLite) {
		c.Database.DSN = "data/pubapi.db"
	}
	if c.RateLimit.ContactPerMinute == 0 {
		c.RateLimit.ContactPerMinute = 5
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "pubapi"
	}
}

// Validate reports settings that cannot work together.
func (c SiteConfig) Validate() error {
	var errs []error
	if _, err := storage.ParseDialect(c.Database.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Admin.Password != "" && len(c.Admin.SessionSecret) < 32 {
		errs = append(errs, errors.New("admin.session_secret must be at least 32 bytes when admin.password is set"))
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "" || len(c.Mail.To) == 0) {
		errs = append(errs, errors.New("mail.host, mail.from and mail.to are required when mail is enabled"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs in development mode.
func (c SiteConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Environment, "development")
}

// LoadConfig reads path (optional; a missing file falls back to defaults)
// and applies PUBAPI_* environment overrides, e.g. PUBAPI_DATABASE_DSN for
// database.dsn.
func LoadConfig(path string) (SiteConfig, error) {
	v := viper.New()
	bindDefaults(v, DefaultConfig())

	v.SetEnvPrefix("PUBAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return SiteConfig{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg SiteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return SiteConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// bindDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func bindDefaults(v *viper.Viper, d SiteConfig) {
	v.SetDefault("site.name", d.Site.Name)
	v.SetDefault("site.url", d.Site.URL)
	v.SetDefault("site.description", d.Site.Description)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("database.driver", d.Database.Driver)
	// Left empty so setDefaults can pick a path that matches the driver.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.strict_provisioning", d.Database.StrictProvisioning)

	v.SetDefault("features.blog", d.Features.Blog)

	v.SetDefault("admin.password", d.Admin.Password)
	v.SetDefault("admin.session_secret", d.Admin.SessionSecret)
	v.SetDefault("admin.cookie_secure", d.Admin.CookieSecure)

	v.SetDefault("ratelimit.contact_per_minute", d.RateLimit.ContactPerMinute)
	v.SetDefault("ratelimit.redis_addr", d.RateLimit.RedisAddr)
	v.SetDefault("ratelimit.redis_password", d.RateLimit.RedisPassword)
	v.SetDefault("ratelimit.redis_db", d.RateLimit.RedisDB)

	v.SetDefault("mail.enabled", d.Mail.Enabled)
	v.SetDefault("mail.host", d.Mail.Host)
	v.SetDefault("mail.port", d.Mail.Port)
	v.SetDefault("mail.username", d.Mail.Username)
	v.SetDefault("mail.password", d.Mail.Password)
	v.SetDefault("mail.use_tls", d.Mail.UseTLS)
	v.SetDefault("mail.from", d.Mail.From)
	v.SetDefault("mail.to", d.Mail.To)
	v.SetDefault("mail.timeout", d.Mail.Timeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.stdout", d.Logging.Stdout)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)
	v.SetDefault("logging.file.max_size_mb", d.Logging.File.MaxSizeMB)
	v.SetDefault("logging.file.max_backups", d.Logging.File.MaxBackups)
	v.SetDefault("logging.file.max_age_days", d.Logging.File.MaxAgeDays)
	v.SetDefault("logging.file.compress", d.Logging.File.Compress)

	v.SetDefault("telemetry.tracing_enabled", d.Telemetry.TracingEnabled)
	v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.metrics_enabled", d.Telemetry.MetricsEnabled)
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance after
// the built-in ones.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithNotifier sets the contact notifier, replacing the mail notifier built
// from config.
func WithNotifier(n contact.Notifier) Option {
	return func(a *App) {
		a.notifier = n
	}
}

// WithContactLimiter replaces the contact submission limiter.
func WithContactLimiter(l RateLimiter) Option {
	return func(a *App) {
		a.contactLimiter = l
	}
}
