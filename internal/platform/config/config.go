package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is parsed once at startup and passed down explicitly.
type Config struct {
	Server   Server
	Auth     Auth
	Storage  Storage
	Redis    RedisConfig
	Google   ProviderCredentials `envPrefix:"GOOGLE_"`
	GitHub   ProviderCredentials `envPrefix:"GITHUB_"`
	Audit    Audit
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"IDHUB_ADDR"             envDefault:":8080"`
	PublicURL       string        `env:"IDHUB_PUBLIC_URL"       envDefault:"http://localhost:8080"`
	ReadTimeout     time.Duration `env:"IDHUB_READ_TIMEOUT"     envDefault:"10s"`
	WriteTimeout    time.Duration `env:"IDHUB_WRITE_TIMEOUT"    envDefault:"15s"`
	RequestTimeout  time.Duration `env:"IDHUB_REQUEST_TIMEOUT"  envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"IDHUB_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	AdminToken      string        `env:"ADMIN_API_TOKEN"`
}

// Auth holds token, code and login policy.
type Auth struct {
	Issuer             string        `env:"JWT_ISSUER"`
	JWTSigningKey      string        `env:"JWT_SIGNING_KEY"        envDefault:"dev-secret-key-change-in-production"`
	AccessTokenTTL     time.Duration `env:"JWT_EXPIRES_IN"         envDefault:"1h"`
	SessionTTL         time.Duration `env:"SESSION_TTL"            envDefault:"24h"`
	AuthCodeTTL        time.Duration `env:"AUTH_CODE_TTL"          envDefault:"10m"`
	MagicLinkTTL       time.Duration `env:"MAGIC_LINK_TTL"         envDefault:"15m"`
	EnableMagicLink    bool          `env:"ENABLE_MAGIC_LINK"      envDefault:"true"`
	EnablePassword     bool          `env:"ENABLE_PASSWORD_LOGIN"  envDefault:"true"`
	PasswordLoginRoles []string      `env:"PASSWORD_LOGIN_ROLES"   envDefault:"admin" envSeparator:","`
	PasswordDigest     string        `env:"PASSWORD_DIGEST"        envDefault:"sha256"`
	LoginRatePerMinute int           `env:"LOGIN_RATE_PER_MINUTE"  envDefault:"20"`
	LoginBurst         int           `env:"LOGIN_RATE_BURST"       envDefault:"5"`
}

// Storage selects the persistence backends.
type Storage struct {
	Driver         string `env:"DB_DRIVER"        envDefault:"sqlite"`
	DSN            string `env:"DB_DSN"           envDefault:"idhub.db"`
	CodeStore      string `env:"CODE_STORE"       envDefault:"sql"`
	MagicLinkStore string `env:"MAGIC_LINK_STORE" envDefault:"sql"`
	AutoMigrate    bool   `env:"DB_AUTO_MIGRATE"  envDefault:"true"`
}

// RedisConfig configures the optional Redis client. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
}

// ProviderCredentials are the OAuth app credentials for one upstream
// provider. A provider is enabled only when both id and secret are set.
type ProviderCredentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

func (p ProviderCredentials) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Audit selects where audit events go. Without brokers events are logged.
type Audit struct {
	KafkaBrokers []string `env:"KAFKA_BROKERS"      envSeparator:","`
	TopicPrefix  string   `env:"AUDIT_TOPIC_PREFIX" envDefault:"idhub.audit"`
	BufferSize   int      `env:"AUDIT_BUFFER_SIZE"  envDefault:"1024"`
}

// Capabilities lists the login methods the deployment enables.
type Capabilities struct {
	Password    bool `json:"enablePasswordLogin"`
	MagicLink   bool `json:"enableMagicLink"`
	GoogleLogin bool `json:"enableGoogleLogin"`
	GitHubLogin bool `json:"enableGithubLogin"`
}

func (c *Config) Capabilities() Capabilities {
	return Capabilities{
		Password:    c.Auth.EnablePassword,
		MagicLink:   c.Auth.EnableMagicLink,
		GoogleLogin: c.Google.Enabled(),
		GitHubLogin: c.GitHub.Enabled(),
	}
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	return LoadWith(env.Options{})
}

// LoadWith parses using opts; tests pass Environment to avoid touching the
// process environment.
func LoadWith(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = strings.TrimRight(cfg.Server.PublicURL, "/")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.AuthCodeTTL <= 0 || c.Auth.SessionTTL <= 0 || c.Auth.MagicLinkTTL <= 0 {
		errs = append(errs, errors.New("token, session, code and magic link TTLs must be positive"))
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Storage.Driver))
	}
	for name, backend := range map[string]string{"CODE_STORE": c.Storage.CodeStore, "MAGIC_LINK_STORE": c.Storage.MagicLinkStore} {
		switch backend {
		case "sql", "memory":
		case "redis":
			if c.Redis.URL == "" {
				errs = append(errs, fmt.Errorf("%s=redis requires REDIS_URL", name))
			}
		default:
			errs = append(errs, fmt.Errorf("%s must be sql, redis or memory, got %q", name, backend))
		}
	}
	switch c.Auth.PasswordDigest {
	case "sha256", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_DIGEST must be sha256 or bcrypt, got %q", c.Auth.PasswordDigest))
	}
	return errors.Join(errs...)
}
