package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const redacted = "[REDACTED]"

// ErrConfigurationMissing means no primary signing secret was configured.
// It is a deployment error and aborts startup.
var ErrConfigurationMissing = errors.New("configuration missing: primary signing secret is required")

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	API      APIConfig      `mapstructure:"api"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig     `mapstructure:"tls"`

	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed. Empty means the socket peer is the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// TLSConfig holds TLS/SSL configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Type         string        `mapstructure:"type"` // postgres, sqlite
	URL          string        `mapstructure:"url"`  // postgres DSN, overrides host/port/...
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	Path         string        `mapstructure:"path"`    // For SQLite
	SSLMode      string        `mapstructure:"sslmode"` // For PostgreSQL
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	SeedDemo     bool          `mapstructure:"seed_demo"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// AuthConfig holds the demo principal, signing secrets and token lifetimes.
type AuthConfig struct {
	DemoUsername      string        `mapstructure:"demo_username"`
	DemoPassword      string        `mapstructure:"demo_password"`
	SecretKey         string        `mapstructure:"secret_key"`
	RefreshSecret     string        `mapstructure:"refresh_secret"`
	Issuer            string        `mapstructure:"issuer"`
	AccessTokenTTL    time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL   time.Duration `mapstructure:"refresh_token_ttl"`
	TimezoneCookieTTL time.Duration `mapstructure:"timezone_cookie_ttl"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
	CookieSecure      bool          `mapstructure:"cookie_secure"`
	CookieDomain      string        `mapstructure:"cookie_domain"`

	// RefreshSecretGenerated is set when no refresh secret was configured and
	// one was generated for this process only.
	RefreshSecretGenerated bool `mapstructure:"-"`
}

// APIConfig holds API-related configuration
type APIConfig struct {
	RateLimit       int           `mapstructure:"rate_limit"` // requests per window
	RateWindow      time.Duration `mapstructure:"rate_window"`
	LoginRateLimit  int           `mapstructure:"login_rate_limit"`
	LoginRateWindow time.Duration `mapstructure:"login_rate_window"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// LoadDotEnv loads environment files, ignoring the ones that do not exist.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables. An
// empty or missing config file falls back to defaults and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MSGBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "msgboard")
	v.SetDefault("database.path", "./data/msgboard.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.seed_demo", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "./logs/app.log")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Auth defaults
	v.SetDefault("auth.demo_username", "user@example.com")
	v.SetDefault("auth.demo_password", "12341234")
	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.refresh_secret", "")
	v.SetDefault("auth.issuer", "msgboard")
	v.SetDefault("auth.access_token_ttl", "30m")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.timezone_cookie_ttl", "8760h")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.cookie_secure", true)
	v.SetDefault("auth.cookie_domain", "")

	// API defaults
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.rate_window", "1m")
	v.SetDefault("api.login_rate_limit", 5)
	v.SetDefault("api.login_rate_window", "1m")

	// CORS defaults
	v.SetDefault("api.cors.allowed_origins", []string{"http://localhost:8000"})
	v.SetDefault("api.cors.allowed_methods", []string{"GET", "POST"})
	v.SetDefault("api.cors.allowed_headers", []string{"Content-Type", "HX-Request", "HX-Target", "HX-Current-URL", "HX-Trigger"})
	v.SetDefault("api.cors.allow_credentials", true)
	v.SetDefault("api.cors.max_age", 86400)
}

// overrideWithEnvVars maps the unprefixed variable names the service has
// always read onto config keys.
func overrideWithEnvVars(v *viper.Viper) {
	envMappings := map[string]string{
		"SECRET_KEY":         "auth.secret_key",
		"JWT_REFRESH_SECRET": "auth.refresh_secret",
		"DEMO_USERNAME":      "auth.demo_username",
		"DEMO_PASSWORD":      "auth.demo_password",
		"DATABASE_URL":       "database.url",
		"DB_PASSWORD":        "database.password",
		"DB_USER":            "database.user",
		"LOG_LEVEL":          "logging.level",
		"GIN_MODE":           "server.mode",
		"PORT":               "server.port",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}

	// A postgres DATABASE_URL selects the postgres driver.
	if url := os.Getenv("DATABASE_URL"); strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		v.Set("database.type", "postgres")
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Auth.SecretKey == "" {
		return ErrConfigurationMissing
	}

	if config.Auth.RefreshSecret == "" {
		secret, err := generateSecret(32)
		if err != nil {
			return fmt.Errorf("generate refresh secret: %w", err)
		}
		config.Auth.RefreshSecret = secret
		config.Auth.RefreshSecretGenerated = true
	}

	if config.Auth.RefreshSecret == config.Auth.SecretKey {
		return fmt.Errorf("refresh secret must differ from the primary secret")
	}

	if config.Auth.DemoUsername == "" || config.Auth.DemoPassword == "" {
		return fmt.Errorf("demo username and password are required")
	}

	if config.Auth.AccessTokenTTL <= 0 || config.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttls must be > 0")
	}

	if config.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if config.API.LoginRateLimit <= 0 || config.API.LoginRateWindow <= 0 {
		return fmt.Errorf("login rate limit and window must be > 0")
	}

	switch config.Database.Type {
	case "postgres":
		if config.Database.URL == "" && (config.Database.Host == "" || config.Database.User == "") {
			return fmt.Errorf("postgres requires url or host and user")
		}
	case "sqlite":
		if config.Database.Path == "" {
			return fmt.Errorf("sqlite requires path")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Server.TLS.Enabled && (config.Server.TLS.CertFile == "" || config.Server.TLS.KeyFile == "") {
		return fmt.Errorf("tls requires cert_file and key_file")
	}

	return nil
}

func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DriverName returns the database/sql driver registered for the type.
func (d DatabaseConfig) DriverName() string {
	switch d.Type {
	case "postgres":
		return "postgres"
	case "sqlite":
		return "sqlite3"
	default:
		return ""
	}
}

// DSN returns the database connection string
func (d DatabaseConfig) DSN() string {
	switch d.Type {
	case "postgres":
		if d.URL != "" {
			return d.URL
		}
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.DBName, sslMode)
	case "sqlite":
		// Foreign keys on, and a busy timeout so concurrent writers wait.
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", d.Path)
	default:
		return ""
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Mode == "release" || c.Server.Mode == "production"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// SanitizeForLogging returns a copy of the config with sensitive data redacted
func (c *Config) SanitizeForLogging() *Config {
	sanitized := *c

	if sanitized.Database.Password != "" {
		sanitized.Database.Password = redacted
	}
	if sanitized.Database.URL != "" {
		sanitized.Database.URL = redacted
	}
	if sanitized.Auth.SecretKey != "" {
		sanitized.Auth.SecretKey = redacted
	}
	if sanitized.Auth.RefreshSecret != "" {
		sanitized.Auth.RefreshSecret = redacted
	}
	if sanitized.Auth.DemoPassword != "" {
		sanitized.Auth.DemoPassword = redacted
	}

	return &sanitized
}
