// Package config holds the service configuration and loads it from a TOML
// file, SESSIONKEEP_* environment variables and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jmcleod/sessionkeep/tokencache"
	"github.com/jmcleod/sessionkeep/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendBolt     Backend = "bbolt"
	BackendPostgres Backend = "postgres"
)

// Default configuration values
const (
	DefaultLogFormat       = LogFormatJSON
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 8080
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSharedBackend   = BackendMemory
	DefaultSweepInterval   = time.Minute
	DefaultCredBackend     = BackendBolt
	DefaultDataDir         = "./data"
)

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Host            string        `json:"host" validate:"hostname_rfc1123|ip"`
	Port            uint16        `json:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// SecretsConfig holds the key material for the secret cipher.
type SecretsConfig struct {
	// EncryptionKey is an optional URL-safe base64 32-byte key.
	EncryptionKey string `json:"encryption_key"`
	// AppSecret is the application secret the key is derived from when no
	// EncryptionKey is usable.
	AppSecret string `json:"app_secret" validate:"required"`
}

// CacheConfig tunes the process-local token cache.
type CacheConfig struct {
	// ExpiryBuffer is always positive. Zero or unset selects
	// tokencache.DefaultExpiryBuffer.
	ExpiryBuffer time.Duration `json:"expiry_buffer" validate:"gt=0"`
	// LockTimeout bounds waits on another caller's sign-in. Zero waits for
	// the request context.
	LockTimeout time.Duration `json:"lock_timeout" validate:"gte=0"`
}

// SharedConfig selects the backing cache for the shared token tier.
type SharedConfig struct {
	Backend       Backend       `json:"backend" validate:"oneof=memory bbolt postgres"`
	Service       string        `json:"service" validate:"required"`
	TTL           time.Duration `json:"ttl" validate:"gt=0"`
	SweepInterval time.Duration `json:"sweep_interval" validate:"gte=0"`
	BoltPath      string        `json:"bbolt_path"`
	PostgresDSN   string        `json:"postgres_dsn"`
}

// CredentialsConfig selects where encrypted credentials are persisted.
type CredentialsConfig struct {
	Backend     Backend `json:"backend" validate:"oneof=memory bbolt postgres"`
	BoltPath    string  `json:"bbolt_path"`
	PostgresDSN string  `json:"postgres_dsn"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level        `json:"log_level"`
	LogFormat   LogFormat         `json:"log_format" validate:"oneof=text json"`
	DataDir     string            `json:"data_dir"`
	Server      ServerConfig      `json:"server"`
	Secrets     SecretsConfig     `json:"secrets"`
	Cache       CacheConfig       `json:"cache"`
	Shared      SharedConfig      `json:"shared"`
	Credentials CredentialsConfig `json:"credentials"`
}

// ApplyDefaults fills unset config fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Cache.ExpiryBuffer == 0 {
		c.Cache.ExpiryBuffer = tokencache.DefaultExpiryBuffer
	}
	if c.Shared.Backend == "" {
		c.Shared.Backend = DefaultSharedBackend
	}
	if c.Shared.Service == "" {
		c.Shared.Service = tokenstore.DefaultService
	}
	if c.Shared.TTL == 0 {
		c.Shared.TTL = tokenstore.DefaultSharedTTL
	}
	if c.Shared.SweepInterval == 0 {
		c.Shared.SweepInterval = DefaultSweepInterval
	}
	if c.Shared.Backend == BackendBolt && c.Shared.BoltPath == "" {
		c.Shared.BoltPath = c.DataDir + "/token_cache.db"
	}
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = DefaultCredBackend
	}
	if c.Credentials.Backend == BackendBolt && c.Credentials.BoltPath == "" {
		c.Credentials.BoltPath = c.DataDir + "/credentials.db"
	}
}

// Validate validates the configuration using struct tags and backend
// specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Shared.Backend == BackendPostgres && c.Shared.PostgresDSN == "" {
		return errors.New("shared.postgres_dsn required for postgres backend")
	}
	if c.Shared.Backend == BackendBolt && c.Shared.BoltPath == "" {
		return errors.New("shared.bbolt_path required for bbolt backend")
	}
	if c.Credentials.Backend == BackendPostgres && c.Credentials.PostgresDSN == "" {
		return errors.New("credentials.postgres_dsn required for postgres backend")
	}
	if c.Credentials.Backend == BackendBolt && c.Credentials.BoltPath == "" {
		return errors.New("credentials.bbolt_path required for bbolt backend")
	}
	if c.Shared.Backend == BackendBolt && c.Credentials.Backend == BackendBolt &&
		c.Shared.BoltPath == c.Credentials.BoltPath {
		return fmt.Errorf("shared and credentials stores cannot share the bbolt file %s", c.Shared.BoltPath)
	}
	return nil
}
