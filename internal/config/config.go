// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

// Package config loads the Nestling server configuration.
//
// Values are layered in this order, later sources winning:
// built-in defaults (exposed as flag defaults), the YAML config file,
// flags set on the command line, and finally DATABASE_URL when no
// database URL was configured anywhere else.
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/nestling/nestling/internal/logging"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseURLEnv is read when database.url is empty.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server" json:"server" yaml:"server"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Database DatabaseConfig `koanf:"database" json:"database" yaml:"database"`
	Auth     AuthConfig     `koanf:"auth" json:"auth" yaml:"auth"`
	Log      LogConfig      `koanf:"log" json:"log" yaml:"log"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=API listen address"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout,omitempty" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" json:"write_timeout,omitempty" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout"`
	// AccessLogSkip holds glob patterns for paths left out of the access log.
	AccessLogSkip []string `koanf:"access_log_skip" json:"access_log_skip,omitempty" yaml:"access_log_skip"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=Metrics and health listen address; empty disables"`
}

// DatabaseConfig selects and tunes the user and session store.
type DatabaseConfig struct {
	Driver         string `koanf:"driver" json:"driver,omitempty" yaml:"driver" jsonschema:"enum=postgres,enum=memory"`
	URL            string `koanf:"url" json:"url,omitempty" yaml:"url"`
	MaxConns       int32  `koanf:"max_conns" json:"max_conns,omitempty" yaml:"max_conns" jsonschema:"minimum=0"`
	ConnectRetries uint64 `koanf:"connect_retries" json:"connect_retries,omitempty" yaml:"connect_retries"`
	AutoMigrate    bool   `koanf:"auto_migrate" json:"auto_migrate,omitempty" yaml:"auto_migrate"`
}

// AuthConfig tunes sessions and password hashing.
type AuthConfig struct {
	SessionTTL    time.Duration `koanf:"session_ttl" json:"session_ttl,omitempty" yaml:"session_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval" json:"sweep_interval,omitempty" yaml:"sweep_interval" jsonschema:"description=Expired session sweep period; 0 disables"`
	Argon2        Argon2Config  `koanf:"argon2" json:"argon2,omitempty" yaml:"argon2"`
}

// Argon2Config is the argon2id work factor for new hashes.
type Argon2Config struct {
	Time      uint32 `koanf:"time" json:"time,omitempty" yaml:"time" jsonschema:"minimum=1"`
	MemoryKiB uint32 `koanf:"memory_kib" json:"memory_kib,omitempty" yaml:"memory_kib" jsonschema:"minimum=8"`
	Threads   uint8  `koanf:"threads" json:"threads,omitempty" yaml:"threads" jsonschema:"minimum=1"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AccessLogSkip:   []string{"/healthz/*"},
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			Driver:         DriverPostgres,
			MaxConns:       10,
			ConnectRetries: 5,
		},
		Auth: AuthConfig{
			SessionTTL:    7 * 24 * time.Hour,
			SweepInterval: time.Hour,
			Argon2: Argon2Config{
				Time:      1,
				MemoryKiB: 64 * 1024,
				Threads:   4,
			},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// flagKeys maps CLI flag names to config keys. Flags not listed here,
// such as --config, are not config values.
var flagKeys = map[string]string{
	"addr":            "server.addr",
	"metrics-addr":    "metrics.addr",
	"database-driver": "database.driver",
	"database-url":    "database.url",
	"auto-migrate":    "database.auto_migrate",
	"session-ttl":     "auth.session_ttl",
	"sweep-interval":  "auth.sweep_interval",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// RegisterFlags adds the overridable config flags to fs, with the
// built-in defaults as flag defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("addr", def.Server.Addr, "API listen address")
	fs.String("metrics-addr", def.Metrics.Addr, "metrics/health listen address (empty = disabled)")
	fs.String("database-driver", def.Database.Driver, "store driver (postgres or memory)")
	fs.String("database-url", "", "Postgres URL (default: $"+DatabaseURLEnv+")")
	fs.Bool("auto-migrate", def.Database.AutoMigrate, "apply pending migrations on startup")
	fs.Duration("session-ttl", def.Auth.SessionTTL, "session lifetime")
	fs.Duration("sweep-interval", def.Auth.SweepInterval, "expired session sweep period (0 = disabled)")
	fs.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", def.Log.Format, "log format (json or text)")
}

// Loader reads configuration from a file, flags, and the environment.
type Loader struct {
	// Path is the YAML file to read; empty means no file.
	Path string
	// Flags holds flags registered with RegisterFlags. May be nil.
	Flags *pflag.FlagSet
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load builds the effective configuration and validates it.
func (l Loader) Load() (*Config, error) {
	ko := koanf.New(".")

	if l.Path != "" {
		data, err := os.ReadFile(l.Path)
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", l.Path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.With("path", l.Path).Wrap(err)
		}
		if err := ko.Load(file.Provider(l.Path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", l.Path).Wrap(err)
		}
	}

	if l.Flags != nil {
		provider := posflag.ProviderWithFlag(l.Flags, ".", ko, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(l.Flags, f)
		})
		if err := ko.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := ko.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if cfg.Database.URL == "" {
		getenv := l.Getenv
		if getenv == nil {
			getenv = os.Getenv
		}
		cfg.Database.URL = getenv(DatabaseURLEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func invalid(field, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate checks semantic rules the schema cannot express.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", "server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "server.shutdown_timeout must be positive")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return invalid("server", "server timeouts must not be negative")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database.url (or %s) is required for the postgres driver", DatabaseURLEnv)
		}
	case DriverMemory:
		if c.Database.AutoMigrate {
			return invalid("database.auto_migrate", "auto_migrate requires the postgres driver")
		}
	default:
		return invalid("database.driver", "database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver)
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "database.max_conns must not be negative")
	}

	if c.Auth.SessionTTL <= 0 {
		return invalid("auth.session_ttl", "auth.session_ttl must be positive")
	}
	if c.Auth.SweepInterval < 0 {
		return invalid("auth.sweep_interval", "auth.sweep_interval must not be negative")
	}
	a := c.Auth.Argon2
	if a.Time < 1 || a.Threads < 1 {
		return invalid("auth.argon2", "argon2 time and threads must be at least 1")
	}
	if a.MemoryKiB < 8*uint32(a.Threads) {
		return invalid("auth.argon2.memory_kib", "argon2 memory_kib must be at least 8 per thread")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log.level %q is not a known level", c.Log.Level)
	}
	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		return invalid("log.format", "log.format must be %q or %q, got %q", logging.FormatJSON, logging.FormatText, c.Log.Format)
	}
	return nil
}

// Redacted returns a copy safe to print: the database password is masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Server.AccessLogSkip = append([]string(nil), c.Server.AccessLogSkip...)
	if u, err := url.Parse(c.Database.URL); err == nil && u.User != nil {
		out.Database.URL = u.Redacted()
	}
	return out
}
