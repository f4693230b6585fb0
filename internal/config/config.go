// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

// Package config loads SimVault settings from defaults, an optional YAML
// file and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/simvault/simvault/internal/auth"
	"github.com/simvault/simvault/internal/store"
	"github.com/simvault/simvault/internal/xdg"
)

// Environment fallbacks for values that should not live in a config file
// checked into a repository.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvJWTSecret   = "SIMVAULT_JWT_SECRET"
)

// Config is the complete SimVault configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Log      LogConfig      `koanf:"log"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// JWTConfig selects the access token signing key.
type JWTConfig struct {
	Algorithm      string `koanf:"algorithm"`
	Secret         string `koanf:"secret"`
	PrivateKeyFile string `koanf:"private_key_file"`
	Issuer         string `koanf:"issuer"`
}

// Argon2Config tunes password hashing cost.
type Argon2Config struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// AuthConfig configures the session service.
type AuthConfig struct {
	JWT                 JWTConfig     `koanf:"jwt"`
	AccessTokenTTL      time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL     time.Duration `koanf:"refresh_token_ttl"`
	RequestTimeout      time.Duration `koanf:"request_timeout"`
	HashConcurrency     int           `koanf:"hash_concurrency"`
	Argon2              Argon2Config  `koanf:"argon2"`
	AllowlistCacheTTL   time.Duration `koanf:"allowlist_cache_ttl"`
	RevokeFamilyOnReuse bool          `koanf:"revoke_family_on_reuse"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	argon := auth.DefaultArgon2Params()
	return Config{
		Database: DatabaseConfig{
			ConnectRetries: store.DefaultConnectRetries,
		},
		Auth: AuthConfig{
			JWT:               JWTConfig{Algorithm: auth.AlgorithmHS256},
			AccessTokenTTL:    auth.DefaultAccessTokenTTL,
			RefreshTokenTTL:   auth.DefaultRefreshTokenTTL,
			RequestTimeout:    auth.DefaultRequestTimeout,
			HashConcurrency:   0,
			AllowlistCacheTTL: auth.DefaultAllowlistCacheTTL,
			Argon2: Argon2Config{
				Time:      argon.Time,
				MemoryKiB: argon.MemoryKiB,
				Threads:   argon.Threads,
			},
		},
		Log: LogConfig{Format: "json", Level: "info"},
	}
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("database-url", "", "PostgreSQL connection URL (default $"+EnvDatabaseURL+")")
	fs.String("log-format", def.Log.Format, "log format (json or text)")
	fs.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
}

// Load builds the configuration. path names a YAML file; when empty the XDG
// default location is used if it exists. Only flags the user actually set
// override file values.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = xdg.ConfigFile(); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("operation", "resolve config path").Wrap(err)
		}
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(EnvDatabaseURL)
	}
	if cfg.Auth.JWT.Secret == "" {
		cfg.Auth.JWT.Secret = os.Getenv(EnvJWTSecret)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings every command depends on. Database and signing
// key presence are checked separately by the commands that need them.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").Errorf(format, args...)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}

	a := c.Auth
	switch a.JWT.Algorithm {
	case auth.AlgorithmHS256, auth.AlgorithmEdDSA:
	default:
		return invalid("auth.jwt.algorithm must be %s or %s, got %q", auth.AlgorithmHS256, auth.AlgorithmEdDSA, a.JWT.Algorithm)
	}
	if a.AccessTokenTTL <= 0 {
		return invalid("auth.access_token_ttl must be positive")
	}
	if a.RefreshTokenTTL <= a.AccessTokenTTL {
		return invalid("auth.refresh_token_ttl (%s) must exceed auth.access_token_ttl (%s)", a.RefreshTokenTTL, a.AccessTokenTTL)
	}
	if a.RequestTimeout <= 0 {
		return invalid("auth.request_timeout must be positive")
	}
	if a.HashConcurrency < 0 {
		return invalid("auth.hash_concurrency must not be negative")
	}
	if a.AllowlistCacheTTL < 0 {
		return invalid("auth.allowlist_cache_ttl must not be negative")
	}
	if err := c.Argon2Params().Validate(); err != nil {
		return invalid("auth.argon2: %v", err)
	}
	return nil
}

// RequireDatabase reports a configuration error when no database URL is set.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.url is required (set it in the config file, --database-url or $%s)", EnvDatabaseURL)
	}
	return nil
}

// Argon2Params converts the hashing settings.
func (c *Config) Argon2Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params()
	p.Time = c.Auth.Argon2.Time
	p.MemoryKiB = c.Auth.Argon2.MemoryKiB
	p.Threads = c.Auth.Argon2.Threads
	return p
}

// IssuerConfig resolves the signing key material. The EdDSA key is read
// from auth.jwt.private_key_file.
func (c *Config) IssuerConfig() (auth.IssuerConfig, error) {
	jwtCfg := c.Auth.JWT
	cfg := auth.IssuerConfig{
		Algorithm: jwtCfg.Algorithm,
		Issuer:    jwtCfg.Issuer,
		AccessTTL: c.Auth.AccessTokenTTL,
	}

	switch jwtCfg.Algorithm {
	case auth.AlgorithmEdDSA:
		if jwtCfg.PrivateKeyFile == "" {
			return cfg, oops.Code("CONFIG_INVALID").Errorf("auth.jwt.private_key_file is required for %s", auth.AlgorithmEdDSA)
		}
		pem, err := os.ReadFile(jwtCfg.PrivateKeyFile)
		if err != nil {
			return cfg, oops.Code("CONFIG_INVALID").
				With("path", jwtCfg.PrivateKeyFile).
				Wrap(fmt.Errorf("read signing key: %w", err))
		}
		cfg.PrivateKeyPEM = pem
	default:
		if len(jwtCfg.Secret) < auth.MinHMACSecretLen {
			return cfg, oops.Code("CONFIG_INVALID").
				Errorf("auth.jwt.secret must be at least %d bytes (or set $%s)", auth.MinHMACSecretLen, EnvJWTSecret)
		}
		cfg.Secret = []byte(jwtCfg.Secret)
	}
	return cfg, nil
}
