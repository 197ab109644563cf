// Package config provides configuration loading using koanf.
// Precedence: environment variables over compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/time-engine/internal/domain"
)

// Snapshot cache backends.
const (
	SnapshotBackendRedis  = "redis"
	SnapshotBackendSQLite = "sqlite"
)

// Signing key sources.
const (
	KeySourceFile = "file"
	KeySourceAWS  = "aws"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	// Logging configuration
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	Engine EngineConfig `koanf:"engine"`
	JWT    JWTConfig    `koanf:"jwt"`

	// Infrastructure configurations
	DynamoDB DynamoDBConfig `koanf:"dynamodb"`
	Redis    RedisConfig    `koanf:"redis"`
	AWS      AWSConfig      `koanf:"aws"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// EngineConfig holds time engine service configuration.
type EngineConfig struct {
	HTTPPort int `koanf:"http_port"`
	GRPCPort int `koanf:"grpc_port"`

	// SnapshotBackend selects the local cache: "redis" or "sqlite".
	SnapshotBackend string `koanf:"snapshot_backend"`
	SQLitePath      string `koanf:"sqlite_path"`

	StopwatchTable   string `koanf:"stopwatch_table"`
	BedtimeTable     string `koanf:"bedtime_table"`
	AlarmsTable      string `koanf:"alarms_table"`
	PreferencesTable string `koanf:"preferences_table"`

	// MaxEngines and IdleTimeout bound the per-user engines kept in memory.
	MaxEngines  int           `koanf:"max_engines"`
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

// JWTConfig holds access token verification settings.
type JWTConfig struct {
	Issuer    string        `koanf:"issuer"`
	Audience  string        `koanf:"audience"`
	KeySource string        `koanf:"key_source"` // "file" or "aws"
	KeyPath   string        `koanf:"key_path"`   // PEM private key; empty generates an ephemeral key locally
	KeyID     string        `koanf:"key_id"`
	AccessTTL time.Duration `koanf:"access_ttl"`

	// AWS key source: the current key ID and public keys live in SSM under
	// ParamPrefix, private keys in Secrets Manager under SecretPrefix.
	ParamPrefix  string `koanf:"param_prefix"`
	SecretPrefix string `koanf:"secret_prefix"`
}

// DynamoDBConfig holds DynamoDB configuration.
type DynamoDBConfig struct {
	Endpoint string        `koanf:"endpoint"` // Empty for production (uses default AWS endpoint)
	Timeout  time.Duration `koanf:"timeout"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// AWSConfig holds AWS SDK configuration.
type AWSConfig struct {
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // LocalStack endpoint for development
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
	// Insecure exports over plaintext gRPC, for a collector sidecar or local
	// stack. Otherwise TLS with the system roots is used.
	Insecure bool `koanf:"insecure"`
}

// sections are the nested config keys. An env var whose name starts with a
// section prefix nests under it: ENGINE_HTTP_PORT → engine.http_port.
var sections = []string{"engine", "jwt", "dynamodb", "redis", "aws", "otel"}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		LogFormat:   "json",

		Engine: EngineConfig{
			HTTPPort:         8090,
			GRPCPort:         9095,
			SnapshotBackend:  SnapshotBackendRedis,
			SQLitePath:       "time-engine.db",
			StopwatchTable:   "stopwatch_sessions",
			BedtimeTable:     "bedtime_logs",
			AlarmsTable:      "alarms",
			PreferencesTable: "user_preferences",
			MaxEngines:       domain.DefaultMaxEngines,
			IdleTimeout:      domain.DefaultEngineIdleTimeout,
		},
		JWT: JWTConfig{
			Issuer:       "time-engine",
			Audience:     "time-engine-api",
			KeySource:    KeySourceFile,
			KeyID:        "dev-key-001",
			AccessTTL:    60 * time.Minute,
			ParamPrefix:  "/time-engine/jwt/",
			SecretPrefix: "time-engine/jwt/signing-key/",
		},

		DynamoDB: DynamoDBConfig{
			Timeout: domain.DynamoDBTimeout,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			DB:      0,
			Timeout: domain.RedisTimeout,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
	}
}

// envKey maps an environment variable name to a koanf key.
func envKey(s string) string {
	s = strings.ToLower(s)
	for _, section := range sections {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + strings.TrimPrefix(s, section+"_")
		}
	}
	return s
}

// Load loads configuration following the precedence:
// 1. Environment variables (highest)
// 2. Compiled defaults (lowest)
//
// Required keys missing → startup failure.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	// Start with compiled defaults
	cfg := defaults()

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	// Unmarshal into config struct
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks backend selection everywhere and required keys outside
// local development.
func validate(cfg *Config) error {
	switch cfg.Engine.SnapshotBackend {
	case SnapshotBackendRedis, SnapshotBackendSQLite:
	default:
		return fmt.Errorf("engine.snapshot_backend: unknown backend %q", cfg.Engine.SnapshotBackend)
	}
	switch cfg.JWT.KeySource {
	case KeySourceFile, KeySourceAWS:
	default:
		return fmt.Errorf("jwt.key_source: unknown source %q", cfg.JWT.KeySource)
	}

	// In local environment, most fields have sensible defaults
	if cfg.IsLocal() {
		return nil
	}

	if cfg.Engine.SnapshotBackend == SnapshotBackendRedis && cfg.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
	}
	if cfg.Engine.SnapshotBackend == SnapshotBackendSQLite && cfg.Engine.SQLitePath == "" {
		return fmt.Errorf("%w: engine.sqlite_path", domain.ErrConfigRequired)
	}
	if cfg.JWT.KeySource == KeySourceFile && cfg.JWT.KeyPath == "" {
		return fmt.Errorf("%w: jwt.key_path", domain.ErrConfigRequired)
	}

	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
