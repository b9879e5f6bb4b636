package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	// APIKey protects the HTTP API when non-empty.
	APIKey string `envconfig:"API_KEY"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".autoprovision/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"autoprovision/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// Postgres settings (used when Type == "postgres")
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
}

type DiscoveryEnv struct {
	// Endpoint is the MCP gateway URL; "{organization}" is replaced with the
	// connection's organization ID.
	Endpoint       string        `envconfig:"DISCOVERY_ENDPOINT"`
	Token          string        `envconfig:"DISCOVERY_TOKEN"`
	MaxAttempts    int           `envconfig:"DISCOVERY_MAX_ATTEMPTS" default:"3"`
	BaseDelay      time.Duration `envconfig:"DISCOVERY_BASE_DELAY" default:"2s"`
	Multiplier     float64       `envconfig:"DISCOVERY_MULTIPLIER" default:"2.5"`
	MaxDelay       time.Duration `envconfig:"DISCOVERY_MAX_DELAY" default:"30s"`
	AttemptTimeout time.Duration `envconfig:"DISCOVERY_ATTEMPT_TIMEOUT" default:"10s"`
}

type BlueprintEnv struct {
	Dir string `envconfig:"BLUEPRINT_DIR"`
}

type ReconcileEnv struct {
	Concurrency int `envconfig:"RECONCILE_CONCURRENCY" default:"4"`
}

type Env struct {
	BaseEnv
	StorageEnv
	DiscoveryEnv
	BlueprintEnv
	ReconcileEnv
}

const namespace = "AUTOPROVISION"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) validate() error {
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("%s_S3_BUCKET is required when STORAGE_TYPE=s3", namespace)
		}
	case "postgres":
		if e.PostgresDSN == "" {
			return fmt.Errorf("%s_POSTGRES_DSN is required when STORAGE_TYPE=postgres", namespace)
		}
	default:
		return fmt.Errorf("unknown storage type: %s", e.StorageEnv.Type)
	}
	if e.MaxAttempts < 1 {
		return fmt.Errorf("%s_DISCOVERY_MAX_ATTEMPTS must be >= 1, got %d", namespace, e.MaxAttempts)
	}
	if e.Multiplier < 1 {
		return fmt.Errorf("%s_DISCOVERY_MULTIPLIER must be >= 1, got %v", namespace, e.Multiplier)
	}
	if e.Concurrency < 1 {
		e.Concurrency = 1
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func (e *BaseEnv) IsLocal() bool {
	return e.Env == "local"
}

func (e *BaseEnv) Addr() string {
	return e.HTTPHost + ":" + e.HTTPPort
}
