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
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".ganttguild/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"ganttguild/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type SchedulerEnv struct {
	// RecalcDebounce coalesces bursts of edits into one recalculation pass.
	RecalcDebounce time.Duration `envconfig:"RECALC_DEBOUNCE" default:"200ms"`
	// PassTimeout bounds the storage I/O of one pass. Zero disables it.
	PassTimeout time.Duration `envconfig:"PASS_TIMEOUT" default:"30s"`
	// EventBuffer is the bus subscription buffer of background subscribers.
	EventBuffer int `envconfig:"EVENT_BUFFER" default:"256"`
}

// VAPIDEnv configures web push. Push is disabled when the keys are empty.
type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Contact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

func (e *VAPIDEnv) Enabled() bool {
	return e != nil && e.PublicKey != "" && e.PrivateKey != ""
}

type Env struct {
	BaseEnv
	StorageEnv
	SchedulerEnv
	VAPIDEnv
}

const namespace = "GANTTGUILD"

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
	// envconfig accepts a set but empty variable as present.
	if e.APIKey == "" {
		return fmt.Errorf("%s_API_KEY must not be empty", namespace)
	}
	switch e.StorageEnv.Type {
	case "local":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("%s_S3_BUCKET is required for s3 storage", namespace)
		}
	default:
		return fmt.Errorf("unknown storage type %q", e.StorageEnv.Type)
	}
	if e.RecalcDebounce < 0 {
		return fmt.Errorf("%s_RECALC_DEBOUNCE must not be negative", namespace)
	}
	if e.PassTimeout < 0 {
		return fmt.Errorf("%s_PASS_TIMEOUT must not be negative", namespace)
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

func (e *BaseEnv) Addr() string {
	return e.HTTPHost + ":" + e.HTTPPort
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func SchedulerEnvFromEnv(env *Env) *SchedulerEnv {
	return &env.SchedulerEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
