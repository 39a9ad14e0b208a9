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
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".agentgate/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"agentgate/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type SandboxEnv struct {
	// RootDir holds one sandbox directory per system user.
	RootDir string `envconfig:"SANDBOX_ROOT_DIR" default:".agentgate/sandbox"`
	// AllowedBinaries are the only binaries the sandboxed "run" verb may
	// spawn. Keep this to binaries that cannot shell out: sed (the GNU "e"
	// command) and awk (system()) can reach a real interpreter and must not
	// be listed here.
	AllowedBinaries []string `envconfig:"SANDBOX_ALLOWED_BINARIES" default:"cat,grep,sort,head,tail,wc"`
}

type ExecutorEnv struct {
	RetryAttempts  int           `envconfig:"EXECUTOR_RETRY_ATTEMPTS" default:"2"`
	RetryDelay     time.Duration `envconfig:"EXECUTOR_RETRY_DELAY" default:"2s"`
	StepTimeout    time.Duration `envconfig:"EXECUTOR_STEP_TIMEOUT" default:"1m"`
	OverallTimeout time.Duration `envconfig:"EXECUTOR_OVERALL_TIMEOUT" default:"5m"`
}

type ApprovalEnv struct {
	// TTL bounds how long a job may wait in AwaitingApproval. Zero means
	// jobs park forever; expiry only happens when the sweep is invoked.
	TTL time.Duration `envconfig:"APPROVAL_TTL" default:"0"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	SandboxEnv
	ExecutorEnv
	ApprovalEnv
	VAPIDEnv
}

const namespace = "AGENTGATE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
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

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
