// Package common provides shared utilities for the railyard engine.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the railyard engine.
type Config struct {
	Environment string       `toml:"environment"`
	Engine      EngineConfig `toml:"engine"`
	AWS         AWSConfig    `toml:"aws"`
	Repackager  RepackConfig `toml:"repackager"`
	Logging     LoggingConfig `toml:"logging"`
	VCS         VCSConfig    `toml:"vcs"`
}

// VCSConfig configures the optional PR-acknowledgement capability.
type VCSConfig struct {
	GithubTokenRef string `toml:"github_token_ref"` // Secrets Manager path; empty disables PR acknowledgement
}

// EngineConfig holds cross-component tuning knobs.
type EngineConfig struct {
	LockTTL           string `toml:"lock_ttl"`            // default "30s"
	DispatchFanout    int    `toml:"dispatch_fanout"`     // default 10
	WatchdogInterval  string `toml:"watchdog_interval"`   // default "15s"
	RetryBaseDelay    string `toml:"retry_base_delay"`    // default "500ms"
	RetryMaxDelay     string `toml:"retry_max_delay"`     // default "16s"
	RetryMaxAttempts  int    `toml:"retry_max_attempts"`  // default 4
}

// GetLockTTL parses and returns the lock TTL duration.
func (c *EngineConfig) GetLockTTL() time.Duration {
	d, err := time.ParseDuration(c.LockTTL)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetWatchdogInterval parses and returns the watchdog tick interval.
func (c *EngineConfig) GetWatchdogInterval() time.Duration {
	d, err := time.ParseDuration(c.WatchdogInterval)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetRetryBaseDelay parses and returns the retry base delay.
func (c *EngineConfig) GetRetryBaseDelay() time.Duration {
	d, err := time.ParseDuration(c.RetryBaseDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetRetryMaxDelay parses and returns the retry cap delay.
func (c *EngineConfig) GetRetryMaxDelay() time.Duration {
	d, err := time.ParseDuration(c.RetryMaxDelay)
	if err != nil {
		return 16 * time.Second
	}
	return d
}

// GetDispatchFanout returns the bounded-concurrency fan-out width, defaulting to 10.
func (c *EngineConfig) GetDispatchFanout() int {
	if c.DispatchFanout <= 0 {
		return 10
	}
	return c.DispatchFanout
}

// GetRetryMaxAttempts returns the retry attempt ceiling, defaulting to 4.
func (c *EngineConfig) GetRetryMaxAttempts() int {
	if c.RetryMaxAttempts <= 0 {
		return 4
	}
	return c.RetryMaxAttempts
}

// AWSConfig holds the AWS resource identifiers the engine talks to.
type AWSConfig struct {
	Region           string           `toml:"region"`
	Endpoint         string           `toml:"endpoint"` // optional: LocalStack / dynamodb-local override
	DynamoDB         DynamoDBConfig   `toml:"dynamodb"`
	S3               S3Config         `toml:"s3"`
	SSM              SSMConfig        `toml:"ssm"`
	SecretsManager   SecretsConfig    `toml:"secrets_manager"`
	Lambda           LambdaConfig     `toml:"lambda"`
	CodeBuild        CodeBuildConfig  `toml:"codebuild"`
	StepFunctions    SFNConfig        `toml:"step_functions"`
}

// DynamoDBConfig names the three tables the engine owns.
type DynamoDBConfig struct {
	OrdersTable      string `toml:"orders_table"`
	OrderEventsTable string `toml:"order_events_table"`
	LocksTable       string `toml:"locks_table"`
}

// S3Config holds the object store bucket and key layout.
type S3Config struct {
	Bucket        string `toml:"bucket"`
	ArchivePrefix string `toml:"archive_prefix"` // e.g. "archives/"
	CallbackPrefix string `toml:"callback_prefix"` // e.g. "callbacks/"
	DonePrefix    string `toml:"done_prefix"`    // e.g. "done/"
	PresignTTL    string `toml:"presign_ttl"`    // default "15m"
}

// GetPresignTTL parses and returns the presigned-URL TTL.
func (c *S3Config) GetPresignTTL() time.Duration {
	d, err := time.ParseDuration(c.PresignTTL)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// SSMConfig holds the Parameter Store prefix for resolved parameter references.
type SSMConfig struct {
	ParameterPrefix string `toml:"parameter_prefix"`
}

// SecretsConfig holds the Secrets Manager prefix, including where envelope
// private keys are persisted by the repackager.
type SecretsConfig struct {
	SecretPrefix   string `toml:"secret_prefix"`
	SopsKeyPrefix  string `toml:"sops_key_prefix"` // e.g. "/railyard/sops-keys"
	SopsKeyTTL     string `toml:"sops_key_ttl"`    // default "2h"
}

// GetSopsKeyTTL parses and returns the envelope-key expiration window.
func (c *SecretsConfig) GetSopsKeyTTL() time.Duration {
	d, err := time.ParseDuration(c.SopsKeyTTL)
	if err != nil {
		return 2 * time.Hour
	}
	return d
}

// LambdaConfig configures the function back-end dispatcher.
type LambdaConfig struct {
	FunctionPrefix string `toml:"function_prefix"`
}

// CodeBuildConfig configures the build back-end dispatcher.
type CodeBuildConfig struct {
	ProjectPrefix string `toml:"project_prefix"`
}

// SFNConfig configures the watchdog state-machine handle bookkeeping.
type SFNConfig struct {
	StateMachineARN string `toml:"state_machine_arn"`
}

// RepackConfig holds the repackager's git-cloning and credential settings.
type RepackConfig struct {
	WorkDir       string `toml:"work_dir"`       // scratch directory for clones/archives
	CloneDepth    int    `toml:"clone_depth"`    // default 1
	CloneTimeout  string `toml:"clone_timeout"`  // default "2m"
}

// GetCloneTimeout parses and returns the per-repo clone timeout.
func (c *RepackConfig) GetCloneTimeout() time.Duration {
	d, err := time.ParseDuration(c.CloneTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// GetCloneDepth returns the shallow-clone depth, defaulting to 1.
func (c *RepackConfig) GetCloneDepth() int {
	if c.CloneDepth <= 0 {
		return 1
	}
	return c.CloneDepth
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Engine: EngineConfig{
			LockTTL:          "30s",
			DispatchFanout:   10,
			WatchdogInterval: "15s",
			RetryBaseDelay:   "500ms",
			RetryMaxDelay:    "16s",
			RetryMaxAttempts: 4,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
			DynamoDB: DynamoDBConfig{
				OrdersTable:      "railyard-orders",
				OrderEventsTable: "railyard-order-events",
				LocksTable:       "railyard-locks",
			},
			S3: S3Config{
				Bucket:         "railyard-artifacts",
				ArchivePrefix:  "archives/",
				CallbackPrefix: "callbacks/",
				DonePrefix:     "done/",
				PresignTTL:     "15m",
			},
			SSM: SSMConfig{
				ParameterPrefix: "/railyard",
			},
			SecretsManager: SecretsConfig{
				SecretPrefix:  "/railyard",
				SopsKeyPrefix: "/railyard/sops-keys",
				SopsKeyTTL:    "2h",
			},
			Lambda: LambdaConfig{
				FunctionPrefix: "railyard-",
			},
			CodeBuild: CodeBuildConfig{
				ProjectPrefix: "railyard-",
			},
		},
		Repackager: RepackConfig{
			WorkDir:      "/tmp/railyard-repack",
			CloneDepth:   1,
			CloneTimeout: "2m",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console"},
			FilePath:   "./logs/railyard.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RAILYARD_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("RAILYARD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if region := os.Getenv("RAILYARD_AWS_REGION"); region != "" {
		config.AWS.Region = region
	}
	if endpoint := os.Getenv("RAILYARD_AWS_ENDPOINT"); endpoint != "" {
		config.AWS.Endpoint = endpoint
	}

	if v := os.Getenv("RAILYARD_ORDERS_TABLE"); v != "" {
		config.AWS.DynamoDB.OrdersTable = v
	}
	if v := os.Getenv("RAILYARD_ORDER_EVENTS_TABLE"); v != "" {
		config.AWS.DynamoDB.OrderEventsTable = v
	}
	if v := os.Getenv("RAILYARD_LOCKS_TABLE"); v != "" {
		config.AWS.DynamoDB.LocksTable = v
	}

	if v := os.Getenv("RAILYARD_S3_BUCKET"); v != "" {
		config.AWS.S3.Bucket = v
	}

	if v := os.Getenv("RAILYARD_SOPS_KEY_PREFIX"); v != "" {
		config.AWS.SecretsManager.SopsKeyPrefix = v
	}

	if v := os.Getenv("RAILYARD_LOCK_TTL"); v != "" {
		config.Engine.LockTTL = v
	}
	if v := os.Getenv("RAILYARD_WATCHDOG_INTERVAL"); v != "" {
		config.Engine.WatchdogInterval = v
	}
	if v := os.Getenv("RAILYARD_DISPATCH_FANOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.DispatchFanout = n
		}
	}

	if v := os.Getenv("RAILYARD_WORK_DIR"); v != "" {
		config.Repackager.WorkDir = v
	}

	if v := os.Getenv("RAILYARD_GITHUB_TOKEN_REF"); v != "" {
		config.VCS.GithubTokenRef = v
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the list of config fields that must be set before
// the engine can run against real AWS resources, but are currently empty.
// Only emptiness is checked; default values are not flagged.
func (c *Config) ValidateRequired() []string {
	var missing []string

	if c.AWS.Region == "" {
		missing = append(missing, "aws.region")
	}
	if c.AWS.DynamoDB.OrdersTable == "" {
		missing = append(missing, "aws.dynamodb.orders_table")
	}
	if c.AWS.DynamoDB.OrderEventsTable == "" {
		missing = append(missing, "aws.dynamodb.order_events_table")
	}
	if c.AWS.DynamoDB.LocksTable == "" {
		missing = append(missing, "aws.dynamodb.locks_table")
	}
	if c.AWS.S3.Bucket == "" {
		missing = append(missing, "aws.s3.bucket")
	}
	if c.AWS.SecretsManager.SopsKeyPrefix == "" {
		missing = append(missing, "aws.secrets_manager.sops_key_prefix")
	}

	return missing
}
