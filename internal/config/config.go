// Package config loads service configuration from defaults, an optional YAML
// file and AUDITDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "AUDITDESK"

const (
	SinkLog      = "log"
	SinkTemporal = "temporal"
)

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Assistant  AssistantConfig  `mapstructure:"assistant"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type QueueConfig struct {
	// SeedFile is a YAML fixture; empty means the embedded one.
	SeedFile      string        `mapstructure:"seed_file"`
	DetailLatency time.Duration `mapstructure:"detail_latency"`
	DetailTimeout time.Duration `mapstructure:"detail_timeout"`
	JournalSize   int           `mapstructure:"journal_size"`
}

type SubmissionConfig struct {
	Sink       string        `mapstructure:"sink"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

type TemporalConfig struct {
	HostPort       string        `mapstructure:"host_port"`
	Namespace      string        `mapstructure:"namespace"`
	TaskQueue      string        `mapstructure:"task_queue"`
	ReviewDeadline time.Duration `mapstructure:"review_deadline"`
}

type AssistantConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Stdout  bool `mapstructure:"stdout"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8090",
			ShutdownTimeout: 10 * time.Second,
		},
		Queue: QueueConfig{
			DetailLatency: 600 * time.Millisecond,
			DetailTimeout: 5 * time.Second,
			JournalSize:   200,
		},
		Submission: SubmissionConfig{
			Sink:       SinkLog,
			Timeout:    5 * time.Second,
			MaxElapsed: 15 * time.Second,
		},
		Temporal: TemporalConfig{
			HostPort:       "localhost:7233",
			Namespace:      "default",
			TaskQueue:      "AUDIT_REVIEW_TASK_QUEUE",
			ReviewDeadline: 7 * 24 * time.Hour,
		},
		Assistant: AssistantConfig{
			Model:     "claude-3-5-haiku-latest",
			MaxTokens: 1024,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
		},
	}
}

// SetDefaults registers every default so env overrides work for keys that
// never appear in a config file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	v.SetDefault("queue.seed_file", d.Queue.SeedFile)
	v.SetDefault("queue.detail_latency", d.Queue.DetailLatency)
	v.SetDefault("queue.detail_timeout", d.Queue.DetailTimeout)
	v.SetDefault("queue.journal_size", d.Queue.JournalSize)

	v.SetDefault("submission.sink", d.Submission.Sink)
	v.SetDefault("submission.timeout", d.Submission.Timeout)
	v.SetDefault("submission.max_elapsed", d.Submission.MaxElapsed)

	v.SetDefault("temporal.host_port", d.Temporal.HostPort)
	v.SetDefault("temporal.namespace", d.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", d.Temporal.TaskQueue)
	v.SetDefault("temporal.review_deadline", d.Temporal.ReviewDeadline)

	v.SetDefault("assistant.api_key", d.Assistant.APIKey)
	v.SetDefault("assistant.model", d.Assistant.Model)
	v.SetDefault("assistant.max_tokens", d.Assistant.MaxTokens)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.stdout", d.Telemetry.Stdout)
}

// NewViper returns a viper instance with defaults, env binding and, when
// cfgFile is set, that file read in. A missing explicit file is an error.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		return v, nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return v, nil
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Assistant.APIKey == "" {
		cfg.Assistant.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	if c.Queue.DetailLatency < 0 {
		errs = append(errs, errors.New("queue.detail_latency must not be negative"))
	}
	if c.Queue.DetailTimeout <= 0 {
		errs = append(errs, errors.New("queue.detail_timeout must be positive"))
	}
	if c.Queue.JournalSize <= 0 {
		errs = append(errs, errors.New("queue.journal_size must be positive"))
	}
	switch c.Submission.Sink {
	case SinkLog, SinkTemporal:
	default:
		errs = append(errs, fmt.Errorf("submission.sink %q: want %q or %q", c.Submission.Sink, SinkLog, SinkTemporal))
	}
	if c.Submission.Timeout <= 0 {
		errs = append(errs, errors.New("submission.timeout must be positive"))
	}
	if c.Submission.MaxElapsed < 0 {
		errs = append(errs, errors.New("submission.max_elapsed must not be negative"))
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, errors.New("temporal.task_queue must not be empty"))
	}
	if c.Assistant.MaxTokens <= 0 {
		errs = append(errs, errors.New("assistant.max_tokens must be positive"))
	}

	return errors.Join(errs...)
}
