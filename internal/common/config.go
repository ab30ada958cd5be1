package common

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the Stolos runtime configuration (spec.md §6 expansion): the
// ambient concerns of the scheduler daemon, as distinct from the task
// configuration document (internal/taskconfig) that describes the DAG
// itself.
type Config struct {
	Environment string         `toml:"environment" validate:"oneof=development production"`
	Server      ServerConfig   `toml:"server" validate:"required"`
	Storage     StorageConfig  `toml:"storage" validate:"required"`
	Executor    ExecutorConfig `toml:"executor" validate:"required"`
	Logging     LoggingConfig  `toml:"logging" validate:"required"`
	Jobs        JobsConfig     `toml:"jobs"`
	Queue       QueueConfig    `toml:"queue" validate:"required"`
	Plugins     PluginsConfig  `toml:"plugins"`
}

// Validate checks the loaded configuration's struct tags (`[EXPANSION]`
// §3a), mirroring teacher signal_analysis_schema.go's
// validator.New().Struct(s) pattern.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// QueueConfig configures the locking-queue primitive's default behavior.
type QueueConfig struct {
	DefaultTimeout string `toml:"default_timeout"` // e.g. "5s", how long a queue get waits for an entry
}

// PluginsConfig locates the external interpreters the spark/python
// shell-out executors dispatch to (`[EXPANSION]` §4.9).
type PluginsConfig struct {
	SparkSubmitPath string `toml:"spark_submit_path"`
	Python3Path     string `toml:"python3_path"`
}

// ServerConfig holds host/port settings. They are validated on load; no
// code in this repository starts an HTTP endpoint with them.
type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

// StorageConfig configures the Badger-backed coordination store.
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig is BadgerDB-specific configuration (spec.md §4.8).
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`          // delete the database on startup; for tests only
}

// ExecutorConfig configures the worker pool driving the Executor Gate
// (spec.md §5).
type ExecutorConfig struct {
	Concurrency  int    `toml:"concurrency" validate:"gte=1"` // number of concurrent executor goroutines
	PollInterval string `toml:"poll_interval"`                // how often an idle worker re-polls the queue, e.g. "1s"
	LockTimeout  string `toml:"lock_timeout"`                 // not read: execute-lock acquisition is always a single non-blocking try
}

// LoggingConfig configures arbor structured logging.
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default: "15:04:05.000"
}

// JobsConfig locates the task configuration document on disk, as an
// alternative to the TASKS_JSON environment variable (spec.md §6); the CLI
// uses TasksPath only when TASKS_JSON is unset.
type JobsConfig struct {
	TasksPath string `toml:"tasks_path"`
}

// NewDefaultConfig returns the configuration Stolos runs with before any
// TOML file or CLI override is applied.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 7070,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/coordination",
				ResetOnStartup: false,
			},
		},
		Executor: ExecutorConfig{
			Concurrency:  4,
			PollInterval: "1s",
			LockTimeout:  "0s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Queue: QueueConfig{
			DefaultTimeout: "5s",
		},
		Plugins: PluginsConfig{
			SparkSubmitPath: "spark-submit",
			Python3Path:     "python3",
		},
	}
}

// LoadFromFiles loads configuration with priority default -> file1 -> ... ->
// fileN, later files overriding earlier ones (mirrors the CLI's repeatable
// -config flag, spec.md §6).
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration failed validation: %w", err)
	}

	return config, nil
}
