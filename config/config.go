// Package config loads the typed configuration a pipeline worker
// process needs: stage widths, poll/dequeue timing, the queue name,
// and whether shutdown should drain gracefully or stop immediately.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StageConfig configures one pipeline stage's admission width. Width
// 1 is a plain PipelineStage; anything greater is a
// SuperscalarPipelineStage sized to that many claim units.
type StageConfig struct {
	Name  string `yaml:"name"`
	Width int    `yaml:"width"`
}

// QueueConfig configures the backing DistributedQueue. DequeueTimeoutMs
// is milliseconds, not a time.Duration field — yaml.v3 decodes
// time.Duration as a raw int64 of nanoseconds, which silently
// misinterprets a human-written "30000" as 30 microseconds; a
// millisecond int plus an explicit accessor avoids that trap.
type QueueConfig struct {
	Name             string `yaml:"name"`
	Address          string `yaml:"address"`
	DequeueTimeoutMs int64  `yaml:"dequeueTimeoutMs"`
}

func (q QueueConfig) DequeueTimeout() time.Duration {
	return time.Duration(q.DequeueTimeoutMs) * time.Millisecond
}

// PollerConfig configures the liveness poller every matched operation
// gets.
type PollerConfig struct {
	PeriodMs int64 `yaml:"periodMs"`
}

func (p PollerConfig) Period() time.Duration {
	return time.Duration(p.PeriodMs) * time.Millisecond
}

// ShutdownConfig controls how a Driver stops.
type ShutdownConfig struct {
	Graceful  bool  `yaml:"graceful"`
	TimeoutMs int64 `yaml:"timeoutMs"`
}

func (s ShutdownConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// LoggingConfig configures the ambient slog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// MetricsConfig toggles Prometheus instrumentation. Namespace is
// applied to every registered instrument; enabling metrics never
// starts an HTTP exporter — that remains the caller's concern.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Config is the complete typed configuration for a worker process.
type Config struct {
	WorkerName string         `yaml:"workerName"`
	Stages     []StageConfig  `yaml:"stages"`
	Queue      QueueConfig    `yaml:"queue"`
	Poller     PollerConfig   `yaml:"poller"`
	Shutdown   ShutdownConfig `yaml:"shutdown"`
	Logging    LoggingConfig  `yaml:"logging"`
	Metrics    MetricsConfig  `yaml:"metrics"`
}

// Default returns a Config with sane defaults for local use, suitable
// as a starting point before overlaying a YAML file.
func Default() *Config {
	return &Config{
		WorkerName: "worker",
		Stages: []StageConfig{
			{Name: "InputFetch", Width: 1},
			{Name: "Execute", Width: 4},
			{Name: "Report", Width: 1},
		},
		Queue: QueueConfig{
			Name:             "operations",
			Address:          "127.0.0.1:6379",
			DequeueTimeoutMs: 30_000,
		},
		Poller:   PollerConfig{PeriodMs: 15_000},
		Shutdown: ShutdownConfig{Graceful: true, TimeoutMs: 30_000},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Metrics:  MetricsConfig{Enabled: false, Namespace: "rexec"},
	}
}

// Load reads and parses a YAML config file at path, starting from
// Default() so an incomplete file still yields a usable Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
