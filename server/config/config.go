// Package config holds the server runtime configuration: where to listen,
// which pipeline config file to load, and the cron schedules. Pipeline
// behavior itself (stages, stores, notifications) lives in the pipeline
// config file this one points at.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Job names a scheduled task the server knows how to run.
const (
	// JobPipeline starts a pipeline execution with the configured defaults.
	JobPipeline = "pipeline"
	// JobReport sends the daily stats report through the notification channels.
	JobReport = "report"
)

// defaultPipelineSchedule runs the pipeline every morning at 08:00.
const defaultPipelineSchedule = "0 8 * * *"

// ServerConfig represents the server runtime configuration.
type ServerConfig struct {
	Listener ListenerConfig `yaml:"listener"`
	// TLS enables HTTPS when set. The certificate is re-read from disk when
	// the files change, so renewals do not require a restart.
	TLS *TLSConfig `yaml:"tls"`
	// Cron lists the scheduled jobs. When the key is absent entirely the
	// pipeline runs daily at 08:00; set `cron: []` to disable scheduling.
	Cron []CronEntry `yaml:"cron"`
	// PipelineConfig is the path to the pipeline config file.
	PipelineConfig string `yaml:"pipeline_config"`
	LogLevel       string `yaml:"log_level"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
}

// TLSConfig points at the certificate pair served by the listener.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// CronEntry schedules one job.
type CronEntry struct {
	// Job is the task to run: "pipeline" or "report".
	Job string `yaml:"job"`
	// Schedule is the cron spec to run the job at (5 fields: minute, hour,
	// day, month, weekday).
	Schedule string `yaml:"schedule"`
}

// LoadConfig reads the YAML config file at the given path and returns a
// ServerConfig struct.
func LoadConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML server config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	// Absent means "use the default daily run"; an explicit empty list
	// disables scheduling.
	if c.Cron == nil {
		c.Cron = []CronEntry{{Job: JobPipeline, Schedule: defaultPipelineSchedule}}
	}
}

// Validate performs basic validation on the configuration.
func (c *ServerConfig) Validate() error {
	if c.PipelineConfig == "" {
		return fmt.Errorf("pipeline_config is required")
	}
	if c.TLS != nil {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls requires both cert_file and key_file")
		}
	}
	for i, entry := range c.Cron {
		if entry.Job != JobPipeline && entry.Job != JobReport {
			return fmt.Errorf("cron entry %d: unknown job %q", i, entry.Job)
		}
		if entry.Schedule == "" {
			return fmt.Errorf("cron entry %d: schedule is required", i)
		}
	}
	return nil
}
