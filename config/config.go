package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Stage timeout ceilings. Configured values may be lower, never higher:
	// collaborator sessions left running past these bounds are presumed hung.
	MaxIndicesTimeout  = 10 * time.Minute
	MaxAnalysisTimeout = 15 * time.Minute
	MaxERPTimeout      = 20 * time.Minute
	MaxBankTimeout     = 15 * time.Minute

	// Default queue settings
	defaultWorkers = 3

	// Default store settings
	defaultStoreDir      = "data"
	defaultMaxExecutions = 200
	defaultMaxSnapshots  = 50
	defaultRecentWindow  = 100
	defaultKeyPrefix     = "reparcel"

	// Default monitoring settings
	defaultJobName = "reparcel"

	// Default notification settings
	defaultSMTPPort       = 587
	defaultEmailSeverity  = "info"
	defaultSMSSeverity    = "critical"
	defaultWebhookTimeout = 10 * time.Second

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"
)

// Config represents the complete pipeline configuration
type Config struct {
	Stages     StagesConfig  `yaml:"stages"`
	Queue      QueueConfig   `yaml:"queue"`
	Redis      RedisConfig   `yaml:"redis"`
	Store      StoreConfig   `yaml:"store"`
	Notify     NotifyConfig  `yaml:"notifications"`
	Monitoring MetricsConfig `yaml:"monitoring"`
	Logging    LoggingConfig `yaml:"logging"`
}

// StagesConfig holds per-stage collaborator settings.
type StagesConfig struct {
	Indices  StageConfig `yaml:"indices"`
	Analysis StageConfig `yaml:"analysis"`
	ERP      StageConfig `yaml:"erp"`
	Bank     StageConfig `yaml:"bank"`

	// TargetSheetID is the spreadsheet holding collected index values.
	TargetSheetID string `yaml:"target_sheet_id"`
	// CalcSheetID is the calculation spreadsheet analyzed in stage 2.
	CalcSheetID string `yaml:"calc_sheet_id"`
	// SupportSheetID is the supporting spreadsheet analyzed in stage 2.
	SupportSheetID string `yaml:"support_sheet_id"`
	// CredentialsRef names the credential set collaborators should use.
	CredentialsRef string `yaml:"credentials_ref"`
}

// StageConfig holds connection settings for one stage collaborator service.
type StageConfig struct {
	// URL is the base address of the stage automation service.
	URL string `yaml:"url"`
	// Token authenticates calls to the stage service.
	Token string `yaml:"token"`
	// Timeout bounds a single collaborator invocation. Validate rejects
	// values above the per-stage ceiling.
	Timeout time.Duration `yaml:"timeout"`
}

// QueueConfig defines work queue behavior.
type QueueConfig struct {
	// Workers bounds stage-3/4 per-item parallelism.
	Workers int `yaml:"workers"`
}

// RedisConfig holds settings for the primary store backend.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"` // 0 keeps records forever
}

// StoreConfig holds settings for the fallback disk backend and read windows.
type StoreConfig struct {
	// Dir is where execution files, queue.json and snapshots.json live.
	Dir string `yaml:"dir"`
	// MaxExecutions caps execution files kept on disk.
	MaxExecutions int `yaml:"max_executions"`
	// MaxSnapshots caps the index snapshot history kept on disk.
	MaxSnapshots int `yaml:"max_snapshots"`
	// RecentWindow is how many recent executions feed the success rate stat.
	RecentWindow int `yaml:"recent_window"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	Email   EmailConfig   `yaml:"email"`
	SMS     SMSConfig     `yaml:"sms"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	MinSeverity string   `yaml:"min_severity"`
	Kinds       []string `yaml:"kinds"` // empty means all event kinds
}

// SMSConfig configures the SMS gateway channel.
type SMSConfig struct {
	Enabled     bool     `yaml:"enabled"`
	GatewayURL  string   `yaml:"gateway_url"`
	APIKey      string   `yaml:"api_key"`
	To          []string `yaml:"to"`
	MinSeverity string   `yaml:"min_severity"`
	Kinds       []string `yaml:"kinds"`
}

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout"`
	MinSeverity string        `yaml:"min_severity"`
	Kinds       []string      `yaml:"kinds"`
}

// MetricsConfig holds metrics and monitoring settings.
type MetricsConfig struct {
	// PushURL is the remote-write endpoint metrics are pushed to after each
	// run. Empty disables pushing; the scrape endpoint stays available.
	PushURL string `yaml:"push_url"`
	// MetricsPrefix namespaces the pushed series, for shared remote-write
	// storage. Metric names already carry the application prefix, so this
	// stays empty in most deployments.
	MetricsPrefix string `yaml:"metrics_prefix"`
	JobName       string `yaml:"jobname"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Stages.Indices.URL == "" {
		return fmt.Errorf("indices stage URL is required")
	}
	if c.Stages.Analysis.URL == "" {
		return fmt.Errorf("analysis stage URL is required")
	}
	if c.Stages.ERP.URL == "" {
		return fmt.Errorf("erp stage URL is required")
	}
	if c.Stages.Bank.URL == "" {
		return fmt.Errorf("bank stage URL is required")
	}
	if c.Stages.Indices.Timeout > MaxIndicesTimeout {
		return fmt.Errorf("indices timeout %s exceeds ceiling %s", c.Stages.Indices.Timeout, MaxIndicesTimeout)
	}
	if c.Stages.Analysis.Timeout > MaxAnalysisTimeout {
		return fmt.Errorf("analysis timeout %s exceeds ceiling %s", c.Stages.Analysis.Timeout, MaxAnalysisTimeout)
	}
	if c.Stages.ERP.Timeout > MaxERPTimeout {
		return fmt.Errorf("erp timeout %s exceeds ceiling %s", c.Stages.ERP.Timeout, MaxERPTimeout)
	}
	if c.Stages.Bank.Timeout > MaxBankTimeout {
		return fmt.Errorf("bank timeout %s exceeds ceiling %s", c.Stages.Bank.Timeout, MaxBankTimeout)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be at least 1")
	}
	if c.Notify.Email.Enabled && len(c.Notify.Email.To) == 0 {
		return fmt.Errorf("email notifications enabled but no recipients configured")
	}
	if c.Notify.SMS.Enabled && c.Notify.SMS.GatewayURL == "" {
		return fmt.Errorf("sms notifications enabled but no gateway URL configured")
	}
	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return fmt.Errorf("webhook notifications enabled but no URL configured")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Stages.Indices.Timeout == 0 {
		c.Stages.Indices.Timeout = MaxIndicesTimeout
	}
	if c.Stages.Analysis.Timeout == 0 {
		c.Stages.Analysis.Timeout = MaxAnalysisTimeout
	}
	if c.Stages.ERP.Timeout == 0 {
		c.Stages.ERP.Timeout = MaxERPTimeout
	}
	if c.Stages.Bank.Timeout == 0 {
		c.Stages.Bank.Timeout = MaxBankTimeout
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = defaultWorkers
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = defaultKeyPrefix
	}
	if c.Store.Dir == "" {
		c.Store.Dir = defaultStoreDir
	}
	if c.Store.MaxExecutions == 0 {
		c.Store.MaxExecutions = defaultMaxExecutions
	}
	if c.Store.MaxSnapshots == 0 {
		c.Store.MaxSnapshots = defaultMaxSnapshots
	}
	if c.Store.RecentWindow == 0 {
		c.Store.RecentWindow = defaultRecentWindow
	}
	if c.Notify.Email.Port == 0 {
		c.Notify.Email.Port = defaultSMTPPort
	}
	if c.Notify.Email.MinSeverity == "" {
		c.Notify.Email.MinSeverity = defaultEmailSeverity
	}
	if c.Notify.SMS.MinSeverity == "" {
		c.Notify.SMS.MinSeverity = defaultSMSSeverity
	}
	if c.Notify.Webhook.MinSeverity == "" {
		c.Notify.Webhook.MinSeverity = defaultEmailSeverity
	}
	if c.Notify.Webhook.Timeout == 0 {
		c.Notify.Webhook.Timeout = defaultWebhookTimeout
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	// Set logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// Redacted returns a copy of the configuration safe to expose over the API:
// tokens, passwords and API keys are masked when set.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return s
		}
		return "REDACTED"
	}
	c.Stages.Indices.Token = mask(c.Stages.Indices.Token)
	c.Stages.Analysis.Token = mask(c.Stages.Analysis.Token)
	c.Stages.ERP.Token = mask(c.Stages.ERP.Token)
	c.Stages.Bank.Token = mask(c.Stages.Bank.Token)
	c.Redis.Password = mask(c.Redis.Password)
	c.Notify.Email.Password = mask(c.Notify.Email.Password)
	c.Notify.SMS.APIKey = mask(c.Notify.SMS.APIKey)
	c.Notify.Webhook.Token = mask(c.Notify.Webhook.Token)
	return c
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
