// Package config provides configuration structures and loading logic for tracecollapse.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Source SourceConfig `mapstructure:"source"`
	Tempo  TempoConfig  `mapstructure:"tempo"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Ingest IngestConfig `mapstructure:"ingest"`
	Report ReportConfig `mapstructure:"report"`
	Store  StoreConfig  `mapstructure:"store"`
	Output OutputConfig `mapstructure:"output"`
}

// AppConfig defines application-level settings such as the HTTP listener and logging.
type AppConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// SourceConfig selects where traces are read from.
type SourceConfig struct {
	Kind    string `mapstructure:"kind"` // dir, tempo or kafka
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"`
}

// TempoConfig defines connection settings for the Grafana Tempo distributed tracing backend.
type TempoConfig struct {
	URL         string   `mapstructure:"url"`
	Timeout     string   `mapstructure:"timeout"`
	TraceIDs    []string `mapstructure:"trace_ids"`
	Service     string   `mapstructure:"service"`
	Lookback    string   `mapstructure:"lookback"`
	SearchLimit int      `mapstructure:"search_limit"`
}

// KafkaConfig defines the topic drained for OTLP span batches.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	GroupID     string   `mapstructure:"group_id"`
	MaxMessages int      `mapstructure:"max_messages"`
	IdleTimeout string   `mapstructure:"idle_timeout"`
}

// IngestConfig controls how malformed traces are handled.
type IngestConfig struct {
	OnMalformed string `mapstructure:"on_malformed"` // fail or skip
}

// ReportConfig controls report computation and rendering.
type ReportConfig struct {
	Format      string    `mapstructure:"format"`
	Buckets     int       `mapstructure:"buckets"`
	Percentiles []float64 `mapstructure:"percentiles"`
	RootPolicy  string    `mapstructure:"root_policy"`
}

// StoreConfig defines the optional SQLite store for report runs.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// OutputConfig defines the notification channels for finished reports.
type OutputConfig struct {
	Slack SlackOutputConfig `mapstructure:"slack"`
}

// SlackOutputConfig defines settings for the Slack incoming webhook integration.
type SlackOutputConfig struct {
	WebhookURLEnv string `mapstructure:"webhook_url_env"`
	WebhookURL    string `mapstructure:"-"`
	Enabled       bool   `mapstructure:"enabled"`
	TopRows       int    `mapstructure:"top_rows"`
}

// GetTimeoutDuration parses the configured string timeout into a time.Duration.
func (c *TempoConfig) GetTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetLookbackDuration returns the search window used when no trace IDs are configured.
func (c *TempoConfig) GetLookbackDuration() time.Duration {
	d, _ := time.ParseDuration(c.Lookback)
	if d == 0 {
		return 1 * time.Hour
	}
	return d
}

// GetIdleTimeoutDuration returns how long the drain waits for a message before stopping.
func (c *KafkaConfig) GetIdleTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 5 * time.Second
	}
	return d
}

// SkipMalformed returns true if malformed traces should be logged and skipped.
func (c *IngestConfig) SkipMalformed() bool {
	return strings.ToLower(c.OnMalformed) == "skip"
}

// Addr returns the HTTP listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "text")
	v.SetDefault("source.kind", "dir")
	v.SetDefault("source.dir", ".")
	v.SetDefault("source.pattern", "**/*.json")
	v.SetDefault("tempo.url", "http://localhost:3200")
	v.SetDefault("tempo.timeout", "30s")
	v.SetDefault("tempo.lookback", "1h")
	v.SetDefault("tempo.search_limit", 20)
	v.SetDefault("kafka.brokers", []string{"localhost:9093"})
	v.SetDefault("kafka.topic", "traces")
	v.SetDefault("kafka.group_id", "tracecollapse")
	v.SetDefault("kafka.max_messages", 10000)
	v.SetDefault("kafka.idle_timeout", "5s")
	v.SetDefault("ingest.on_malformed", "fail")
	v.SetDefault("report.format", "text")
	v.SetDefault("report.buckets", 20)
	v.SetDefault("report.percentiles", []float64{50, 75, 90, 99})
	v.SetDefault("report.root_policy", "all")
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "./data/tracecollapse.db")
	v.SetDefault("output.slack.enabled", false)
	v.SetDefault("output.slack.webhook_url_env", "SLACK_WEBHOOK_URL")
	v.SetDefault("output.slack.top_rows", 5)
}

// Load loads configuration from config.yaml (or configFile when set),
// environment variables and any flags already bound on v.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tracecollapse")
	}

	// Allow environment variables to override config
	v.SetEnvPrefix("TRACECOLLAPSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Output.Slack.WebhookURLEnv != "" {
		cfg.Output.Slack.WebhookURL = os.Getenv(cfg.Output.Slack.WebhookURLEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings that cannot be acted on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Source.Kind) {
	case "dir", "tempo", "kafka":
	default:
		return fmt.Errorf("unsupported source kind: %s", c.Source.Kind)
	}

	switch strings.ToLower(c.Ingest.OnMalformed) {
	case "fail", "skip":
	default:
		return fmt.Errorf("unsupported malformed trace policy: %s", c.Ingest.OnMalformed)
	}

	if c.Report.Buckets <= 0 {
		return fmt.Errorf("report.buckets must be positive, got %d", c.Report.Buckets)
	}

	for _, p := range c.Report.Percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("report.percentiles: %v is outside [0, 100]", p)
		}
	}

	return nil
}
