package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// IndexConfig describes how day-partitioned flow indices are named and selected.
type IndexConfig struct {
	Backend    string `yaml:"backend"`     // elasticsearch or clickhouse
	Prefix     string `yaml:"prefix"`      // e.g. radar_flow_collector
	DateLayout string `yaml:"date_layout"` // Go layout of the date suffix
	Strategy   string `yaml:"strategy"`    // window, today or wildcard
	Timezone   string `yaml:"timezone"`
	MaxDays    int    `yaml:"max_days"` // window strategy falls back to prefix-* past this many days; 0 disables
}

// ElasticsearchConfig holds the connection settings of the search cluster.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	Timeout   string   `yaml:"timeout"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// Thresholds is the anomaly policy of the report.
type Thresholds struct {
	HighVolumeBytes        uint64  `yaml:"high_volume_bytes" json:"high_volume_bytes"`
	HighConnectionMinFlows int64   `yaml:"high_connection_min_flows" json:"high_connection_min_flows"`
	ScanMinFlows           int64   `yaml:"scan_min_flows" json:"scan_min_flows"`
	ScanMaxAvgBytes        float64 `yaml:"scan_max_avg_bytes" json:"scan_max_avg_bytes"`
	// ScanDestinationsAbove is exclusive: a source needs strictly more destinations.
	ScanDestinationsAbove int64 `yaml:"scan_destinations_above" json:"scan_destinations_above"`
}

// Limits caps the size of each report section.
type Limits struct {
	TopTalkers      int `yaml:"top_talkers" json:"top_talkers"`
	HighVolumeFlows int `yaml:"high_volume_flows" json:"high_volume_flows"`
	Candidates      int `yaml:"candidates" json:"candidates"`
	Protocols       int `yaml:"protocols" json:"protocols"`
}

// ReportConfig configures report generation.
type ReportConfig struct {
	Window      string     `yaml:"window"`
	Parallel    bool       `yaml:"parallel"`
	MaxParallel int        `yaml:"max_parallel"`
	Timezone    string     `yaml:"timezone"`
	Thresholds  Thresholds `yaml:"thresholds"`
	Limits      Limits     `yaml:"limits"`
}

// AIAnalysisConfig holds settings for AI-powered analysis of alerts.
type AIAnalysisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
}

// AlerterConfig configures the periodic detection loop.
type AlerterConfig struct {
	Enabled       bool             `yaml:"enabled"`
	CheckInterval string           `yaml:"check_interval"`
	AIAnalysis    AIAnalysisConfig `yaml:"ai_analysis"`
}

// AIConfig holds the settings of the LLM endpoint.
type AIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SMTPConfig holds the settings for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Version string   `yaml:"version"`
}

// PublishConfig selects where generated reports are shipped.
type PublishConfig struct {
	Enabled bool        `yaml:"enabled"`
	Driver  string      `yaml:"driver"` // nats or kafka
	Format  string      `yaml:"format"` // json or proto
	NATS    NATSConfig  `yaml:"nats"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// APIConfig holds the listen addresses of the API server.
type APIConfig struct {
	HTTPListenAddr string `yaml:"http_listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Index         IndexConfig         `yaml:"index"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
	Report        ReportConfig        `yaml:"report"`
	Alerter       AlerterConfig       `yaml:"alerter"`
	AI            AIConfig            `yaml:"ai"`
	SMTP          SMTPConfig          `yaml:"smtp"`
	Publish       PublishConfig       `yaml:"publish"`
	API           APIConfig           `yaml:"api"`
	Log           LogConfig           `yaml:"log"`
}

// DefaultThresholds returns the stock anomaly policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HighVolumeBytes:        100 * 1024 * 1024,
		HighConnectionMinFlows: 1000,
		ScanMinFlows:           100,
		ScanMaxAvgBytes:        10000,
		ScanDestinationsAbove:  50,
	}
}

// DefaultLimits returns the stock section sizes.
func DefaultLimits() Limits {
	return Limits{
		TopTalkers:      10,
		HighVolumeFlows: 20,
		Candidates:      100,
		Protocols:       10,
	}
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Backend:    "elasticsearch",
			Prefix:     "radar_flow_collector",
			DateLayout: "2006.01.02",
			Strategy:   "window",
			Timezone:   "Local",
			MaxDays:    31,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: []string{"http://localhost:9200"},
			Timeout:   "30s",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "default",
			Username: "default",
			Table:    "flow_records",
		},
		Report: ReportConfig{
			Window:      "1h",
			MaxParallel: 4,
			Timezone:    "Local",
			Thresholds:  DefaultThresholds(),
			Limits:      DefaultLimits(),
		},
		Alerter: AlerterConfig{
			CheckInterval: "5m",
			AIAnalysis:    AIAnalysisConfig{Timeout: "60s"},
		},
		AI: AIConfig{Model: "gpt-4o-mini"},
		Publish: PublishConfig{
			Driver: "nats",
			Format: "json",
			NATS:   NATSConfig{URL: "nats://localhost:4222", Subject: "flowradar.reports"},
			Kafka:  KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "flowradar-reports", Version: "2.8.0"},
		},
		API: APIConfig{
			HTTPListenAddr: ":8080",
			GRPCListenAddr: ":50051",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case "elasticsearch", "clickhouse":
	default:
		return fmt.Errorf("unknown index backend: '%s'", c.Index.Backend)
	}
	switch c.Index.Strategy {
	case "window", "today", "wildcard":
	default:
		return fmt.Errorf("unknown index strategy: '%s'", c.Index.Strategy)
	}
	if c.Index.MaxDays < 0 {
		return fmt.Errorf("index max_days must not be negative, got %d", c.Index.MaxDays)
	}
	if _, err := c.ReportWindow(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Index.Timezone); err != nil {
		return fmt.Errorf("invalid index timezone: %w", err)
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("invalid report timezone: %w", err)
	}
	l := c.Report.Limits
	if l.TopTalkers <= 0 || l.HighVolumeFlows <= 0 || l.Candidates <= 0 || l.Protocols <= 0 {
		return fmt.Errorf("report limits must be positive, got %+v", l)
	}
	if c.Publish.Enabled {
		switch c.Publish.Format {
		case "json", "proto":
		default:
			return fmt.Errorf("unknown publish format: '%s'", c.Publish.Format)
		}
	}
	return nil
}

// ReportWindow parses the configured report window length.
func (c *Config) ReportWindow() (time.Duration, error) {
	d, err := time.ParseDuration(c.Report.Window)
	if err != nil {
		return 0, fmt.Errorf("invalid report window: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("report window must be a positive duration")
	}
	return d, nil
}

// CheckInterval parses the alerter interval.
func (c *Config) CheckInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Alerter.CheckInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("check_interval must be a positive duration")
	}
	return d, nil
}
