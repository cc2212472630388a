// Package main provides the blazereport HTTP server.
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/blazereport/internal/logging"
	"github.com/good-yellow-bee/blazereport/internal/notifier"
	"github.com/good-yellow-bee/blazereport/internal/upstream"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Report   ReportConfig   `yaml:"report"`
	Batch    BatchConfig    `yaml:"batch"`
	Log      logging.Config `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Notify   NotifyConfig   `yaml:"notify"`
	Verbose  bool           `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	HTTPAddress    string    `yaml:"http_address"` // default :8080
	TLS            TLSConfig `yaml:"tls"`
	RateLimitPerIP int       `yaml:"rate_limit_per_ip"` // requests per minute
	MaxBodyBytes   int64     `yaml:"max_body_bytes"`
}

// TLSConfig contains TLS settings for the HTTP listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// UpstreamConfig contains analytics API settings.
type UpstreamConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ReportConfig contains aggregation settings.
type ReportConfig struct {
	PlatformName     string `yaml:"platform_name"`
	DefaultLogo      string `yaml:"default_logo"`
	DefaultResponse  string `yaml:"default_response"`
	AssetConcurrency int    `yaml:"asset_concurrency"`
	Timeout          string `yaml:"timeout"`
	FontFile         string `yaml:"font_file"` // TrueType font for non-Latin text
	BoldFontFile     string `yaml:"bold_font_file"`
}

// BatchConfig contains bulk generation settings.
type BatchConfig struct {
	ReadyTimeout string `yaml:"ready_timeout"`
	SettleDelay  string `yaml:"settle_delay"`
	Timeout      string `yaml:"timeout"`
	MaxTenants   int    `yaml:"max_tenants"`
}

// MetricsConfig controls Prometheus exposure. An empty Address serves
// /metrics on the API listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// NotifyConfig contains bulk run notification webhooks. Empty URLs are off.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	TeamsWebhookURL string `yaml:"teams_webhook_url"`
	Timeout         string `yaml:"timeout"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.RateLimitPerIP == 0 {
		c.Server.RateLimitPerIP = 30
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	up := upstream.DefaultConfig()
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = up.BaseURL
	}
	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = up.Timeout.String()
	}
	if c.Upstream.RequestsPerSecond == 0 {
		c.Upstream.RequestsPerSecond = up.RequestsPerSecond
	}
	if c.Upstream.Burst == 0 {
		c.Upstream.Burst = up.Burst
	}

	if c.Report.Timeout == "" {
		c.Report.Timeout = "2m"
	}
	if c.Batch.ReadyTimeout == "" {
		c.Batch.ReadyTimeout = "10s"
	}
	if c.Batch.SettleDelay == "" {
		c.Batch.SettleDelay = "1s"
	}
	if c.Batch.Timeout == "" {
		c.Batch.Timeout = "30m"
	}
	if c.Batch.MaxTenants == 0 {
		c.Batch.MaxTenants = 200
	}

	if c.Notify.Timeout == "" {
		c.Notify.Timeout = "10s"
	}

	def := logging.DefaultConfig()
	if c.Log.Level == "" {
		c.Log.Level = def.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Format
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = def.MaxSize
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = def.MaxBackups
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = def.MaxAge
	}
}

// applyEnv overrides file values with BLAZEREPORT_* environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"BLAZEREPORT_HTTP_ADDRESS":     &c.Server.HTTPAddress,
		"BLAZEREPORT_UPSTREAM_URL":     &c.Upstream.BaseURL,
		"BLAZEREPORT_UPSTREAM_TIMEOUT": &c.Upstream.Timeout,
		"BLAZEREPORT_PLATFORM_NAME":    &c.Report.PlatformName,
		"BLAZEREPORT_FONT_FILE":        &c.Report.FontFile,
		"BLAZEREPORT_LOG_LEVEL":        &c.Log.Level,
		"BLAZEREPORT_LOG_FORMAT":       &c.Log.Format,
		"BLAZEREPORT_LOG_FILE":         &c.Log.File,
		"BLAZEREPORT_METRICS_ADDRESS":  &c.Metrics.Address,
		"BLAZEREPORT_TLS_CERT_FILE":    &c.Server.TLS.CertFile,
		"BLAZEREPORT_TLS_KEY_FILE":     &c.Server.TLS.KeyFile,
		"BLAZEREPORT_SLACK_WEBHOOK":    &c.Notify.SlackWebhookURL,
		"BLAZEREPORT_TEAMS_WEBHOOK":    &c.Notify.TeamsWebhookURL,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	if v := getenv("BLAZEREPORT_RATE_LIMIT_PER_IP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BLAZEREPORT_RATE_LIMIT_PER_IP: %w", err)
		}
		c.Server.RateLimitPerIP = n
	}
	if v := getenv("BLAZEREPORT_TLS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BLAZEREPORT_TLS_ENABLED: %w", err)
		}
		c.Server.TLS.Enabled = b
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}
	if c.Server.RateLimitPerIP < 0 {
		return fmt.Errorf("server.rate_limit_per_ip must not be negative")
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.base_url %q is not an absolute URL", c.Upstream.BaseURL)
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream.requests_per_second must not be negative")
	}

	durations := []struct {
		key   string
		value string
	}{
		{"upstream.timeout", c.Upstream.Timeout},
		{"report.timeout", c.Report.Timeout},
		{"batch.ready_timeout", c.Batch.ReadyTimeout},
		{"batch.settle_delay", c.Batch.SettleDelay},
		{"batch.timeout", c.Batch.Timeout},
		{"notify.timeout", c.Notify.Timeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative", d.key)
		}
	}

	if c.Batch.MaxTenants < 0 {
		return fmt.Errorf("batch.max_tenants must not be negative")
	}
	if c.Report.AssetConcurrency < 0 {
		return fmt.Errorf("report.asset_concurrency must not be negative")
	}

	hooks := []struct {
		key   string
		value string
	}{
		{"notify.slack_webhook_url", c.Notify.SlackWebhookURL},
		{"notify.teams_webhook_url", c.Notify.TeamsWebhookURL},
	}
	for _, h := range hooks {
		if h.value == "" {
			continue
		}
		wc := notifier.WebhookConfig{WebhookURL: h.value}
		if err := wc.Validate(); err != nil {
			return fmt.Errorf("invalid %s: %w", h.key, err)
		}
	}
	return nil
}

// duration parses a value already checked by Validate.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
