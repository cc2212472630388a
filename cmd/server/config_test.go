package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate default config: %v", err)
	}
	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("http_address = %q", cfg.Server.HTTPAddress)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics disabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tls without cert", func(c *Config) { c.Server.TLS.Enabled = true }},
		{"tls without key", func(c *Config) {
			c.Server.TLS.Enabled = true
			c.Server.TLS.CertFile = "c.pem"
		}},
		{"relative upstream", func(c *Config) { c.Upstream.BaseURL = "api.example.com" }},
		{"bad upstream timeout", func(c *Config) { c.Upstream.Timeout = "soon" }},
		{"negative settle", func(c *Config) { c.Batch.SettleDelay = "-1s" }},
		{"bad batch timeout", func(c *Config) { c.Batch.Timeout = "forever" }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimitPerIP = -1 }},
		{"plain http webhook", func(c *Config) { c.Notify.SlackWebhookURL = "http://hooks.example.com/x" }},
		{"bad notify timeout", func(c *Config) { c.Notify.Timeout = "eventually" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := []byte(`
server:
  http_address: ":9090"
upstream:
  base_url: "https://analytics.example.com"
  timeout: "5s"
report:
  platform_name: "Acme MDR"
batch:
  settle_delay: "0s"
log:
  level: debug
metrics:
  enabled: false
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.HTTPAddress != ":9090" || cfg.Upstream.BaseURL != "https://analytics.example.com" {
		t.Errorf("server/upstream = %+v / %+v", cfg.Server, cfg.Upstream)
	}
	if cfg.Report.PlatformName != "Acme MDR" || cfg.Log.Level != "debug" {
		t.Errorf("report/log = %+v / %+v", cfg.Report, cfg.Log)
	}
	if cfg.Batch.ReadyTimeout != "10s" || cfg.Batch.SettleDelay != "0s" {
		t.Errorf("batch = %+v", cfg.Batch)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics.enabled = true, want false from file")
	}
	if duration(cfg.Upstream.Timeout).Seconds() != 5 {
		t.Errorf("upstream timeout = %s", cfg.Upstream.Timeout)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadConfig(missing) succeeded")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("upstream:\n  timeout: later\n"), 0o600)
	if _, err := LoadConfig(bad); err == nil {
		t.Error("LoadConfig(bad duration) succeeded")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BLAZEREPORT_HTTP_ADDRESS":      ":7000",
		"BLAZEREPORT_UPSTREAM_URL":      "https://staging.example.com",
		"BLAZEREPORT_RATE_LIMIT_PER_IP": "5",
		"BLAZEREPORT_TLS_ENABLED":       "true",
	}
	cfg := DefaultConfig()
	if err := cfg.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPAddress != ":7000" || cfg.Upstream.BaseURL != "https://staging.example.com" {
		t.Errorf("env not applied: %+v %+v", cfg.Server, cfg.Upstream)
	}
	if cfg.Server.RateLimitPerIP != 5 || !cfg.Server.TLS.Enabled {
		t.Errorf("numeric/bool env not applied: %+v", cfg.Server)
	}

	env["BLAZEREPORT_RATE_LIMIT_PER_IP"] = "many"
	if err := DefaultConfig().applyEnv(func(k string) string { return env[k] }); err == nil {
		t.Error("applyEnv accepted a non-numeric rate limit")
	}
}

func TestNewDispatcher(t *testing.T) {
	d, err := newDispatcher(NotifyConfig{}, nil)
	if err != nil {
		t.Fatalf("newDispatcher(empty) error = %v", err)
	}
	if d.Len() != 0 {
		t.Errorf("newDispatcher(empty) has %d channels", d.Len())
	}

	d, err = newDispatcher(NotifyConfig{
		SlackWebhookURL: "https://hooks.slack.com/services/T/B/x",
		TeamsWebhookURL: "https://example.webhook.office.com/x",
	}, nil)
	if err != nil {
		t.Fatalf("newDispatcher() error = %v", err)
	}
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}
}
