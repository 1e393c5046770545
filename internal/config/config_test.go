package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsentry/internal/detect"
	"netsentry/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netsentry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep DefaultPaths from matching
	t.Setenv(PathEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, detect.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, 65536, cfg.Capture.Snaplen)
	assert.Equal(t, 5*time.Second, cfg.Capture.StopTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Detectors.Enabled)
	assert.Zero(t, cfg.Store.Capacity)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: console
capture:
  read_timeout: 250ms
store:
  capacity: 1000
detectors:
  enabled: [syn_flood, port_scan]
thresholds:
  syn_flood: 200
  conn_rate_window: 30s
alerts:
  file: /tmp/alerts.jsonl
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.ReadTimeout)
	assert.Equal(t, 1000, cfg.Store.Capacity)
	assert.Equal(t, []string{"syn_flood", "port_scan"}, cfg.Detectors.Enabled)
	assert.Equal(t, 200, cfg.Thresholds.SYNFlood)
	assert.Equal(t, 30*time.Second, cfg.Thresholds.ConnRateWindow)
	assert.Equal(t, 20, cfg.Thresholds.PortScan, "untouched keys keep defaults")
	assert.Equal(t, "/tmp/alerts.jsonl", cfg.Alerts.File)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "thresholds:\n  syn_flood: 200\n")
	t.Setenv("NETSENTRY_THRESHOLDS_SYN_FLOOD", "300")
	t.Setenv("NETSENTRY_DETECTORS_ENABLED", "tor, bandwidth")
	t.Setenv("NETSENTRY_METRICS_LISTEN", ":9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Thresholds.SYNFlood)
	assert.Equal(t, []string{"tor", "bandwidth"}, cfg.Detectors.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative syn threshold", func(c *Config) { c.Thresholds.SYNFlood = -1 }},
		{"negative bandwidth", func(c *Config) { c.Thresholds.BandwidthBytes = -5 }},
		{"zero window", func(c *Config) { c.Thresholds.ConnRateWindow = 0 }},
		{"bad tor port", func(c *Config) { c.Thresholds.TorPort = 70000 }},
		{"unknown detector", func(c *Config) { c.Detectors.Enabled = []string{"nope"} }},
		{"zero read timeout", func(c *Config) { c.Capture.ReadTimeout = 0 }},
		{"negative capacity", func(c *Config) { c.Store.Capacity = -1 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.True(t, errors.IsKind(cfg.Validate(), errors.KindValidation))
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "capture.read_timeout", envTransform("NETSENTRY_CAPTURE_READ_TIMEOUT"))
	assert.Equal(t, "thresholds.dns_min_length", envTransform("NETSENTRY_THRESHOLDS_DNS_MIN_LENGTH"))
	assert.Equal(t, "config", envTransform("NETSENTRY_CONFIG"))
}
