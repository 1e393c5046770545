// Package config loads netsentry's runtime configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// NETSENTRY_* environment variables. Thresholds are read when detectors
// are built, so a reload never changes a session that is already running.
package config

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"netsentry/internal/detect"
	"netsentry/internal/errors"
	"netsentry/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// NETSENTRY_THRESHOLDS_SYN_FLOOD=200.
const EnvPrefix = "NETSENTRY_"

// PathEnvVar names a config file to use when none is given explicitly.
const PathEnvVar = "NETSENTRY_CONFIG"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{
	"netsentry.yaml",
	"netsentry.yml",
	"/etc/netsentry/config.yaml",
}

type Config struct {
	Log        logging.Config    `koanf:"log"`
	Capture    CaptureConfig     `koanf:"capture"`
	Store      StoreConfig       `koanf:"store"`
	Detectors  DetectorsConfig   `koanf:"detectors"`
	Thresholds detect.Thresholds `koanf:"thresholds"`
	Alerts     AlertsConfig      `koanf:"alerts"`
	Metrics    MetricsConfig     `koanf:"metrics"`
}

type CaptureConfig struct {
	Snaplen     int           `koanf:"snaplen"`
	Promiscuous bool          `koanf:"promiscuous"`
	ReadTimeout time.Duration `koanf:"read_timeout"`
	// StopTimeout bounds how long stopping a session may block.
	StopTimeout time.Duration `koanf:"stop_timeout"`
}

type StoreConfig struct {
	// Capacity of each result store; 0 keeps every result.
	Capacity int `koanf:"capacity"`
}

type DetectorsConfig struct {
	// Enabled detector names in dispatch order; empty enables all.
	Enabled []string `koanf:"enabled"`
}

type AlertsConfig struct {
	// File receives one JSON line per detection event; empty disables.
	File string `koanf:"file"`
}

type MetricsConfig struct {
	// Listen is the address for the Prometheus endpoint; empty disables.
	Listen string `koanf:"listen"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: logging.Config{Level: "info", Format: "json"},
		Capture: CaptureConfig{
			Snaplen:     65536,
			Promiscuous: true,
			ReadTimeout: 500 * time.Millisecond,
			StopTimeout: 5 * time.Second,
		},
		Thresholds: detect.DefaultThresholds(),
	}
}

// Load builds the configuration. An explicit path must exist; with an
// empty path the NETSENTRY_CONFIG variable and DefaultPaths are tried.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "load defaults")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, errors.KindNotFound, "config file %s", path)
		}
	} else {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, "load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "load environment")
	}
	if err := splitListField(k, "detectors.enabled"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps NETSENTRY_CAPTURE_READ_TIMEOUT to capture.read_timeout.
// The first underscore separates the section from the key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// splitListField turns a comma separated string (from the environment)
// into a list.
func splitListField(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var items []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if err := k.Set(path, items); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "set %s", path)
	}
	return nil
}

// Validate rejects configurations that would build broken detectors or
// sessions.
func (c *Config) Validate() error {
	t := c.Thresholds
	for _, th := range []struct {
		name  string
		value int64
	}{
		{"syn_flood", int64(t.SYNFlood)},
		{"port_scan", int64(t.PortScan)},
		{"dns_min_subdomains", int64(t.DNSMinSubdomains)},
		{"dns_min_length", int64(t.DNSMinLength)},
		{"timing_min_interval", int64(t.TimingMinInterval)},
		{"conn_rate_limit", int64(t.ConnRateLimit)},
		{"bandwidth_bytes", t.BandwidthBytes},
	} {
		if th.value < 0 {
			return errors.Errorf(errors.KindValidation, "thresholds.%s must not be negative", th.name)
		}
	}
	if t.ConnRateWindow <= 0 {
		return errors.New(errors.KindValidation, "thresholds.conn_rate_window must be positive")
	}
	if t.TorPort <= 0 || t.TorPort > 65535 {
		return errors.Errorf(errors.KindValidation, "thresholds.tor_port %d is not a valid port", t.TorPort)
	}

	known := detect.Names()
	for _, name := range c.Detectors.Enabled {
		if !slices.Contains(known, name) {
			return errors.Errorf(errors.KindValidation, "detectors.enabled: unknown detector %q", name)
		}
	}

	if c.Capture.Snaplen <= 0 {
		return errors.New(errors.KindValidation, "capture.snaplen must be positive")
	}
	if c.Capture.ReadTimeout <= 0 {
		return errors.New(errors.KindValidation, "capture.read_timeout must be positive")
	}
	if c.Capture.StopTimeout <= 0 {
		return errors.New(errors.KindValidation, "capture.stop_timeout must be positive")
	}
	if c.Store.Capacity < 0 {
		return errors.New(errors.KindValidation, "store.capacity must not be negative")
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return errors.Errorf(errors.KindValidation, "log.format %q must be json or console", c.Log.Format)
	}
	return nil
}
