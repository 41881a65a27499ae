package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultAdminSecret = "CHANGEME_STRONG_SECRET"

const (
	ModeLive   = "live"
	ModeStatic = "static"
)

// Environment overrides applied after the file is read.
const (
	EnvMode   = "THREATDASH_MODE"
	EnvAPIURL = "THREATDASH_API_URL"
)

var (
	ErrListenAddress  = errors.New("server.listen_address is required")
	ErrAdminSecret    = errors.New("server.admin_secret must be set to a non-default value")
	ErrDatabasePath   = errors.New("database_path is required")
	ErrClientMode     = errors.New("client.mode must be 'live' or 'static'")
	ErrClientBaseURL  = errors.New("client.base_url must be an http(s) URL")
	ErrStaticBase     = errors.New("client.static_base is required in static mode")
	ErrExportDir      = errors.New("export.dir is required")
	ErrExportDays     = errors.New("export.days must be non-negative")
	ErrFeedURL        = errors.New("ingest.feeds entries must be http(s) URLs")
	ErrScheduleExpr   = errors.New("schedule.cron must be a valid 5-field cron expression")
	ErrLogLevel       = errors.New("log.level must be one of: debug, info, warn, error")
	ErrLogFormat      = errors.New("log.format must be 'text' or 'json'")
	ErrTimeoutRange   = errors.New("timeouts must be between 1 and 600 seconds")
	ErrMaxBodyBytes   = errors.New("server.max_body_bytes must be positive")
	ErrRecentLimitMax = errors.New("server.max_limit must be 1..100000")
	ErrOTLPEndpoint   = errors.New("metrics.otlp_endpoint is required when metrics are enabled")
	ErrMetricsPeriod  = errors.New("metrics.interval_sec must be between 1 and 600")
)

type Config struct {
	DatabasePath string         `yaml:"database_path"`
	Server       ServerConfig   `yaml:"server"`
	Client       ClientConfig   `yaml:"client"`
	Export       ExportConfig   `yaml:"export"`
	Ingest       IngestConfig   `yaml:"ingest"`
	Schedule     ScheduleConfig `yaml:"schedule"`
	Log          LogConfig      `yaml:"log"`
	Metrics      MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	ListenAddress   string   `yaml:"listen_address"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int      `yaml:"idle_timeout_sec"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	MaxLimit        int      `yaml:"max_limit"`
	AdminSecret     string   `yaml:"admin_secret"`
	AdminBindCIDRs  []string `yaml:"admin_bind_cidrs"`
	// StaticDir, when set, is served under /data/ so one process can host
	// both the live API and the static export.
	StaticDir string `yaml:"static_dir"`
}

// ClientConfig drives the data source adapter.
type ClientConfig struct {
	Mode       string `yaml:"mode"`
	BaseURL    string `yaml:"base_url"`
	StaticBase string `yaml:"static_base"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
	// Days bounds the exported window; 0 exports every record.
	Days       int `yaml:"days"`
	ActorLimit int `yaml:"actor_limit"`
	CVELimit   int `yaml:"cve_limit"`
}

type IngestConfig struct {
	Feeds      []string `yaml:"feeds"`
	UserAgent  string   `yaml:"user_agent"`
	TimeoutSec int      `yaml:"timeout_sec"`
	MaxAgeDays int      `yaml:"max_age_days"`
}

type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	Export  bool   `yaml:"export"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the OTLP push exporter started by serve.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	IntervalSec  int    `yaml:"interval_sec"`
}

func defaultConfig() Config {
	return Config{
		DatabasePath: filepath.Join(xdg.DataHome, "threatdash", "threat_intel.db"),
		Server: ServerConfig{
			ListenAddress:   ":5000",
			ReadTimeoutSec:  10,
			WriteTimeoutSec: 30,
			IdleTimeoutSec:  60,
			MaxBodyBytes:    1 << 20,
			MaxLimit:        5000,
			AdminSecret:     defaultAdminSecret,
			AdminBindCIDRs:  []string{"127.0.0.1/32", "::1/128"},
		},
		Client: ClientConfig{
			Mode:       ModeLive,
			BaseURL:    "http://localhost:5000/api",
			StaticBase: "data",
			TimeoutSec: 20,
		},
		Export: ExportConfig{
			Dir:        "data",
			Days:       0,
			ActorLimit: 200,
			CVELimit:   100,
		},
		Ingest: IngestConfig{
			Feeds: []string{
				"https://www.bleepingcomputer.com/feed/",
				"https://feeds.feedburner.com/TheHackersNews",
				"https://www.darkreading.com/rss_simple.asp",
				"https://krebsonsecurity.com/feed/",
			},
			UserAgent:  "threatdash/1.0",
			TimeoutSec: 20,
			MaxAgeDays: 7,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "30 7 * * *",
			Export:  true,
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			Insecure:     true,
			IntervalSec:  10,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "threatdash", "config.yaml")
}

// LoadOrInit reads the config at path. When the file does not exist it writes
// the defaults there and reports created=true so the caller can stop and let
// the operator edit it.
func LoadOrInit(path string) (Config, bool, error) {
	if path == "" {
		path = DefaultPath()
	}
	path = filepath.Clean(path)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := defaultConfig()
		if err := writeConfig(path, cfg); err != nil {
			return Config{}, false, err
		}
		return cfg, true, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, false, err
	}
	return cfg, false, nil
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(b []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvMode)); v != "" {
		c.Client.Mode = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv(EnvAPIURL)); v != "" {
		c.Client.BaseURL = v
	}
}

func writeConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Validate checks the settings every command needs. The admin secret is
// only required by serve, see ValidateServer.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return ErrDatabasePath
	}
	if strings.TrimSpace(c.Server.ListenAddress) == "" {
		return ErrListenAddress
	}
	for _, sec := range []int{c.Server.ReadTimeoutSec, c.Server.WriteTimeoutSec, c.Server.IdleTimeoutSec, c.Client.TimeoutSec, c.Ingest.TimeoutSec} {
		if sec < 1 || sec > 600 {
			return ErrTimeoutRange
		}
	}
	if c.Server.MaxBodyBytes <= 0 {
		return ErrMaxBodyBytes
	}
	if c.Server.MaxLimit < 1 || c.Server.MaxLimit > 100000 {
		return ErrRecentLimitMax
	}
	switch c.Client.Mode {
	case ModeLive:
		if !isHTTPURL(c.Client.BaseURL) {
			return ErrClientBaseURL
		}
	case ModeStatic:
		if strings.TrimSpace(c.Client.StaticBase) == "" {
			return ErrStaticBase
		}
	default:
		return ErrClientMode
	}
	if strings.TrimSpace(c.Export.Dir) == "" {
		return ErrExportDir
	}
	if c.Export.Days < 0 {
		return ErrExportDays
	}
	for _, f := range c.Ingest.Feeds {
		if !isHTTPURL(f) {
			return fmt.Errorf("%w: %q", ErrFeedURL, f)
		}
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(strings.TrimSpace(c.Schedule.Cron)); err != nil {
			return fmt.Errorf("%w: %v", ErrScheduleExpr, err)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrLogLevel
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return ErrLogFormat
	}
	if c.Metrics.Enabled {
		if strings.TrimSpace(c.Metrics.OTLPEndpoint) == "" {
			return ErrOTLPEndpoint
		}
		if c.Metrics.IntervalSec < 1 || c.Metrics.IntervalSec > 600 {
			return ErrMetricsPeriod
		}
	}
	return nil
}

// ValidateServer adds the checks that only matter when the API is served.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if s := strings.TrimSpace(c.Server.AdminSecret); s == "" || s == defaultAdminSecret {
		return ErrAdminSecret
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// MissingKeys lists the top-level and section keys absent from the file at
// path, so upgrades can point operators at new settings.
func MissingKeys(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	expected := map[string][]string{
		"database_path": nil,
		"server":        {"listen_address", "read_timeout_sec", "write_timeout_sec", "idle_timeout_sec", "max_body_bytes", "max_limit", "admin_secret", "admin_bind_cidrs", "static_dir"},
		"client":        {"mode", "base_url", "static_base", "timeout_sec"},
		"export":        {"dir", "days", "actor_limit", "cve_limit"},
		"ingest":        {"feeds", "user_agent", "timeout_sec", "max_age_days"},
		"schedule":      {"enabled", "cron", "export"},
		"log":           {"level", "format"},
		"metrics":       {"enabled", "otlp_endpoint", "insecure", "interval_sec"},
	}
	var missing []string
	for section, keys := range expected {
		v, ok := raw[section]
		if !ok {
			missing = append(missing, section)
			continue
		}
		sub, _ := v.(map[string]any)
		for _, key := range keys {
			if _, ok := sub[key]; !ok {
				missing = append(missing, section+"."+key)
			}
		}
	}
	slices.Sort(missing)
	return missing, nil
}
