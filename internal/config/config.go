package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultAPIBaseURL     = "http://localhost:8000/api"
	defaultRequestTimeout = 15
	defaultWeekStart      = "sunday"
	defaultRefreshCron    = "*/15 * * * *"
	defaultLogLevel       = "info"
	defaultCacheDir       = "cache"
	defaultICSColor       = "#9ca3af"
)

// ICSConfig describes a read-only ICS feed overlaid on the calendar.
type ICSConfig struct {
	// ID prefixes overlay event ids and names the cache files.
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	URL   string `yaml:"url" json:"url"`
	Color string `yaml:"color" json:"color"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the local API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the local API.
	Listen string `yaml:"listen" json:"listen"`

	// APIBaseURL is the backend REST root, e.g. "https://api.example.com/api".
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`

	// RequestTimeoutSeconds bounds a single backend send.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`

	// WeekStart is the first column of the month grid:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is the cron schedule for refreshing cached events and
	// ICS feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DeviceID is sent on login. Generated and persisted on first load.
	DeviceID string `yaml:"device_id" json:"device_id"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds ICS conditional-fetch caches. Relative paths are
	// resolved against the config file's directory.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                defaultListen,
		APIBaseURL:            defaultAPIBaseURL,
		RequestTimeoutSeconds: defaultRequestTimeout,
		WeekStart:             defaultWeekStart,
		RefreshCron:           defaultRefreshCron,
		LogLevel:              defaultLogLevel,
		CacheDir:              defaultCacheDir,
		ICS:                   []ICSConfig{},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = defaultRequestTimeout
	}

	switch strings.ToLower(c.WeekStart) {
	case "monday":
		c.WeekStart = "monday"
	default:
		c.WeekStart = defaultWeekStart
	}

	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}

	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics%d", i+1)
		}
		if c.ICS[i].Color == "" {
			c.ICS[i].Color = defaultICSColor
		}
	}

	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// RequestTimeout returns RequestTimeoutSeconds as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Monday reports whether weeks start on Monday.
func (c *Config) Monday() bool {
	return c.WeekStart == "monday"
}

// envOverrides are the HACKONOMICS_* variables. Empty values leave the file
// setting untouched.
type envOverrides struct {
	Listen        string `env:"HACKONOMICS_LISTEN"`
	APIBaseURL    string `env:"HACKONOMICS_API_BASE_URL"`
	Timeout       int    `env:"HACKONOMICS_REQUEST_TIMEOUT_SECONDS"`
	WeekStart     string `env:"HACKONOMICS_WEEK_START"`
	RefreshCron   string `env:"HACKONOMICS_REFRESH"`
	LogLevel      string `env:"HACKONOMICS_LOG_LEVEL"`
	CacheDir      string `env:"HACKONOMICS_CACHE_DIR"`
	BasicUser     string `env:"HACKONOMICS_BASIC_AUTH_USERNAME"`
	BasicPassword string `env:"HACKONOMICS_BASIC_AUTH_PASSWORD"`
}

// ApplyEnv overlays HACKONOMICS_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("config: environment: %w", err)
	}

	setString(&c.Listen, env.Listen)
	setString(&c.APIBaseURL, env.APIBaseURL)
	if env.Timeout > 0 {
		c.RequestTimeoutSeconds = env.Timeout
	}
	setString(&c.WeekStart, env.WeekStart)
	setString(&c.RefreshCron, env.RefreshCron)
	setString(&c.LogLevel, env.LogLevel)
	setString(&c.CacheDir, env.CacheDir)
	if env.BasicUser != "" || env.BasicPassword != "" {
		c.BasicAuth = &BasicAuthConfig{Username: env.BasicUser, Password: env.BasicPassword}
	}

	c.Normalize()
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ResolveCacheDir returns CacheDir, made absolute relative to the config
// file's directory.
func (c *Config) ResolveCacheDir(configPath string) string {
	if filepath.IsAbs(c.CacheDir) {
		return c.CacheDir
	}
	return filepath.Join(filepath.Dir(configPath), c.CacheDir)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config (with a fresh device id)
//     is written with 0600 perms and returned.
//   - If the file exists, it is read and normalized. A missing device id is
//     generated and written back.
//
// Environment overrides are not applied here; see ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			cfg.DeviceID = uuid.NewString()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg, err := parse(path, data)
	if err != nil {
		return nil, err
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func parse(path string, data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(dir, ".hackonomics-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Clean up the temp file on error; a no-op after the rename.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// 0600 on the temp file so the target never exists with wider perms.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
