package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Len(t, cfg.DeviceID, 36)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DeviceID, again.DeviceID)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
api_base_url: https://api.example.com/api/
week_start: Monday
log_level: LOUD
ics:
  - url: https://example.com/holidays.ics
    name: Holidays
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.True(t, cfg.Monday())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
	require.Len(t, cfg.ICS, 1)
	assert.Equal(t, "ics1", cfg.ICS[0].ID)
	assert.Equal(t, defaultICSColor, cfg.ICS[0].Color)
	assert.NotEmpty(t, cfg.DeviceID, "device id is generated and persisted")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DeviceID, again.DeviceID)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("HACKONOMICS_LISTEN", ":9090")
	t.Setenv("HACKONOMICS_REQUEST_TIMEOUT_SECONDS", "3")
	t.Setenv("HACKONOMICS_BASIC_AUTH_USERNAME", "admin")
	t.Setenv("HACKONOMICS_BASIC_AUTH_PASSWORD", "pw")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout())
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "admin", cfg.BasicAuth.Username)
	assert.Equal(t, defaultAPIBaseURL, cfg.APIBaseURL)
}

func TestApplyEnvNothingSet(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolveCacheDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/etc/hackonomics", "cache"), cfg.ResolveCacheDir("/etc/hackonomics/config.yaml"))

	cfg.CacheDir = "/var/cache/hackonomics"
	assert.Equal(t, "/var/cache/hackonomics", cfg.ResolveCacheDir("/etc/hackonomics/config.yaml"))
}

func TestSaveEmptyBasicAuthDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{}
	require.NoError(t, cfg.Save(path))
	assert.Nil(t, cfg.BasicAuth)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "basic_auth")
}

func TestSaveAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.DeviceID = "dev-1"
	require.NoError(t, cfg.Save(path))
	cfg.LogLevel = "debug"
	require.NoError(t, cfg.Save(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.yaml", entries[0].Name())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, "dev-1", got.DeviceID)
}

func TestWatchReloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

	got := make(chan *Config, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c })
	}()

	// The watcher registers asynchronously, so keep rewriting until an
	// edit is observed.
	var reloaded *Config
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("log_level: debug\nweek_start: monday\n"), 0o600); err != nil {
			return false
		}
		select {
		case reloaded = <-got:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	require.NotNil(t, reloaded)
	assert.Equal(t, "debug", reloaded.LogLevel)
	assert.True(t, reloaded.Monday())
	assert.Equal(t, defaultListen, reloaded.Listen)
}

func TestWatchIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

	var calls int
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("log_level: debug\n"), 0o600)
	}()
	require.NoError(t, Watch(ctx, path, func(*Config) { calls++ }))
	assert.Zero(t, calls)
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.yaml"), func(*Config) {})
	assert.Error(t, err)
}
