package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "pagegrab", "config.yaml"))
	require.NoError(t, err)
	return m
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m := newTestManager(t)

	_, err := os.Stat(m.GetConfigPath())
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 20.0, cfg.Capture.MinSelectionPx)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.ClearDelay)
	assert.Equal(t, "reference_point", cfg.Capture.Policy)
	assert.Equal(t, 45*time.Second, cfg.Render.Timeout)
	assert.Equal(t, filepath.Join(m.GetConfigDir(), "captures"), cfg.Capture.OutputDir)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: 9090\nrender:\n  timeout: 10s\n"), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 144.0, cfg.Render.DPI)
}

func TestInvalidFileIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  policy: nearest\n"), 0o644))

	_, err := NewManager(path)
	assert.ErrorContains(t, err, "capture.policy")
}

func TestSetCoercesAndPersists(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set("server_port", "9191"))
	require.NoError(t, m.Set("capture.clear_delay", "750ms"))
	require.NoError(t, m.Set("render.zoom", "1.4"))
	require.NoError(t, m.Set("capture.policy", "max_overlap"))

	reloaded, err := NewManager(m.GetConfigPath())
	require.NoError(t, err)
	cfg := reloaded.Get()
	assert.Equal(t, 9191, cfg.ServerPort)
	assert.Equal(t, 750*time.Millisecond, cfg.Capture.ClearDelay)
	assert.Equal(t, 1.4, cfg.Render.Zoom)
	assert.Equal(t, "max_overlap", cfg.Capture.Policy)
}

func TestSetRejectsBadInput(t *testing.T) {
	m := newTestManager(t)

	assert.ErrorContains(t, m.Set("no_such_key", "1"), "not found")
	assert.ErrorContains(t, m.Set("capture", "1"), "section")
	assert.Error(t, m.Set("server_port", "many"))
	assert.Error(t, m.Set("server_port", "70000"))
	assert.Equal(t, 8080, m.Get().ServerPort)
}

func TestEnvironmentOverridesAreNotSaved(t *testing.T) {
	t.Setenv("PAGEGRAB_SERVER_PORT", "7070")
	t.Setenv("PAGEGRAB_CAPTURE_FORMAT", "jpeg")

	m := newTestManager(t)
	assert.Equal(t, 7070, m.Get().ServerPort)
	assert.Equal(t, "jpeg", m.Get().Capture.Format)
	assert.Equal(t, 8080, m.Stored().ServerPort)

	assert.Equal(t, "7070", m.GetViper().GetString("server_port"))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PAGEGRAB_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PAGEGRAB_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("PAGEGRAB_TEST_DOTENV"))
}
