package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// Config represents the application configuration
type Config struct {
	ServerPort int           `json:"server_port" yaml:"server_port"`
	LogLevel   string        `json:"log_level" yaml:"log_level"`
	Capture    CaptureConfig `json:"capture" yaml:"capture"`
	Render     RenderConfig  `json:"render" yaml:"render"`
	Preview    PreviewConfig `json:"preview" yaml:"preview"`
}

// CaptureConfig controls selection and region capture
type CaptureConfig struct {
	MinSelectionPx float64       `json:"min_selection_px" yaml:"min_selection_px"`
	ClearDelay     time.Duration `json:"clear_delay" yaml:"clear_delay"`
	Format         string        `json:"format" yaml:"format"`
	JPEGQuality    int           `json:"jpeg_quality" yaml:"jpeg_quality"`
	Policy         string        `json:"policy" yaml:"policy"`
	OutputDir      string        `json:"output_dir" yaml:"output_dir"`
}

// RenderConfig controls page rendering and layout
type RenderConfig struct {
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	DPI            float64       `json:"dpi" yaml:"dpi"`
	Workers        int           `json:"workers" yaml:"workers"`
	Zoom           float64       `json:"zoom" yaml:"zoom"`
	PageGapPx      float64       `json:"page_gap_px" yaml:"page_gap_px"`
	ViewportWidth  float64       `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight float64       `json:"viewport_height" yaml:"viewport_height"`
}

// PreviewConfig controls the MJPEG viewport stream
type PreviewConfig struct {
	FPS         int `json:"fps" yaml:"fps"`
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config // as stored on disk
	effective  *Config // config with environment overrides applied
	mu         sync.RWMutex
}

// DefaultConfigDir returns $HOME/.config/pagegrab.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pagegrab"), nil
}

// NewManager loads configFile, or the default config path when empty,
// creating it with defaults if it does not exist.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		configDir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		actualConfigPath = filepath.Join(configDir, "config.yaml")
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = m.getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := m.refreshEffective(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("server_port", m.effective.ServerPort).
		Str("capture_policy", m.effective.Capture.Policy).
		Msg("Config loaded")

	return m, nil
}

// getDefaults returns default configuration
func (m *Manager) getDefaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Capture: CaptureConfig{
			MinSelectionPx: 20,
			ClearDelay:     500 * time.Millisecond,
			Format:         "png",
			JPEGQuality:    90,
			Policy:         "reference_point",
			OutputDir:      filepath.Join(filepath.Dir(m.configPath), "captures"),
		},
		Render: RenderConfig{
			Timeout:        45 * time.Second,
			DPI:            144,
			Workers:        4,
			Zoom:           1.0,
			PageGapPx:      16,
			ViewportWidth:  1280,
			ViewportHeight: 900,
		},
		Preview: PreviewConfig{
			FPS:         5,
			JPEGQuality: 80,
		},
	}
}

// load reads the configuration from disk. Keys missing from the file keep
// their defaults.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := m.getDefaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		problems = append(problems, fmt.Sprintf("server_port %d out of range", c.ServerPort))
	}
	switch strings.ToLower(c.Capture.Format) {
	case "png", "jpeg", "jpg":
	default:
		problems = append(problems, fmt.Sprintf("capture.format %q is not png or jpeg", c.Capture.Format))
	}
	switch c.Capture.Policy {
	case "reference_point", "max_overlap":
	default:
		problems = append(problems, fmt.Sprintf("capture.policy %q is not reference_point or max_overlap", c.Capture.Policy))
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		problems = append(problems, "capture.jpeg_quality must be between 1 and 100")
	}
	if c.Capture.MinSelectionPx < 0 {
		problems = append(problems, "capture.min_selection_px must not be negative")
	}
	if c.Render.Timeout <= 0 {
		problems = append(problems, "render.timeout must be positive")
	}
	if c.Render.DPI <= 0 {
		problems = append(problems, "render.dpi must be positive")
	}
	if c.Render.Workers < 1 {
		problems = append(problems, "render.workers must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Get returns a copy of the effective configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.effective == nil {
		return m.getDefaults()
	}
	cfg := *m.effective
	return &cfg
}

// Stored returns a copy of the configuration as written on disk, without
// environment overrides.
func (m *Manager) Stored() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return m.getDefaults()
	}
	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = m.getDefaults()
	}

	log := logger.WithComponent("config")
	log.Debug().Str("path", m.configPath).Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().Err(err).Str("config_dir", configDir).Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().Err(err).Str("path", m.configPath).Msg("Failed to write config")
		return err
	}

	log.Info().Str("path", m.configPath).Msg("Config saved successfully")
	return nil
}

// Update replaces the stored configuration and saves it.
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := *cfg

	m.mu.Lock()
	m.config = &c
	m.mu.Unlock()

	if err := m.refreshEffective(); err != nil {
		return err
	}
	return m.Save()
}

// GetPort gets the effective server port
func (m *Manager) GetPort() int {
	return m.Get().ServerPort
}

// GetLogLevel gets the effective log level
func (m *Manager) GetLogLevel() string {
	return m.Get().LogLevel
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
