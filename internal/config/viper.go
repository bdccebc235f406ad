package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/PageGrab/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. PAGEGRAB_CAPTURE_POLICY.
const EnvPrefix = "PAGEGRAB"

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		logger.WithComponent("config").Debug().Str("file", f).Msg("Loaded environment file")
	}
	return nil
}

// newViper exposes cfg as a viper instance keyed by the YAML names.
func newViper(cfg *Config, withEnv bool) (*viper.Viper, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to load config into viper: %w", err)
	}
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v, nil
}

// GetViper returns the stored configuration with environment overrides, for
// key-based lookups.
func (m *Manager) GetViper() *viper.Viper {
	v, err := newViper(m.Stored(), true)
	if err != nil {
		logger.WithComponent("config").Error().Err(err).Msg("Failed to build viper view")
		return viper.New()
	}
	return v
}

// Set parses raw according to the current type of key, stores it and saves
// the file.
func (m *Manager) Set(key, raw string) error {
	v, err := newViper(m.Stored(), false)
	if err != nil {
		return err
	}

	key = strings.ToLower(key)
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	if _, isSection := v.Get(key).(map[string]any); isSection {
		return fmt.Errorf("%s is a section, not a value", key)
	}

	value, err := coerce(raw, v.Get(key))
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	v.Set(key, value)

	cfg, err := m.decode(v.AllSettings())
	if err != nil {
		return err
	}
	return m.Update(cfg)
}

// refreshEffective recomputes the config with PAGEGRAB_* overrides applied.
func (m *Manager) refreshEffective() error {
	stored := m.Stored()

	base, err := newViper(stored, false)
	if err != nil {
		return err
	}
	env, err := newViper(stored, true)
	if err != nil {
		return err
	}

	overridden := 0
	for _, key := range base.AllKeys() {
		s, ok := env.Get(key).(string)
		if !ok {
			continue
		}
		current := base.Get(key)
		if cs, same := current.(string); same && cs == s {
			continue
		}
		value, err := coerce(s, current)
		if err != nil {
			return fmt.Errorf("invalid environment override for %s: %w", key, err)
		}
		base.Set(key, value)
		overridden++
	}

	cfg := stored
	if overridden > 0 {
		cfg, err = m.decode(base.AllSettings())
		if err != nil {
			return fmt.Errorf("invalid environment overrides: %w", err)
		}
		logger.WithComponent("config").Info().Int("keys", overridden).Msg("Applied environment overrides")
	}

	m.mu.Lock()
	m.effective = cfg
	m.mu.Unlock()
	return nil
}

func (m *Manager) decode(settings map[string]any) (*Config, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	cfg := m.getDefaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// coerce converts raw into the kind of value current holds.
func coerce(raw string, current any) (any, error) {
	switch current.(type) {
	case int, int64:
		if n, err := strconv.Atoi(raw); err == nil {
			return n, nil
		}
		return strconv.ParseFloat(raw, 64)
	case float64:
		return strconv.ParseFloat(raw, 64)
	case bool:
		return strconv.ParseBool(raw)
	default:
		return raw, nil
	}
}
