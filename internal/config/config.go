// Package config loads spoilage settings from a YAML file using Viper and
// adapts them to the core Settings contract.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"silocore/internal/core"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyEnabled      = "enabled"
	cfgKeyAgeUnits     = "age_units_per_time_unit"
	cfgKeyContentTypes = "content_types"
)

// defaultConfigYAML is written to the config directory on first run so
// operators have a template to edit.
const defaultConfigYAML = `# silocore spoilage configuration

# Global switch. When false containers are tracked but nothing ages.
enabled: true

# Ledger age units accumulated per simulation time unit.
age_units_per_time_unit: 1.0

# Tracked content types and their thresholds, in age units.
content_types:
  grass:
    expiration_threshold: 4.0
    warn_threshold: 3.0
  milk:
    expiration_threshold: 2.0
    warn_threshold: 1.5
`

type contentTypeConfig struct {
	ExpirationThreshold float64 `mapstructure:"expiration_threshold"`
	WarnThreshold       float64 `mapstructure:"warn_threshold"`
}

// Config is the decoded configuration file.
type Config struct {
	Enabled             bool                         `mapstructure:"enabled"`
	AgeUnitsPerTimeUnit float64                      `mapstructure:"age_units_per_time_unit"`
	ContentTypes        map[string]contentTypeConfig `mapstructure:"content_types"`
}

// Load reads config.yaml from dir, creating the directory and a default file
// on first run. A missing file yields the defaults.
func Load(dir string) (Config, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(dir); err != nil {
		return Config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyEnabled, true)
	v.SetDefault(cfgKeyAgeUnits, 1.0)
	v.SetDefault(cfgKeyContentTypes, map[string]contentTypeConfig{})
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.AgeUnitsPerTimeUnit <= 0 {
		return Config{}, fmt.Errorf("age_units_per_time_unit must be positive, got %v", cfg.AgeUnitsPerTimeUnit)
	}
	for name, ct := range cfg.ContentTypes {
		if ct.ExpirationThreshold <= 0 {
			return Config{}, fmt.Errorf("content type %s: expiration_threshold must be positive", name)
		}
	}
	return cfg, nil
}

// Settings adapts the decoded configuration to the core Settings contract.
func (c Config) Settings() core.Settings {
	types := make(map[string]core.ContentTypeSetting, len(c.ContentTypes))
	for name, ct := range c.ContentTypes {
		warn := ct.WarnThreshold
		if warn <= 0 {
			warn = ct.ExpirationThreshold
		}
		types[name] = core.ContentTypeSetting{
			ExpirationThreshold: ct.ExpirationThreshold,
			WarnThreshold:       warn,
		}
	}
	return core.StaticSettings{Disabled: !c.Enabled, Types: types}
}

// SchedulerConfig adapts the decoded configuration to the scheduler knobs.
func (c Config) SchedulerConfig() core.SchedulerConfig {
	return core.SchedulerConfig{AgeUnitsPerTimeUnit: c.AgeUnitsPerTimeUnit}
}

func ensureDefaultConfigFile(dir string) error {
	path := filepath.Join(dir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
