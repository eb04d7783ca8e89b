package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable overrides.
const EnvPrefix = "RK"

// New returns a viper instance with defaults and RK_ environment binding.
// Callers bind CLI flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("engine.separator", d.Engine.Separator)
	v.SetDefault("engine.root_marker", d.Engine.RootMarker)
	v.SetDefault("engine.properties_key", d.Engine.PropertiesKey)
	v.SetDefault("engine.name_key", d.Engine.NameKey)
	v.SetDefault("engine.affected_analysis", d.Engine.AffectedAnalysis)
	v.SetDefault("engine.max_path_depth", d.Engine.MaxPathDepth)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.db_url", d.History.DBURL)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return Load(New(), configPath)
}

// Load reads configPath (if set) into v and decodes the result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// AutomaticEnv only applies to Get, so read keys explicitly rather than
	// through Unmarshal.
	cfg := &Config{
		Engine: EngineConfig{
			Separator:        v.GetString("engine.separator"),
			RootMarker:       v.GetString("engine.root_marker"),
			PropertiesKey:    v.GetString("engine.properties_key"),
			NameKey:          v.GetString("engine.name_key"),
			AffectedAnalysis: v.GetBool("engine.affected_analysis"),
			MaxPathDepth:     v.GetInt("engine.max_path_depth"),
		},
		History: HistoryConfig{
			Enabled: v.GetBool("history.enabled"),
			DBURL:   v.GetString("history.db_url"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
