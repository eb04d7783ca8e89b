// Package config provides configuration management for RecordKeeper.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EngineConfig holds the path namespace and analysis settings of the engine.
type EngineConfig struct {
	Separator        string `mapstructure:"separator" validate:"required"`
	RootMarker       string `mapstructure:"root_marker" validate:"required"`
	PropertiesKey    string `mapstructure:"properties_key" validate:"required"`
	NameKey          string `mapstructure:"name_key" validate:"required"`
	AffectedAnalysis bool   `mapstructure:"affected_analysis"`
	MaxPathDepth     int    `mapstructure:"max_path_depth" validate:"gte=1,lte=64"`
}

// HistoryConfig holds the run history store settings.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBURL   string `mapstructure:"db_url" validate:"required_if=Enabled true,dburl"`
}

// Config is the complete RecordKeeper configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	History HistoryConfig `mapstructure:"history"`
}

// DefaultEngineConfig returns engine configuration with default values.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Separator:        ".",
		RootMarker:       "_",
		PropertiesKey:    "_props",
		NameKey:          "_name",
		AffectedAnalysis: true,
		MaxPathDepth:     16,
	}
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: DefaultEngineConfig(),
		History: HistoryConfig{
			Enabled: false,
			DBURL:   "sqlite://./recordkeeper.db",
		},
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("dburl", validateDBURL)
}

// validateDBURL accepts the schemes internal/core/db can open. Empty is
// left to required_if.
func validateDBURL(fl validator.FieldLevel) bool {
	u := fl.Field().String()
	return u == "" ||
		strings.HasPrefix(u, "sqlite://") ||
		strings.HasPrefix(u, "postgres://") ||
		strings.HasPrefix(u, "postgresql://")
}

// Validate checks struct tags, then the constraints tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	e := c.Engine
	if strings.Contains(e.RootMarker, e.Separator) {
		return fmt.Errorf("root_marker %q must not contain separator %q", e.RootMarker, e.Separator)
	}
	if strings.Contains(e.PropertiesKey, e.Separator) {
		return fmt.Errorf("properties_key %q must not contain separator %q", e.PropertiesKey, e.Separator)
	}
	return nil
}
