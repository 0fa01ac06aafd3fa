// Package config loads the engine and server configuration from an
// optional YAML file plus FRACTAL_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/resonance-desktop/fractal-backend/internal/engine"
	"github.com/resonance-desktop/fractal-backend/internal/risk"
)

// Server holds the HTTP server settings.
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel string `mapstructure:"logLevel"`
	Server   Server `mapstructure:"server"`

	InitialCash     float64 `mapstructure:"initialCash"`
	LearningEnabled bool    `mapstructure:"learningEnabled"`
	BufferCapacity  int     `mapstructure:"bufferCapacity"`
	MemoryCapacity  int     `mapstructure:"memoryCapacity"`
	MaxStrategies   int     `mapstructure:"maxStrategies"`
	ExecutionSeed   int64   `mapstructure:"executionSeed"`

	MaxPositionSize  float64 `mapstructure:"maxPositionSize"`
	MaxPortfolioRisk float64 `mapstructure:"maxPortfolioRisk"`
	MaxCorrelation   float64 `mapstructure:"maxCorrelation"`
	MaxDrawdown      float64 `mapstructure:"maxDrawdown"`
	MaxDailyLoss     float64 `mapstructure:"maxDailyLoss"`
	MaxConcentration float64 `mapstructure:"maxConcentration"`
}

// Load reads the configuration. path may be empty, in which case only the
// defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logLevel", "info")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)

	v.SetDefault("initialCash", 100000.0)
	v.SetDefault("learningEnabled", true)
	v.SetDefault("bufferCapacity", 1000)
	v.SetDefault("memoryCapacity", 10000)
	v.SetDefault("maxStrategies", 10)
	v.SetDefault("executionSeed", 1)

	v.SetDefault("maxPositionSize", 0.10)
	v.SetDefault("maxPortfolioRisk", 0.02)
	v.SetDefault("maxCorrelation", 0.7)
	v.SetDefault("maxDrawdown", 0.15)
	v.SetDefault("maxDailyLoss", 0.05)
	v.SetDefault("maxConcentration", 0.30)

	v.SetEnvPrefix("FRACTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// EngineConfig maps the loaded options onto the engine configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		InitialCash:     c.InitialCash,
		LearningEnabled: c.LearningEnabled,
		BufferCapacity:  c.BufferCapacity,
		MemoryCapacity:  c.MemoryCapacity,
		MaxStrategies:   c.MaxStrategies,
		ExecutionSeed:   c.ExecutionSeed,
		RiskLimits: risk.Limits{
			MaxPositionSize:  c.MaxPositionSize,
			MaxPortfolioRisk: c.MaxPortfolioRisk,
			MaxCorrelation:   c.MaxCorrelation,
			MaxDrawdown:      c.MaxDrawdown,
			MaxDailyLoss:     c.MaxDailyLoss,
			MaxConcentration: c.MaxConcentration,
		},
	}
}
