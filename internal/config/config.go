// Package config loads the application configuration and sets up the
// global logger. Settings come from defaults, an optional YAML file, and
// ROADWATCH_* environment variables, later sources winning.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the full application configuration tree.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Detector DetectorConfig `yaml:"detector" mapstructure:"detector"`
	Importer ImporterConfig `yaml:"importer" mapstructure:"importer"`
	Policy   PolicyConfig   `yaml:"policy" mapstructure:"policy"`
}

// StoreConfig configures the database backend. For the sqlite driver
// DatabaseURL is a file path; for postgres it is a pgx connection string.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the REST API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DetectorConfig configures the road damage vision detector. The breaker
// settings apply to the http provider only; the Anthropic SDK carries its
// own retry handling.
type DetectorConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Key              string  `yaml:"key" mapstructure:"key"`
	Model            string  `yaml:"model" mapstructure:"model"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens        int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	MinConfidence    float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ImporterConfig configures bulk dataset imports.
type ImporterConfig struct {
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
}

// PolicyConfig points at an optional confidence policy override file.
type PolicyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Load reads the configuration. With an empty path the file is optional
// and searched for as roadwatch.yaml in the working directory and
// $HOME/.roadwatch; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("roadwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.roadwatch")
	}

	v.SetEnvPrefix("ROADWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !eris.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "roadwatch.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 10.0)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("detector.provider", "anthropic")
	v.SetDefault("detector.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("detector.max_tokens", 1024)
	v.SetDefault("detector.min_confidence", 0.60)
	v.SetDefault("detector.breaker_threshold", 5)
	v.SetDefault("detector.breaker_reset_secs", 30)
	v.SetDefault("importer.max_attempts", 3)
	v.SetDefault("importer.initial_backoff_ms", 500)
	v.SetDefault("importer.max_backoff_ms", 30000)
	v.SetDefault("importer.user_agent", "roadwatch/1.0")
}

// InitLogger replaces the global zap logger with one built from the log
// section. Format "console" selects the development config, anything
// else the production JSON config.
func InitLogger(cfg LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrapf(err, "config: log level %q", cfg.Level)
	}

	var zc zap.Config
	switch cfg.Format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
