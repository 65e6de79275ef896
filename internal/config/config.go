package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	TomTom   TomTomConfig   `yaml:"tomtom" mapstructure:"tomtom"`
	Quota    QuotaConfig    `yaml:"quota" mapstructure:"quota"`
	Baseline BaselineConfig `yaml:"baseline" mapstructure:"baseline"`
	Events   EventsConfig   `yaml:"events" mapstructure:"events"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TomTomConfig holds traffic provider API settings.
type TomTomConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Unit        string  `yaml:"unit" mapstructure:"unit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// QuotaConfig bounds daily external API usage. The baseline scheduler and the
// event trigger draw from this single budget.
type QuotaConfig struct {
	DailyLimit int    `yaml:"daily_limit" mapstructure:"daily_limit"`
	Timezone   string `yaml:"timezone" mapstructure:"timezone"`
	Persist    bool   `yaml:"persist" mapstructure:"persist"`
}

// BaselineConfig configures the rotation scheduler.
type BaselineConfig struct {
	Groups     int      `yaml:"groups" mapstructure:"groups"`
	CycleWeeks int      `yaml:"cycle_weeks" mapstructure:"cycle_weeks"`
	Slots      []string `yaml:"slots" mapstructure:"slots"`
	GroupTag   string   `yaml:"group_tag" mapstructure:"group_tag"`
	ConfigFile string   `yaml:"config_file" mapstructure:"config_file"`
}

// EventsConfig configures the event collection trigger.
type EventsConfig struct {
	WindowHours      int `yaml:"window_hours" mapstructure:"window_hours"`
	CadenceMinutes   int `yaml:"cadence_minutes" mapstructure:"cadence_minutes"`
	TargetSamples    int `yaml:"target_samples" mapstructure:"target_samples"`
	ToleranceMinutes int `yaml:"tolerance_minutes" mapstructure:"tolerance_minutes"`
}

// ServerConfig configures the JSON status API.
type ServerConfig struct {
	Port    int `yaml:"port" mapstructure:"port"`
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRAFFICWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "trafficwatch.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("tomtom.base_url", "https://api.tomtom.com/traffic/services/4/flowSegmentData/absolute/10/json")
	v.SetDefault("tomtom.unit", "MPH")
	v.SetDefault("tomtom.timeout_secs", 10)
	v.SetDefault("tomtom.rate_per_sec", 5)
	v.SetDefault("quota.daily_limit", 1000)
	v.SetDefault("quota.timezone", "America/Denver")
	v.SetDefault("quota.persist", false)
	v.SetDefault("baseline.groups", 2)
	v.SetDefault("baseline.cycle_weeks", 4)
	v.SetDefault("baseline.slots", []string{"07:00", "12:00", "17:00", "19:00", "21:00", "23:00"})
	v.SetDefault("baseline.group_tag", "weekly")
	v.SetDefault("events.window_hours", 2)
	v.SetDefault("events.cadence_minutes", 30)
	v.SetDefault("events.target_samples", 9)
	v.SetDefault("events.tolerance_minutes", 15)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
