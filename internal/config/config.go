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
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	TFL       TFLConfig       `yaml:"tfl" mapstructure:"tfl"`
	Postcodes PostcodesConfig `yaml:"postcodes" mapstructure:"postcodes"`
	Populate  PopulateConfig  `yaml:"populate" mapstructure:"populate"`
	Filter    FilterConfig    `yaml:"filter" mapstructure:"filter"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the persisted engine state on local disk.
type DataConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	AreasFile   string `yaml:"areas_file" mapstructure:"areas_file"`
	IndexFile   string `yaml:"index_file" mapstructure:"index_file"`
	DistancesDB string `yaml:"distances_db" mapstructure:"distances_db"`
}

// TFLConfig holds journey-planning API settings. Date and Time fix the
// arrival reference (YYYYMMDD / HHMM) so durations are comparable
// run-to-run.
type TFLConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	AppID       string `yaml:"app_id" mapstructure:"app_id"`
	AppKey      string `yaml:"app_key" mapstructure:"app_key"`
	Date        string `yaml:"date" mapstructure:"date"`
	Time        string `yaml:"time" mapstructure:"time"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PostcodesConfig holds outcode geocoding API settings.
type PostcodesConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RadiusMeters int     `yaml:"radius_meters" mapstructure:"radius_meters"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PopulateConfig configures the concurrent fetch layer.
type PopulateConfig struct {
	Workers           int `yaml:"workers" mapstructure:"workers"`
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// FilterConfig configures the commute filter's candidate heuristic.
type FilterConfig struct {
	NearestWide    int `yaml:"nearest_wide" mapstructure:"nearest_wide"`
	NearestNarrow  int `yaml:"nearest_narrow" mapstructure:"nearest_narrow"`
	WideBudgetMins int `yaml:"wide_budget_mins" mapstructure:"wide_budget_mins"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("COMMUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.areas_file", "areas.json")
	v.SetDefault("data.index_file", "spatial_index.gob")
	v.SetDefault("data.distances_db", "distances.db")
	v.SetDefault("tfl.base_url", "https://api.tfl.gov.uk")
	v.SetDefault("tfl.date", "20250224")
	v.SetDefault("tfl.time", "0900")
	v.SetDefault("tfl.timeout_secs", 30)
	v.SetDefault("postcodes.base_url", "https://api.postcodes.io")
	v.SetDefault("postcodes.radius_meters", 400)
	v.SetDefault("postcodes.rate_limit", 10)
	v.SetDefault("populate.workers", 10)
	v.SetDefault("populate.requests_per_minute", 499)
	v.SetDefault("filter.nearest_wide", 150)
	v.SetDefault("filter.nearest_narrow", 100)
	v.SetDefault("filter.wide_budget_mins", 60)
	v.SetDefault("server.port", 8080)
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
