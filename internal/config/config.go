package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/site-screener/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Spatial    SpatialConfig    `yaml:"spatial" mapstructure:"spatial"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Evaluation model.Parameters `yaml:"evaluation" mapstructure:"evaluation"`
	Screening  ScreeningConfig  `yaml:"screening" mapstructure:"screening"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// SpatialConfig tunes spatial queries and the breaker that guards them.
type SpatialConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	RoadCandidates   int `yaml:"road_candidates" mapstructure:"road_candidates"`
}

// BatchConfig bounds batch evaluation.
type BatchConfig struct {
	MaxConcurrentSites int     `yaml:"max_concurrent_sites" mapstructure:"max_concurrent_sites"`
	SitesPerSecond     float64 `yaml:"sites_per_second" mapstructure:"sites_per_second"`
}

// ScreeningConfig sets page size limits.
type ScreeningConfig struct {
	DefaultLimit int `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `yaml:"max_limit" mapstructure:"max_limit"`
}

// ImportConfig configures layer and site imports.
type ImportConfig struct {
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCREENER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("spatial.failure_threshold", 5)
	v.SetDefault("spatial.reset_timeout_secs", 30)
	v.SetDefault("spatial.road_candidates", 5)
	v.SetDefault("batch.max_concurrent_sites", 4)
	v.SetDefault("batch.sites_per_second", 10)
	v.SetDefault("evaluation.weights.grid", 0.35)
	v.SetDefault("evaluation.weights.setback", 0.30)
	v.SetDefault("evaluation.weights.road", 0.20)
	v.SetDefault("evaluation.weights.pole", 0.15)
	v.SetDefault("evaluation.thresholds.grid_max_distance_m", 1000)
	v.SetDefault("evaluation.thresholds.grid_min_capacity_kw", 300)
	v.SetDefault("evaluation.thresholds.residential_setback_m", 50)
	v.SetDefault("evaluation.thresholds.school_setback_m", 100)
	v.SetDefault("evaluation.thresholds.hospital_setback_m", 150)
	v.SetDefault("evaluation.thresholds.road_max_distance_m", 500)
	v.SetDefault("evaluation.thresholds.road_min_width_m", 4)
	v.SetDefault("evaluation.thresholds.pole_max_distance_m", 200)
	v.SetDefault("screening.default_limit", 50)
	v.SetDefault("screening.max_limit", 500)
	v.SetDefault("import.temp_dir", "/tmp/site-screener")
	v.SetDefault("import.ftp_user", "anonymous")
	v.SetDefault("import.ftp_password", "anonymous")

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

// Validate checks that the values a command needs are present. Sections:
// "store" for anything touching the database, "serve" for the API,
// "evaluate" for evaluation runs and "params" for seeding configs.
func (c *Config) Validate(section string) error {
	var errs []string

	needStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required")
			}
		case "sqlite":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required (sqlite file path)")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	}

	switch section {
	case "store":
		needStore()
	case "serve":
		needStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	case "evaluate":
		needStore()
		if c.Batch.MaxConcurrentSites <= 0 {
			errs = append(errs, "batch.max_concurrent_sites must be > 0")
		}
	case "params":
		needStore()
		if err := c.Evaluation.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		return eris.Errorf("config: unknown validation section %q", section)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
