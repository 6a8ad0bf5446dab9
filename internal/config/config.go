// Package config loads application configuration from file and environment
// and initializes the global logger.
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
	Places PlacesConfig `yaml:"places" mapstructure:"places"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Crawl  CrawlConfig  `yaml:"crawl" mapstructure:"crawl"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// PlacesConfig configures the Places API acquisition phase.
type PlacesConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
	MaxPages    int     `yaml:"max_pages" mapstructure:"max_pages"`
	QPS         float64 `yaml:"qps" mapstructure:"qps"`
	PageDelayMs int     `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	SleepMs     int     `yaml:"sleep_ms" mapstructure:"sleep_ms"`
	Resume      bool    `yaml:"resume" mapstructure:"resume"`
	Retries     int     `yaml:"retries" mapstructure:"retries"`
}

// CacheConfig configures the durable cache backend.
type CacheConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CrawlConfig configures the website crawl phase.
type CrawlConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	MaxPages           int    `yaml:"max_pages" mapstructure:"max_pages"`
	TimeoutSecs        int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RequestDelayMs     int    `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	Retries            int    `yaml:"retries" mapstructure:"retries"`
	Concurrency        int    `yaml:"concurrency" mapstructure:"concurrency"`
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	NoCache            bool   `yaml:"no_cache" mapstructure:"no_cache"`
}

// OutputConfig configures the export writers.
type OutputConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
	XLSX   bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// ServerConfig configures the HTTP trigger server.
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
	v.SetEnvPrefix("LEADENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Empty-string defaults register the key so environment-only
	// values survive Unmarshal.
	v.SetDefault("places.api_key", "")
	v.SetDefault("places.base_url", "")
	v.SetDefault("cache.database_url", "")
	v.SetDefault("crawl.user_agent", "")
	v.SetDefault("places.max_results", 60)
	v.SetDefault("places.max_pages", 3)
	v.SetDefault("places.qps", 10.0)
	v.SetDefault("places.page_delay_ms", 2000)
	v.SetDefault("places.sleep_ms", 0)
	v.SetDefault("places.resume", false)
	v.SetDefault("places.retries", 3)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", "lead_cache.db")
	v.SetDefault("crawl.enabled", true)
	v.SetDefault("crawl.max_pages", 6)
	v.SetDefault("crawl.timeout_secs", 30)
	v.SetDefault("crawl.request_timeout_secs", 15)
	v.SetDefault("crawl.no_cache", false)
	v.SetDefault("crawl.request_delay_ms", 200)
	v.SetDefault("crawl.retries", 3)
	v.SetDefault("crawl.concurrency", 5)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.prefix", "leads")
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

// Validate collects configuration problems. An empty slice means the config
// is usable.
func (c *Config) Validate() []string {
	var problems []string

	if c.Places.APIKey == "" {
		problems = append(problems, "places.api_key is required (LEADENGINE_PLACES_API_KEY)")
	}
	switch c.Cache.Driver {
	case "sqlite":
		if c.Cache.Path == "" {
			problems = append(problems, "cache.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			problems = append(problems, "cache.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "cache.driver must be sqlite or postgres")
	}
	if c.Crawl.MaxPages < 1 {
		problems = append(problems, "crawl.max_pages must be positive")
	}
	if c.Places.MaxResults <= 0 {
		problems = append(problems, "places.max_results must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be a valid port")
	}
	return problems
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
