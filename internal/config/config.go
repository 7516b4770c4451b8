// Package config loads application configuration from a YAML file and
// IDENTIFY_-prefixed environment variables, and owns the global logger.
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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Vision     VisionConfig     `yaml:"vision" mapstructure:"vision"`
	Auctions   AuctionsConfig   `yaml:"auctions" mapstructure:"auctions"`
	Grading    GradingConfig    `yaml:"grading" mapstructure:"grading"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Consensus  ConsensusConfig  `yaml:"consensus" mapstructure:"consensus"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// VisionConfig holds Anthropic vision-model settings.
type VisionConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	Model         string `yaml:"model" mapstructure:"model"`
	MaxImageBytes int    `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
}

// AuctionsConfig holds auction-record lookup API settings.
type AuctionsConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// GradingConfig holds grading-service lookup API settings.
type GradingConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// EngineConfig configures dispatch behavior.
type EngineConfig struct {
	GlobalTimeoutSecs    int     `yaml:"global_timeout_secs" mapstructure:"global_timeout_secs"`
	GraceMs              int     `yaml:"grace_ms" mapstructure:"grace_ms"`
	ConcurrencyCap       int     `yaml:"concurrency_cap" mapstructure:"concurrency_cap"`
	PerCallTimeoutSecs   int     `yaml:"per_call_timeout_secs" mapstructure:"per_call_timeout_secs"`
	BasicCeiling         int     `yaml:"basic_ceiling" mapstructure:"basic_ceiling"`
	ComprehensiveCeiling int     `yaml:"comprehensive_ceiling" mapstructure:"comprehensive_ceiling"`
	DeepCeiling          int     `yaml:"deep_ceiling" mapstructure:"deep_ceiling"`
	ReliabilityAlpha     float64 `yaml:"reliability_alpha" mapstructure:"reliability_alpha"`
}

// RetryConfig configures per-source retry behavior.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerConfig configures per-source circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	HalfOpenMax      int `yaml:"half_open_max" mapstructure:"half_open_max"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled" mapstructure:"enabled"`
	TTLHours int  `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ConsensusConfig points at the optional consensus tuning file.
type ConsensusConfig struct {
	TuningPath string `yaml:"tuning_path" mapstructure:"tuning_path"`
}

// MonitoringConfig configures background health checks and alerting.
type MonitoringConfig struct {
	NoConsensusRateThreshold float64 `yaml:"no_consensus_rate_threshold" mapstructure:"no_consensus_rate_threshold"`
	ReliabilityFloor         float64 `yaml:"reliability_floor" mapstructure:"reliability_floor"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("IDENTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "identify.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("vision.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("vision.max_image_bytes", 5*1024*1024)
	v.SetDefault("auctions.requests_per_sec", 5)
	v.SetDefault("grading.requests_per_sec", 5)
	v.SetDefault("engine.global_timeout_secs", 45)
	v.SetDefault("engine.grace_ms", 500)
	v.SetDefault("engine.concurrency_cap", 8)
	v.SetDefault("engine.per_call_timeout_secs", 20)
	v.SetDefault("engine.basic_ceiling", 5)
	v.SetDefault("engine.comprehensive_ceiling", 10)
	v.SetDefault("engine.deep_ceiling", 15)
	v.SetDefault("engine.reliability_alpha", 0.15)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_secs", 30)
	v.SetDefault("breaker.half_open_max", 1)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_hours", 1)
	v.SetDefault("monitoring.no_consensus_rate_threshold", 0.5)
	v.SetDefault("monitoring.reliability_floor", 0.2)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

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

// Validate checks mode-specific requirements. Modes: "identify" for
// one-shot CLI runs, "serve" for the HTTP server.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(cond bool, msg string) {
		if cond {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "identify", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	check(c.Store.Driver != "sqlite" && c.Store.Driver != "postgres",
		"store.driver must be sqlite or postgres")
	check(c.Store.DatabaseURL == "", "store.database_url is required")
	check(c.Engine.ConcurrencyCap < 1 || c.Engine.ConcurrencyCap > 64,
		"engine.concurrency_cap must be between 1 and 64")
	check(c.Engine.GlobalTimeoutSecs < 1, "engine.global_timeout_secs must be > 0")
	check(c.Engine.ReliabilityAlpha <= 0 || c.Engine.ReliabilityAlpha >= 1,
		"engine.reliability_alpha must be in (0, 1)")
	check(c.Retry.MaxAttempts < 1, "retry.max_attempts must be >= 1")
	check(c.Monitoring.NoConsensusRateThreshold < 0 || c.Monitoring.NoConsensusRateThreshold > 1,
		"monitoring.no_consensus_rate_threshold must be within [0, 1]")

	if mode == "serve" {
		check(c.Server.Port <= 0, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
