// Package config loads market-engine settings from an optional YAML file
// and the environment. Environment variables override file values; a key
// such as database.url is read from DATABASE_URL.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Default values.
const (
	DefaultPort            = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 5 * time.Second

	DefaultMaxConns = 10
	DefaultMinConns = 2

	DefaultRedisTTL = 30 * time.Second

	DefaultInitialLiquidity = 1000
	DefaultMinBet           = 1
	DefaultMaxBet           = 10000
	DefaultStartingBalance  = 1000

	DefaultSettlementWorkers = 8
	DefaultReconcileCron     = "0 */5 * * * *"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Market     MarketConfig     `mapstructure:"market"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Seed       SeedConfig       `mapstructure:"seed"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects PostgreSQL. An empty URL means the in-memory store.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig enables the read-through cache when URL is set.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type MarketConfig struct {
	InitialLiquidity int64 `mapstructure:"initial_liquidity"`
	MinBet           int64 `mapstructure:"min_bet"`
	MaxBet           int64 `mapstructure:"max_bet"`
	StartingBalance  int64 `mapstructure:"starting_balance"`
}

// LimitsConfig caps a user's open stake. Zero disables a limit.
type LimitsConfig struct {
	MaxStakePerContract int64 `mapstructure:"max_stake_per_contract"`
	MaxStakePerCategory int64 `mapstructure:"max_stake_per_category"`
}

type SettlementConfig struct {
	Workers int `mapstructure:"workers"`
}

type RankingConfig struct {
	ReconcileCron string `mapstructure:"reconcile_cron"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SeedConfig points at an optional demo fixture file.
type SeedConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.idle_timeout", DefaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", DefaultMaxConns)
	v.SetDefault("database.min_conns", DefaultMinConns)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", DefaultRedisTTL)

	v.SetDefault("market.initial_liquidity", DefaultInitialLiquidity)
	v.SetDefault("market.min_bet", DefaultMinBet)
	v.SetDefault("market.max_bet", DefaultMaxBet)
	v.SetDefault("market.starting_balance", DefaultStartingBalance)

	v.SetDefault("limits.max_stake_per_contract", 0)
	v.SetDefault("limits.max_stake_per_category", 0)

	v.SetDefault("settlement.workers", DefaultSettlementWorkers)
	v.SetDefault("ranking.reconcile_cron", DefaultReconcileCron)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("seed.path", "")
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and the environment are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is the conventional variable on most platforms.
	if err := v.BindEnv("server.port", "SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.MaxConns < 1 {
		return errors.New("database.max_conns must be >= 1")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return errors.New("database.min_conns must be between 0 and database.max_conns")
	}
	if c.Market.InitialLiquidity < 1 {
		return errors.New("market.initial_liquidity must be >= 1")
	}
	if c.Market.MinBet < 1 {
		return errors.New("market.min_bet must be >= 1")
	}
	if c.Market.MaxBet < c.Market.MinBet {
		return errors.New("market.max_bet must be >= market.min_bet")
	}
	if c.Market.StartingBalance < 0 {
		return errors.New("market.starting_balance must be >= 0")
	}
	if c.Limits.MaxStakePerContract < 0 || c.Limits.MaxStakePerCategory < 0 {
		return errors.New("limits must be >= 0")
	}
	if c.Settlement.Workers < 1 {
		return errors.New("settlement.workers must be >= 1")
	}
	if c.Ranking.ReconcileCron != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Ranking.ReconcileCron); err != nil {
			return fmt.Errorf("ranking.reconcile_cron: %w", err)
		}
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}
