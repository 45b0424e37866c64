package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds service configuration loaded from the config file and
// environment variables.
type Config struct {
	Env      string   `mapstructure:"env"`      // local, dev, production
	Server   Server   `mapstructure:"server"`   // HTTP listener
	Quiz     Quiz     `mapstructure:"quiz"`     // quiz definition source
	Session  Session  `mapstructure:"session"`  // session runtime knobs
	Redis    Redis    `mapstructure:"redis"`    // optional quiz cache / results archive
	Postgres Postgres `mapstructure:"postgres"` // optional quiz definition store
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Quiz struct {
	// File points at a YAML quiz definition document. Ignored when a
	// Postgres URL is configured.
	File string `mapstructure:"file"`
	// TTL bounds how long loaded definitions stay cached.
	TTL time.Duration `mapstructure:"ttl"`
}

type Session struct {
	// TimeLimit is the default per-question answer window. Zero disables
	// the deadline timer; questions then close manually.
	TimeLimit time.Duration `mapstructure:"time_limit"`
	// MaxPlayers caps the lobby. Zero means unlimited.
	MaxPlayers int `mapstructure:"max_players"`
	// ResultsTTL bounds how long archived final standings are retained.
	ResultsTTL time.Duration `mapstructure:"results_ttl"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"-"` // from REDIS_PASSWORD only
	DB       int    `mapstructure:"db"`
}

type Postgres struct {
	URL string `mapstructure:"-"` // from POSTGRES_URL only
}

// Load reads configuration from the given path (a directory containing
// config.yaml, or empty for ./config) with environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path == "" {
		path = "./config"
	}
	v.AddConfigPath(path)

	v.SetDefault("env", "local")
	v.SetDefault("server.port", "8080")
	v.SetDefault("quiz.file", "config/quiz.yaml")
	v.SetDefault("quiz.ttl", "10m")
	v.SetDefault("session.time_limit", "0s")
	v.SetDefault("session.max_players", 0)
	v.SetDefault("session.results_ttl", "24h")

	v.SetEnvPrefix("QUIZHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("postgres.url", "POSTGRES_URL")
	_ = v.BindEnv("env", "APP_ENV")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file is fine; defaults plus env cover the minimal setup.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Postgres.URL = v.GetString("postgres.url")
	return &cfg, nil
}
