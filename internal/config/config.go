// Package config loads the command line configuration from a YAML file and PROCFLOW_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "PROCFLOW"

type Config struct {
	// DataDir holds uploaded files, documents and tags.
	DataDir string `mapstructure:"data_dir"`
	Tenant  string `mapstructure:"tenant"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Backend Backend `mapstructure:"backend"`

	Tracing struct {
		// Exporter is none, stdout or otlp.
		Exporter string `mapstructure:"exporter"`
		Endpoint string `mapstructure:"endpoint"`
		Insecure bool   `mapstructure:"insecure"`
	} `mapstructure:"tracing"`

	TagCache struct {
		TTL      time.Duration `mapstructure:"ttl"`
		Capacity int           `mapstructure:"capacity"`
	} `mapstructure:"tag_cache"`
}

type Backend struct {
	// Type is memory, sqlite, mysql, postgres or redis.
	Type string `mapstructure:"type"`

	// ReadyTimeout bounds how long to wait for the database to accept connections.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`

	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`

	MySQL Database `mapstructure:"mysql"`

	Postgres struct {
		Database `mapstructure:",squash"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"postgres"`

	Redis struct {
		Addr           string        `mapstructure:"addr"`
		Password       string        `mapstructure:"password"`
		DB             int           `mapstructure:"db"`
		KeyPrefix      string        `mapstructure:"key_prefix"`
		AutoExpiration time.Duration `mapstructure:"auto_expiration"`
	} `mapstructure:"redis"`
}

type Database struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./procflow-data")
	v.SetDefault("tenant", "default")
	v.SetDefault("log.level", "info")

	v.SetDefault("backend.type", "sqlite")
	v.SetDefault("backend.ready_timeout", 30*time.Second)
	v.SetDefault("backend.sqlite.path", "./procflow-data/procflow.sqlite")
	v.SetDefault("backend.mysql.host", "localhost")
	v.SetDefault("backend.mysql.port", 3306)
	v.SetDefault("backend.mysql.user", "root")
	v.SetDefault("backend.mysql.password", "")
	v.SetDefault("backend.mysql.name", "procflow")
	v.SetDefault("backend.postgres.host", "localhost")
	v.SetDefault("backend.postgres.port", 5432)
	v.SetDefault("backend.postgres.user", "postgres")
	v.SetDefault("backend.postgres.password", "")
	v.SetDefault("backend.postgres.name", "procflow")
	v.SetDefault("backend.postgres.sslmode", "disable")
	v.SetDefault("backend.redis.addr", "localhost:6379")
	v.SetDefault("backend.redis.password", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.redis.key_prefix", "procflow")
	v.SetDefault("backend.redis.auto_expiration", time.Duration(0))

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("tag_cache.ttl", 5*time.Minute)
	v.SetDefault("tag_cache.capacity", 1000)
}

// Load reads the configuration. An explicit file has to exist; without one procflow.yaml is looked up
// in the working directory and ignored when missing. Environment variables override both, e.g.
// PROCFLOW_BACKEND_TYPE=redis.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("procflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "memory", "sqlite", "mysql", "postgres", "redis":
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}

	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown tracing exporter %q", c.Tracing.Exporter)
	}

	if c.Tenant == "" {
		return errors.New("tenant must not be empty")
	}

	if c.TagCache.Capacity < 0 {
		return errors.New("tag_cache.capacity must not be negative")
	}

	return nil
}
