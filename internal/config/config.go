package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"connwatch/internal/alerting"
	"connwatch/internal/logger"
	"connwatch/internal/monitor"
)

// Config is the application configuration.
type Config struct {
	App        AppConfig          `yaml:"app"`
	Server     ServerConfig       `yaml:"server"`
	Database   DatabaseConfig     `yaml:"database"`
	Redis      RedisConfig        `yaml:"redis"`
	JWT        JWTConfig          `yaml:"jwt"`
	RateLimit  APIRateLimitConfig `yaml:"rate_limit"`
	Retention  RetentionConfig    `yaml:"retention"`
	Monitoring monitor.Config     `yaml:"monitoring"`
	Alerting   alerting.Config    `yaml:"alerting"`
	Logging    logger.Config      `yaml:"logging"`
}

// AppConfig identifies the running application.
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// DatabaseConfig configures the optional Postgres storage collaborator.
type DatabaseConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RedisConfig configures the snapshot cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig configures bearer auth on mutating API routes.
type JWTConfig struct {
	SecretKey string        `yaml:"secret_key"`
	Duration  time.Duration `yaml:"duration"`
}

// APIRateLimitConfig configures the HTTP server's own rate limiter. This is
// unrelated to the per-connector rate budgets the engine tracks.
type APIRateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
}

// RetentionConfig bounds how long the storage collaborator keeps history.
type RetentionConfig struct {
	LogRetentionDays   int `yaml:"log_retention_days"`
	AlertRetentionDays int `yaml:"alert_retention_days"`
}

// Default returns the shipped configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "connwatch",
			Version: "dev",
			Env:     "development",
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "connwatch",
			DBName:  "connwatch",
			SSLMode: "disable",
			MaxOpen: 20,
			MaxIdle: 5,
			Timeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		JWT: JWTConfig{
			Duration: 24 * time.Hour,
		},
		RateLimit: APIRateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Retention: RetentionConfig{
			LogRetentionDays:   14,
			AlertRetentionDays: 90,
		},
		Monitoring: monitor.DefaultConfig(),
		Alerting:   alerting.DefaultConfig(),
		Logging:    logger.DefaultConfig,
	}
}

// Load reads configuration from a YAML file on top of the defaults, then
// applies environment overrides. A missing .env file is not an error.
func Load(filename string) (*Config, error) {
	_ = godotenv.Load()

	config := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnv(NewEnvManager("", ""))

	if err := NewValidator(config).Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// applyEnv overlays environment variables on the loaded file. Secrets may be
// stored encrypted with the ENC: prefix.
func (c *Config) applyEnv(env *EnvManager) {
	c.App.Env = env.GetString("env", c.App.Env)

	c.Server.Host = env.GetString("server_host", c.Server.Host)
	c.Server.Port = env.GetInt("server_port", c.Server.Port)

	c.Database.Enabled = env.GetBool("db_enabled", c.Database.Enabled)
	c.Database.Host = env.GetString("db_host", c.Database.Host)
	c.Database.Port = env.GetInt("db_port", c.Database.Port)
	c.Database.User = env.GetString("db_user", c.Database.User)
	c.Database.Password = env.GetEncryptedString("db_password", c.Database.Password)
	c.Database.DBName = env.GetString("db_name", c.Database.DBName)
	c.Database.SSLMode = env.GetString("db_sslmode", c.Database.SSLMode)

	c.Redis.Enabled = env.GetBool("redis_enabled", c.Redis.Enabled)
	c.Redis.Addr = env.GetString("redis_addr", c.Redis.Addr)
	c.Redis.Password = env.GetEncryptedString("redis_password", c.Redis.Password)

	c.JWT.SecretKey = env.GetEncryptedString("jwt_secret", c.JWT.SecretKey)

	c.Monitoring.AggregationInterval = env.GetDuration("aggregation_interval", c.Monitoring.AggregationInterval)

	c.Logging.Level = logger.LogLevel(env.GetString("log_level", string(c.Logging.Level)))
	c.Logging.Output = env.GetString("log_output", c.Logging.Output)
}
