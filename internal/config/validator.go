package config

import (
	"fmt"
	"strings"

	"connwatch/internal/monitor"
)

// Validator checks a loaded configuration for consistency before the
// application starts.
type Validator struct {
	config *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(config *Config) *Validator {
	return &Validator{config: config}
}

// Validate runs all section checks and returns every failure at once.
func (v *Validator) Validate() error {
	var errors []string

	if err := v.validateApp(); err != nil {
		errors = append(errors, fmt.Sprintf("app: %v", err))
	}
	if err := v.validateServer(); err != nil {
		errors = append(errors, fmt.Sprintf("server: %v", err))
	}
	if err := v.validateDatabase(); err != nil {
		errors = append(errors, fmt.Sprintf("database: %v", err))
	}
	if err := v.validateRedis(); err != nil {
		errors = append(errors, fmt.Sprintf("redis: %v", err))
	}
	if err := v.validateRateLimit(); err != nil {
		errors = append(errors, fmt.Sprintf("rate_limit: %v", err))
	}
	if err := v.validateRetention(); err != nil {
		errors = append(errors, fmt.Sprintf("retention: %v", err))
	}
	if err := v.validateMonitoring(); err != nil {
		errors = append(errors, fmt.Sprintf("monitoring: %v", err))
	}
	if err := v.validateAlerting(); err != nil {
		errors = append(errors, fmt.Sprintf("alerting: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

func (v *Validator) validateApp() error {
	app := v.config.App

	if app.Name == "" {
		return fmt.Errorf("name must not be empty")
	}

	validEnvs := []string{"development", "staging", "production"}
	for _, env := range validEnvs {
		if app.Env == env {
			return nil
		}
	}
	return fmt.Errorf("invalid env %q, valid values: %v", app.Env, validEnvs)
}

func (v *Validator) validateServer() error {
	server := v.config.Server

	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", server.Port)
	}
	if server.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if server.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if server.MaxHeaderBytes <= 0 {
		return fmt.Errorf("max header bytes must be positive")
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	db := v.config.Database

	if !db.Enabled {
		return nil
	}

	if db.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if db.Port <= 0 || db.Port > 65535 {
		return fmt.Errorf("invalid port: %d", db.Port)
	}
	if db.User == "" {
		return fmt.Errorf("user must not be empty")
	}
	if db.DBName == "" {
		return fmt.Errorf("dbname must not be empty")
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	valid := false
	for _, mode := range validSSLModes {
		if db.SSLMode == mode {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid sslmode %q, valid values: %v", db.SSLMode, validSSLModes)
	}

	if db.MaxOpen <= 0 {
		return fmt.Errorf("max open connections must be positive")
	}
	if db.MaxIdle < 0 {
		return fmt.Errorf("max idle connections must not be negative")
	}
	if db.MaxIdle > db.MaxOpen {
		return fmt.Errorf("max idle connections must not exceed max open")
	}
	if db.Timeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	return nil
}

func (v *Validator) validateRedis() error {
	redis := v.config.Redis

	if !redis.Enabled {
		return nil
	}

	if redis.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if !strings.Contains(redis.Addr, ":") {
		return fmt.Errorf("invalid addr format: %s", redis.Addr)
	}
	if redis.DB < 0 || redis.DB > 15 {
		return fmt.Errorf("invalid db number: %d", redis.DB)
	}
	if redis.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive")
	}
	return nil
}

func (v *Validator) validateRateLimit() error {
	rl := v.config.RateLimit

	if !rl.Enabled {
		return nil
	}
	if rl.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if rl.Burst <= 0 {
		return fmt.Errorf("burst must be positive")
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.config.Retention

	if r.LogRetentionDays <= 0 {
		return fmt.Errorf("log retention days must be positive")
	}
	if r.AlertRetentionDays <= 0 {
		return fmt.Errorf("alert retention days must be positive")
	}
	return nil
}

func (v *Validator) validateMonitoring() error {
	m := v.config.Monitoring

	if m.AggregationInterval <= 0 {
		return fmt.Errorf("aggregation interval must be positive")
	}
	if m.EvaluationLookback <= 0 {
		return fmt.Errorf("evaluation lookback must be positive")
	}
	if m.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be positive")
	}
	if m.Breaker.HalfOpenQuota <= 0 {
		return fmt.Errorf("breaker half-open quota must be positive")
	}
	if m.Breaker.BaseBackoff <= 0 {
		return fmt.Errorf("breaker base backoff must be positive")
	}
	if m.Breaker.MaxBackoff < m.Breaker.BaseBackoff {
		return fmt.Errorf("breaker max backoff must not be below the base backoff")
	}

	weights := m.ScoreWeights
	sum := weights.Availability + weights.Performance + weights.Freshness + weights.Quality
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("score weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}

func (v *Validator) validateAlerting() error {
	a := v.config.Alerting

	if !a.Enabled {
		return nil
	}

	switch a.MinLevel {
	case monitor.AlertLevelInfo, monitor.AlertLevelWarning, monitor.AlertLevelCritical:
	default:
		return fmt.Errorf("invalid min level %q", a.MinLevel)
	}
	if a.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative")
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if a.Webhook.Enabled && a.Webhook.URL == "" {
		return fmt.Errorf("webhook url must not be empty")
	}
	if a.Slack.Enabled && a.Slack.WebhookURL == "" {
		return fmt.Errorf("slack webhook url must not be empty")
	}
	if a.Email.Enabled && (a.Email.SMTPHost == "" || len(a.Email.To) == 0) {
		return fmt.Errorf("email channel needs an smtp host and recipients")
	}
	return nil
}
