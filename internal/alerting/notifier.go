// Package alerting delivers engine alerts to external notification channels.
package alerting

import (
	"context"
	"fmt"
	"time"

	"connwatch/internal/logger"
	"connwatch/internal/monitor"
)

// Config configures outbound alert notifications.
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MinLevel filters notifications; alerts below it are delivered to the
	// API and websocket clients but not pushed to external channels.
	MinLevel      monitor.AlertLevel `yaml:"min_level" json:"min_level"`
	RetryCount    int                `yaml:"retry_count" json:"retry_count"`
	RetryInterval time.Duration      `yaml:"retry_interval" json:"retry_interval"`
	Timeout       time.Duration      `yaml:"timeout" json:"timeout"`
	QueueSize     int                `yaml:"queue_size" json:"queue_size"`

	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`
	Slack   SlackConfig   `yaml:"slack" json:"slack"`
	Email   EmailConfig   `yaml:"email" json:"email"`
}

// DefaultConfig returns the shipped notification defaults.
func DefaultConfig() Config {
	return Config{
		MinLevel:      monitor.AlertLevelWarning,
		RetryCount:    3,
		RetryInterval: 30 * time.Second,
		Timeout:       10 * time.Second,
		QueueSize:     100,
	}
}

// Channel delivers one alert to one destination.
type Channel interface {
	Send(ctx context.Context, alert monitor.MonitoringAlert) error
	Name() string
	Enabled() bool
}

// DeliveryMetrics receives per-channel delivery outcomes.
type DeliveryMetrics interface {
	NotificationSent(channel string, success bool)
}

// Notifier fans alerts out to the configured channels from a single worker,
// retrying failed deliveries with a fixed interval.
type Notifier struct {
	config   Config
	channels []Channel
	queue    chan monitor.MonitoringAlert
	stopCh   chan struct{}
	doneCh   chan struct{}
	metrics  DeliveryMetrics
	log      logger.Logger
}

// NewNotifier builds a notifier with the channels enabled by the config.
func NewNotifier(config Config, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNop()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	n := &Notifier{
		config: config,
		queue:  make(chan monitor.MonitoringAlert, config.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		log:    log,
	}

	if config.Webhook.Enabled {
		n.channels = append(n.channels, NewWebhookChannel(config.Webhook))
	}
	if config.Slack.Enabled {
		n.channels = append(n.channels, NewSlackChannel(config.Slack))
	}
	if config.Email.Enabled {
		n.channels = append(n.channels, NewEmailChannel(config.Email))
	}
	return n
}

// SetMetrics attaches a delivery metric sink.
func (n *Notifier) SetMetrics(m DeliveryMetrics) {
	n.metrics = m
}

// Channels returns the names of the active channels.
func (n *Notifier) Channels() []string {
	names := make([]string, 0, len(n.channels))
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Start launches the delivery worker.
func (n *Notifier) Start() {
	go n.worker()
	n.log.Info("alert notifier started",
		"channels", len(n.channels), "min_level", string(n.config.MinLevel))
}

// Stop shuts the worker down. Queued alerts are dropped.
func (n *Notifier) Stop() {
	close(n.stopCh)
	<-n.doneCh
}

// Dispatch enqueues an alert for delivery. Alerts below the configured minimum
// level are ignored; a full queue drops the alert rather than blocking the
// caller.
func (n *Notifier) Dispatch(alert monitor.MonitoringAlert) error {
	if len(n.channels) == 0 {
		return nil
	}
	if levelRank(alert.Level) < levelRank(n.config.MinLevel) {
		return nil
	}

	select {
	case n.queue <- alert:
		return nil
	default:
		n.log.Warn("notification queue full, dropping alert", "alert_id", alert.ID)
		return fmt.Errorf("notification queue is full")
	}
}

func (n *Notifier) worker() {
	defer close(n.doneCh)
	for {
		select {
		case <-n.stopCh:
			return
		case alert := <-n.queue:
			n.deliver(alert)
		}
	}
}

func (n *Notifier) deliver(alert monitor.MonitoringAlert) {
	for _, channel := range n.channels {
		if !channel.Enabled() {
			continue
		}

		var err error
		for attempt := 0; attempt <= n.config.RetryCount; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), n.config.Timeout)
			err = channel.Send(ctx, alert)
			cancel()
			if err == nil {
				break
			}
			if attempt < n.config.RetryCount {
				select {
				case <-n.stopCh:
					return
				case <-time.After(n.config.RetryInterval):
				}
			}
		}

		if n.metrics != nil {
			n.metrics.NotificationSent(channel.Name(), err == nil)
		}
		if err != nil {
			n.log.Error("failed to deliver alert",
				"channel", channel.Name(), "alert_id", alert.ID, "error", err.Error())
			continue
		}
		n.log.Debug("alert delivered",
			"channel", channel.Name(), "alert_id", alert.ID)
	}
}

func levelRank(level monitor.AlertLevel) int {
	switch level {
	case monitor.AlertLevelCritical:
		return 2
	case monitor.AlertLevelWarning:
		return 1
	default:
		return 0
	}
}
