package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"connwatch/internal/monitor"
)

// WebhookConfig configures the generic JSON webhook channel.
type WebhookConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// WebhookChannel posts the alert as JSON to an arbitrary endpoint.
type WebhookChannel struct {
	config WebhookConfig
	client *http.Client
}

func NewWebhookChannel(config WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		config: config,
		client: &http.Client{},
	}
}

func (wc *WebhookChannel) Send(ctx context.Context, alert monitor.MonitoringAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range wc.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := wc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (wc *WebhookChannel) Name() string { return "webhook" }

func (wc *WebhookChannel) Enabled() bool { return wc.config.Enabled }

// SlackConfig configures the Slack incoming-webhook channel.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
	Channel    string `yaml:"channel" json:"channel"`
	Username   string `yaml:"username" json:"username"`
	IconEmoji  string `yaml:"icon_emoji" json:"icon_emoji"`
}

// SlackChannel posts alerts as colored attachments.
type SlackChannel struct {
	config SlackConfig
	client *http.Client
}

func NewSlackChannel(config SlackConfig) *SlackChannel {
	return &SlackChannel{
		config: config,
		client: &http.Client{},
	}
}

func (sc *SlackChannel) Send(ctx context.Context, alert monitor.MonitoringAlert) error {
	body, err := json.Marshal(sc.buildMessage(alert))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sc.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}
	return nil
}

func (sc *SlackChannel) Name() string { return "slack" }

func (sc *SlackChannel) Enabled() bool { return sc.config.Enabled }

func (sc *SlackChannel) buildMessage(alert monitor.MonitoringAlert) map[string]interface{} {
	color := "#36a64f"
	switch alert.Level {
	case monitor.AlertLevelWarning:
		color = "#ff9500"
	case monitor.AlertLevelCritical:
		color = "#ff0000"
	}

	fields := []map[string]interface{}{
		{"title": "Level", "value": strings.ToUpper(string(alert.Level)), "short": true},
		{"title": "Source", "value": alert.SourceID, "short": true},
		{"title": "Metric", "value": string(alert.Type), "short": true},
		{"title": "Time", "value": alert.Timestamp.Format(time.RFC3339), "short": false},
	}
	if alert.ConnectorID != "" {
		fields = append(fields, map[string]interface{}{
			"title": "Connector", "value": alert.ConnectorID, "short": true,
		})
	}

	return map[string]interface{}{
		"channel":    sc.config.Channel,
		"username":   sc.config.Username,
		"icon_emoji": sc.config.IconEmoji,
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  alert.Title,
				"text":   alert.Message,
				"fields": fields,
			},
		},
	}
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	SMTPHost string   `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port" json:"smtp_port"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`
}

// EmailChannel delivers alerts over SMTP.
type EmailChannel struct {
	config EmailConfig
	// send is swapped in tests.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailChannel(config EmailConfig) *EmailChannel {
	return &EmailChannel{
		config: config,
		send:   smtp.SendMail,
	}
}

func (ec *EmailChannel) Send(ctx context.Context, alert monitor.MonitoringAlert) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Level)), alert.Title)
	body := fmt.Sprintf(
		"Level: %s\nSource: %s\nConnector: %s\nMetric: %s\nValue: %.2f (threshold %.2f)\nTime: %s\n\n%s\n",
		alert.Level, alert.SourceID, alert.ConnectorID, alert.Type,
		alert.Value, alert.Threshold, alert.Timestamp.Format(time.RFC3339), alert.Message)

	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s",
		strings.Join(ec.config.To, ","), subject, body)

	auth := smtp.PlainAuth("", ec.config.Username, ec.config.Password, ec.config.SMTPHost)
	addr := fmt.Sprintf("%s:%d", ec.config.SMTPHost, ec.config.SMTPPort)
	return ec.send(addr, auth, ec.config.From, ec.config.To, []byte(msg))
}

func (ec *EmailChannel) Name() string { return "email" }

func (ec *EmailChannel) Enabled() bool { return ec.config.Enabled }
