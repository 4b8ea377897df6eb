package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"connwatch/internal/logger"
	"connwatch/internal/monitor"
)

// Store persists the engine's durable records: call logs, alert history and
// scorecard snapshots. The engine itself never depends on it; wiring is done
// through sinks at startup.
type Store struct {
	db  *DB
	log logger.Logger
}

// NewStore creates a store over an open connection.
func NewStore(db *DB, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{db: db, log: log}
}

// InsertCallLog appends one immutable call record.
func (s *Store) InsertCallLog(ctx context.Context, entry monitor.APICallLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_call_logs
			(id, connector_id, endpoint, method, called_at, response_time_ms, status_code, success, error, retry_attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.ConnectorID, entry.Endpoint, entry.Method, entry.Timestamp,
		entry.ResponseTimeMs, entry.StatusCode, entry.Success, entry.Error, entry.RetryAttempt)
	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}

// RecentCallLogs returns the newest call records for a connector.
func (s *Store) RecentCallLogs(ctx context.Context, connectorID string, limit int) ([]monitor.APICallLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, connector_id, endpoint, method, called_at, response_time_ms, status_code, success, error, retry_attempt
		FROM api_call_logs
		WHERE connector_id = $1
		ORDER BY called_at DESC
		LIMIT $2`, connectorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query call logs: %w", err)
	}
	defer rows.Close()

	var logs []monitor.APICallLog
	for rows.Next() {
		var entry monitor.APICallLog
		if err := rows.Scan(&entry.ID, &entry.ConnectorID, &entry.Endpoint, &entry.Method,
			&entry.Timestamp, &entry.ResponseTimeMs, &entry.StatusCode, &entry.Success,
			&entry.Error, &entry.RetryAttempt); err != nil {
			return nil, fmt.Errorf("failed to scan call log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// InsertAlert records a newly fired alert.
func (s *Store) InsertAlert(ctx context.Context, alert monitor.MonitoringAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_alerts
			(id, rule_id, source_id, connector_id, level, priority, metric_type, title, message, metric_value, threshold, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		alert.ID, alert.RuleID, alert.SourceID, alert.ConnectorID,
		string(alert.Level), alert.Priority, string(alert.Type), alert.Title,
		alert.Message, alert.Value, alert.Threshold, alert.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// MarkAlertAcknowledged persists an acknowledgment.
func (s *Store) MarkAlertAcknowledged(ctx context.Context, alertID, who string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_alerts
		SET acknowledged_at = $2, acknowledged_by = $3
		WHERE id = $1 AND acknowledged_at IS NULL`, alertID, at, who)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return requireRowAffected(result, alertID)
}

// MarkAlertResolved persists a resolution.
func (s *Store) MarkAlertResolved(ctx context.Context, alertID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_alerts
		SET resolved_at = $2
		WHERE id = $1 AND resolved_at IS NULL`, alertID, at)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return requireRowAffected(result, alertID)
}

// UpsertScorecard stores the latest scorecard for a source and period.
func (s *Store) UpsertScorecard(ctx context.Context, card monitor.QualityScorecard) error {
	recommendations, err := json.Marshal(card.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quality_scorecards
			(source_id, period, generated_at, availability, performance, freshness, quality, overall, trend, error_flags, warning_flags, recommendations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source_id, period) DO UPDATE SET
			generated_at = EXCLUDED.generated_at,
			availability = EXCLUDED.availability,
			performance = EXCLUDED.performance,
			freshness = EXCLUDED.freshness,
			quality = EXCLUDED.quality,
			overall = EXCLUDED.overall,
			trend = EXCLUDED.trend,
			error_flags = EXCLUDED.error_flags,
			warning_flags = EXCLUDED.warning_flags,
			recommendations = EXCLUDED.recommendations`,
		card.SourceID, string(card.Period), card.GeneratedAt,
		card.Availability, card.Performance, card.Freshness, card.Quality,
		card.Overall, string(card.Trend), card.ErrorFlags, card.WarningFlags,
		recommendations)
	if err != nil {
		return fmt.Errorf("failed to upsert scorecard: %w", err)
	}
	return nil
}

// CleanupRetention deletes call logs and resolved alerts past their retention
// windows. Returns the deleted row counts.
func (s *Store) CleanupRetention(ctx context.Context, logRetentionDays, alertRetentionDays int) (int64, int64, error) {
	logCutoff := time.Now().AddDate(0, 0, -logRetentionDays)
	alertCutoff := time.Now().AddDate(0, 0, -alertRetentionDays)

	logResult, err := s.db.ExecContext(ctx,
		`DELETE FROM api_call_logs WHERE called_at < $1`, logCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clean call logs: %w", err)
	}
	logsDeleted, _ := logResult.RowsAffected()

	alertResult, err := s.db.ExecContext(ctx,
		`DELETE FROM monitoring_alerts WHERE resolved_at IS NOT NULL AND triggered_at < $1`, alertCutoff)
	if err != nil {
		return logsDeleted, 0, fmt.Errorf("failed to clean alerts: %w", err)
	}
	alertsDeleted, _ := alertResult.RowsAffected()

	s.log.Info("retention cleanup completed",
		"call_logs_deleted", logsDeleted, "alerts_deleted", alertsDeleted)
	return logsDeleted, alertsDeleted, nil
}

func requireRowAffected(result sql.Result, alertID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("alert not found or already updated: %s", alertID)
	}
	return nil
}
