package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrew/mentor-gateway/internal/database/models"
)

// ErrAlertNotFound is returned when acknowledging an alert that does not exist
var ErrAlertNotFound = errors.New("quota alert not found")

// CreateQuotaAlert records a fired quota threshold
func (db *DB) CreateQuotaAlert(ctx context.Context, alert *models.QuotaAlert) error {
	query := `
		INSERT INTO quota_alerts (provider, threshold, percent_used, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	alert.CreatedAt = alert.CreatedAt.UTC()

	result, err := db.conn.ExecContext(ctx, query,
		alert.Provider,
		alert.Threshold,
		alert.PercentUsed,
		alert.Acknowledged,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quota alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	alert.ID = id

	return nil
}

// ListQuotaAlerts returns alerts newest first; unacknowledgedOnly filters acknowledged ones out
func (db *DB) ListQuotaAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]models.QuotaAlert, error) {
	query := `
		SELECT id, provider, threshold, percent_used, acknowledged, created_at
		FROM quota_alerts
	`
	if unacknowledgedOnly {
		query += " WHERE acknowledged = 0"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query quota alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.QuotaAlert{}
	for rows.Next() {
		var alert models.QuotaAlert
		err := rows.Scan(
			&alert.ID,
			&alert.Provider,
			&alert.Threshold,
			&alert.PercentUsed,
			&alert.Acknowledged,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quota alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quota alerts: %w", err)
	}

	return alerts, nil
}

// AcknowledgeQuotaAlert marks an alert as acknowledged
func (db *DB) AcknowledgeQuotaAlert(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `UPDATE quota_alerts SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge quota alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrAlertNotFound
	}
	return nil
}
