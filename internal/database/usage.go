package database

import (
	"context"
	"fmt"
	"time"

	"github.com/andrew/mentor-gateway/internal/database/models"
)

// CreateUsageLog inserts a new usage log entry
func (db *DB) CreateUsageLog(ctx context.Context, log *models.UsageLog) error {
	query := `
		INSERT INTO usage_logs (
			request_id, timestamp, provider, model, endpoint,
			tokens, latency_ms, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}
	log.Timestamp = log.Timestamp.UTC()

	result, err := db.conn.ExecContext(ctx,
		query,
		log.RequestID,
		log.Timestamp,
		log.Provider,
		log.Model,
		log.Endpoint,
		log.Tokens,
		log.LatencyMs,
		log.Success,
		log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	log.ID = id

	return nil
}

// GetUsageLogs retrieves usage logs with optional provider and time filters
func (db *DB) GetUsageLogs(ctx context.Context, provider string, limit, offset int, since *time.Time) ([]models.UsageLog, error) {
	query := `
		SELECT id, request_id, timestamp, provider, model, endpoint,
			   tokens, latency_ms, success, error_message
		FROM usage_logs
		WHERE 1 = 1
	`
	var args []any

	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	if since != nil {
		query += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage logs: %w", err)
	}
	defer rows.Close()

	var logs []models.UsageLog
	for rows.Next() {
		var log models.UsageLog
		err := rows.Scan(
			&log.ID,
			&log.RequestID,
			&log.Timestamp,
			&log.Provider,
			&log.Model,
			&log.Endpoint,
			&log.Tokens,
			&log.LatencyMs,
			&log.Success,
			&log.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage logs: %w", err)
	}

	return logs, nil
}

// TokensUsedSince sums successful tokens per provider since the given time
func (db *DB) TokensUsedSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	query := `
		SELECT provider, COALESCE(SUM(tokens), 0)
		FROM usage_logs
		WHERE success = 1 AND timestamp >= ?
		GROUP BY provider
	`
	rows, err := db.conn.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query token usage: %w", err)
	}
	defer rows.Close()

	used := make(map[string]int64)
	for rows.Next() {
		var provider string
		var tokens int64
		if err := rows.Scan(&provider, &tokens); err != nil {
			return nil, fmt.Errorf("failed to scan token usage: %w", err)
		}
		used[provider] = tokens
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token usage: %w", err)
	}

	return used, nil
}

// GetUsageStats calculates aggregated usage statistics
func (db *DB) GetUsageStats(ctx context.Context, since *time.Time) (*models.UsageStats, error) {
	where := ""
	var args []any
	if since != nil {
		where = " WHERE timestamp >= ?"
		args = append(args, since.UTC())
	}

	stats := models.UsageStats{
		ByProvider: []models.ProviderUsage{},
		ByEndpoint: make(map[string]int),
	}

	// Get breakdown by provider
	providerQuery := `
		SELECT
			provider,
			COUNT(*),
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
			COALESCE(SUM(tokens), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM usage_logs` + where + `
		GROUP BY provider
		ORDER BY provider
	`
	rows, err := db.conn.QueryContext(ctx, providerQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get provider stats: %w", err)
	}

	// The pool holds a single connection, so rows must be closed before the next query
	for rows.Next() {
		var pu models.ProviderUsage
		if err := rows.Scan(&pu.Provider, &pu.Requests, &pu.Failures, &pu.Tokens, &pu.AvgLatencyMs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan provider stats: %w", err)
		}
		if pu.Requests > 0 {
			pu.SuccessRate = float64(pu.Requests-pu.Failures) / float64(pu.Requests) * 100
		}
		stats.TotalRequests += pu.Requests
		stats.TotalTokens += pu.Tokens
		stats.ByProvider = append(stats.ByProvider, pu)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider stats: %w", err)
	}

	// Get breakdown by endpoint
	endpointQuery := `
		SELECT endpoint, COUNT(*)
		FROM usage_logs` + where + `
		GROUP BY endpoint
	`
	endpointRows, err := db.conn.QueryContext(ctx, endpointQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint stats: %w", err)
	}
	defer endpointRows.Close()

	for endpointRows.Next() {
		var endpoint string
		var count int
		if err := endpointRows.Scan(&endpoint, &count); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint stats: %w", err)
		}
		stats.ByEndpoint[endpoint] = count
	}

	return &stats, endpointRows.Err()
}
