package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"msgboard/internal/auth"
	"msgboard/internal/database"
)

type AuditLogRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db, now: time.Now}
}

// InsertAuditLog inserts a new audit log entry
func (r *AuditLogRepository) InsertAuditLog(ctx context.Context, log *database.AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now()
	}
	log.CreatedAt = log.CreatedAt.UTC()

	query := `
        INSERT INTO audit_logs (action, username, outcome, details, ip_address, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	err := r.db.QueryRowContext(ctx, query, log.Action, log.Username, log.Outcome,
		log.Details, log.IPAddress, log.CreatedAt).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Record implements auth.AuditTrail.
func (r *AuditLogRepository) Record(ctx context.Context, ev auth.AuditEvent) error {
	return r.InsertAuditLog(ctx, &database.AuditLog{
		Action:    ev.Action,
		Username:  ev.Username,
		Outcome:   ev.Outcome,
		Details:   ev.Details,
		IPAddress: ev.ClientIP,
	})
}

// GetAuditLogs retrieves audit logs, newest first, optionally filtered by
// action.
func (r *AuditLogRepository) GetAuditLogs(ctx context.Context, action string, limit, offset int) ([]database.AuditLog, error) {
	query := `
        SELECT id, action, username, outcome, details, ip_address, created_at
        FROM audit_logs
    `
	args := []interface{}{}
	if action != "" {
		query += " WHERE action = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3"
		args = append(args, action, limit, offset)
	} else {
		query += " ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2"
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []database.AuditLog
	for rows.Next() {
		var log database.AuditLog
		var username, details, ip sql.NullString
		if err := rows.Scan(&log.ID, &log.Action, &username, &log.Outcome,
			&details, &ip, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		log.Username = username.String
		log.Details = details.String
		log.IPAddress = ip.String
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// CountFailedLogins counts failed login attempts for username since the given
// time.
func (r *AuditLogRepository) CountFailedLogins(ctx context.Context, username string, since time.Time) (int64, error) {
	query := `
        SELECT COUNT(*) FROM audit_logs
        WHERE action = $1 AND outcome = $2 AND username = $3 AND created_at >= $4
    `
	var n int64
	err := r.db.QueryRowContext(ctx, query, auth.ActionLogin, auth.OutcomeFailure, username, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed logins: %w", err)
	}
	return n, nil
}
