package database

import (
	"database/sql"
	"fmt"
)

// RunMigrations creates the tables for the given database type. Every
// statement is idempotent.
func RunMigrations(db *sql.DB, dbType string) error {
	var migrations []string
	switch dbType {
	case "sqlite":
		migrations = []string{createMessagesTableSQLite, createAuditLogsTableSQLite, createIndices}
	case "postgres":
		migrations = []string{createMessagesTablePostgres, createAuditLogsTablePostgres, createIndices}
	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

const createMessagesTableSQLite = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);`

const createAuditLogsTableSQLite = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action VARCHAR(50) NOT NULL,
    username VARCHAR(255),
    outcome VARCHAR(20) NOT NULL,
    details TEXT,
    ip_address VARCHAR(45),
    created_at TIMESTAMP NOT NULL
);`

const createMessagesTablePostgres = `
CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    text TEXT NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL
);`

const createAuditLogsTablePostgres = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id BIGSERIAL PRIMARY KEY,
    action VARCHAR(50) NOT NULL,
    username VARCHAR(255),
    outcome VARCHAR(20) NOT NULL,
    details TEXT,
    ip_address VARCHAR(45),
    created_at TIMESTAMPTZ NOT NULL
);`

const createIndices = `
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_composite ON audit_logs(action, created_at);
`
