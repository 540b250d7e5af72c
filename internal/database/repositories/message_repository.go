package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"msgboard/internal/database"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores text with the given timestamp, normalised to UTC. A zero
// timestamp means now.
func (r *MessageRepository) Append(ctx context.Context, text string, timestamp time.Time) (*database.Message, error) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	msg := &database.Message{Text: text, Timestamp: timestamp.UTC()}

	query := `INSERT INTO messages (text, timestamp) VALUES ($1, $2) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, msg.Text, msg.Timestamp).Scan(&msg.ID); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	return msg, nil
}

// ListAll returns every message ordered by timestamp.
func (r *MessageRepository) ListAll(ctx context.Context, descending bool) ([]database.Message, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	query := `SELECT id, text, timestamp FROM messages ORDER BY timestamp ` + order + `, id ` + order
	return r.query(ctx, query)
}

// ListBetween returns messages with start <= timestamp <= end, newest first.
func (r *MessageRepository) ListBetween(ctx context.Context, start, end time.Time) ([]database.Message, error) {
	query := `
        SELECT id, text, timestamp
        FROM messages
        WHERE timestamp >= $1 AND timestamp <= $2
        ORDER BY timestamp DESC, id DESC
    `
	return r.query(ctx, query, start.UTC(), end.UTC())
}

// Search returns messages containing term, case-insensitively, newest first.
func (r *MessageRepository) Search(ctx context.Context, term string) ([]database.Message, error) {
	query := `
        SELECT id, text, timestamp
        FROM messages
        WHERE LOWER(text) LIKE $1 ESCAPE '\'
        ORDER BY timestamp DESC, id DESC
    `
	return r.query(ctx, query, "%"+escapeLike(strings.ToLower(term))+"%")
}

// Count returns the number of stored messages.
func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// SeedDemo inserts the demo messages when the table is empty. It reports
// whether anything was inserted.
func (r *MessageRepository) SeedDemo(ctx context.Context, now time.Time) (bool, error) {
	n, err := r.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	demo := []database.Message{
		{Text: "This is a demo message", Timestamp: now.Add(-1 * time.Minute)},
		{Text: "Welcome to HTMX + Go!", Timestamp: now.Add(-5 * time.Minute)},
		{Text: "Try adding your own message!", Timestamp: now.Add(-1 * time.Hour)},
	}
	for _, m := range demo {
		if _, err := r.Append(ctx, m.Text, m.Timestamp); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *MessageRepository) query(ctx context.Context, query string, args ...interface{}) ([]database.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []database.Message{}
	for rows.Next() {
		var msg database.Message
		if err := rows.Scan(&msg.ID, &msg.Text, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
