package interfaces

import (
	"context"
	"time"

	"msgboard/internal/api/models"
	"msgboard/internal/database"
	"msgboard/pkg/config"
	"msgboard/pkg/logger"
)

// Services defines the interface for API services
type Services interface {
	GetLogger() *logger.Logger
	GetConfig() *config.Config
	SessionManager() SessionManager
	MessageStore() MessageStore
	AuditLog() AuditLog
	Feed() MessageFeed
	Ping(ctx context.Context) error
}

// MessageStore persists and lists messages.
type MessageStore interface {
	Append(ctx context.Context, text string, timestamp time.Time) (*database.Message, error)
	ListAll(ctx context.Context, descending bool) ([]database.Message, error)
	ListBetween(ctx context.Context, start, end time.Time) ([]database.Message, error)
	Search(ctx context.Context, term string) ([]database.Message, error)
	Count(ctx context.Context) (int64, error)
}

// AuditLog reads the authentication audit trail.
type AuditLog interface {
	GetAuditLogs(ctx context.Context, action string, limit, offset int) ([]database.AuditLog, error)
}

// MessageFeed fans events out to live subscribers.
type MessageFeed interface {
	Publish(event models.FeedEvent)
	Subscribe() (<-chan models.FeedEvent, func())
}
