package api

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"msgboard/internal/api/handlers"
	"msgboard/internal/api/interfaces"
	"msgboard/internal/auth"
	"msgboard/internal/database"
	"msgboard/pkg/config"
	"msgboard/pkg/logger"
)

type fakeServices struct {
	log     *logger.Logger
	cfg     *config.Config
	manager *auth.Manager
	store   *memoryStore
	audit   *memoryAudit
	hub     *handlers.Hub
	pingErr error
}

func (f *fakeServices) GetLogger() *logger.Logger { return f.log }
func (f *fakeServices) GetConfig() *config.Config { return f.cfg }
func (f *fakeServices) SessionManager() interfaces.SessionManager { return f.manager }
func (f *fakeServices) MessageStore() interfaces.MessageStore { return f.store }
func (f *fakeServices) AuditLog() interfaces.AuditLog { return f.audit }
func (f *fakeServices) Feed() interfaces.MessageFeed { return f.hub }
func (f *fakeServices) Ping(ctx context.Context) error { return f.pingErr }

type memoryStore struct {
	mu       sync.Mutex
	messages []database.Message
	nextID   int64
}

func (s *memoryStore) Append(_ context.Context, text string, ts time.Time) (*database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m := database.Message{ID: s.nextID, Text: text, Timestamp: ts.UTC()}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *memoryStore) sorted(descending bool) []database.Message {
	out := append([]database.Message{}, s.messages...)
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (s *memoryStore) ListAll(_ context.Context, descending bool) ([]database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(descending), nil
}

func (s *memoryStore) ListBetween(_ context.Context, start, end time.Time) ([]database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []database.Message{}
	for _, m := range s.sorted(true) {
		if !m.Timestamp.Before(start) && !m.Timestamp.After(end) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memoryStore) Search(_ context.Context, term string) ([]database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []database.Message{}
	for _, m := range s.sorted(true) {
		if strings.Contains(strings.ToLower(m.Text), strings.ToLower(term)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memoryStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.messages)), nil
}

type memoryAudit struct {
	mu     sync.Mutex
	events []auth.AuditEvent
}

func (a *memoryAudit) Record(_ context.Context, ev auth.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func (a *memoryAudit) all() []auth.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auth.AuditEvent(nil), a.events...)
}

func (a *memoryAudit) GetAuditLogs(_ context.Context, action string, limit, offset int) ([]database.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []database.AuditLog
	for i := len(a.events) - 1; i >= 0; i-- {
		ev := a.events[i]
		if action != "" && ev.Action != action {
			continue
		}
		out = append(out, database.AuditLog{
			ID:        int64(i + 1),
			Action:    ev.Action,
			Username:  ev.Username,
			Outcome:   ev.Outcome,
			Details:   ev.Details,
			IPAddress: ev.ClientIP,
		})
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
