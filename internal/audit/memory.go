package audit

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEvents is the default maximum number of events to store.
const DefaultMaxEvents = 10000

// MemoryAuditLogger is an in-memory implementation of AuditLogger.
// It stores events newest first and keeps at most maxEvents.
type MemoryAuditLogger struct {
	mu        sync.RWMutex
	events    []*AuditEvent
	maxEvents int
}

var _ AuditLogger = (*MemoryAuditLogger)(nil)

// MemoryAuditLoggerOption configures a MemoryAuditLogger.
type MemoryAuditLoggerOption func(*MemoryAuditLogger)

// WithMaxEvents sets the maximum number of events to store.
func WithMaxEvents(max int) MemoryAuditLoggerOption {
	return func(m *MemoryAuditLogger) {
		if max > 0 {
			m.maxEvents = max
		}
	}
}

// NewMemoryAuditLogger creates a new in-memory audit logger.
func NewMemoryAuditLogger(opts ...MemoryAuditLoggerOption) *MemoryAuditLogger {
	m := &MemoryAuditLogger{maxEvents: DefaultMaxEvents}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Log records an audit event.
func (m *MemoryAuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	if event == nil {
		return nil
	}
	stored := copyEvent(event)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append([]*AuditEvent{stored}, m.events...)
	if len(m.events) > m.maxEvents {
		m.events = m.events[:m.maxEvents]
	}
	return nil
}

// List retrieves audit events with optional filtering.
// Returns the filtered events, total count, and any error.
func (m *MemoryAuditLogger) List(ctx context.Context, opts ListOptions) ([]*AuditEvent, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []*AuditEvent
	for _, e := range m.events {
		if matchesFilters(e, opts) {
			filtered = append(filtered, e)
		}
	}
	total := len(filtered)

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	start := min(max(opts.Offset, 0), len(filtered))
	end := min(start+opts.Limit, len(filtered))

	out := make([]*AuditEvent, 0, end-start)
	for _, e := range filtered[start:end] {
		out = append(out, copyEvent(e))
	}
	return out, total, nil
}

func matchesFilters(e *AuditEvent, opts ListOptions) bool {
	if opts.Actor != "" && e.Actor != opts.Actor {
		return false
	}
	if opts.Action != "" && e.Action != opts.Action {
		return false
	}
	if opts.ResourceType != "" && e.ResourceType != opts.ResourceType {
		return false
	}
	if opts.ResourceID != "" && e.ResourceID != opts.ResourceID {
		return false
	}
	if opts.Since != nil && e.Timestamp.Before(*opts.Since) {
		return false
	}
	return true
}

func copyEvent(e *AuditEvent) *AuditEvent {
	cpy := *e
	if e.Changes != nil {
		cpy.Changes = &Changes{Before: maps.Clone(e.Changes.Before), After: maps.Clone(e.Changes.After)}
	}
	return &cpy
}
