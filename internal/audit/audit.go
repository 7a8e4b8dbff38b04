// Package audit records changes made to sources through the API.
package audit

import (
	"context"
	"time"
)

// AuditEvent represents a single auditable action in the system.
type AuditEvent struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Actor        string    `json:"actor"`
	ActorType    string    `json:"actor_type"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	ResourceName string    `json:"resource_name,omitempty"`
	Changes      *Changes  `json:"changes,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	StatusCode   int       `json:"status_code"`
}

// Changes captures the before and after state for update operations.
// Secrets never appear here.
type Changes struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// ListOptions provides filtering and pagination options for listing audit events.
type ListOptions struct {
	Limit        int
	Offset       int
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Since        *time.Time
}

// AuditLogger defines the interface for audit logging operations.
type AuditLogger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *AuditEvent) error

	// List retrieves audit events with optional filtering, newest first.
	List(ctx context.Context, opts ListOptions) ([]*AuditEvent, int, error)
}

// Valid actions for audit events.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionSetIcon    = "set_icon"
	ActionSetIconURL = "set_icon_url"
)

// ResourceSource is the only resource type the API audits.
const ResourceSource = "source"

// Valid actor types.
const (
	ActorTypeToken     = "token"
	ActorTypeAnonymous = "anonymous"
)
