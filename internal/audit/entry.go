// Package audit keeps the append-only trail of successful mutating
// operations.
package audit

import (
	"context"
	"time"
)

// Entry is one audit record. Entries are never updated or deleted.
type Entry struct {
	ID            string         `json:"id"`
	ActorID       string         `json:"userId"`
	Action        string         `json:"action"`
	ResourceKind  string         `json:"resource"`
	ResourceID    string         `json:"resourceId,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	IPAddress     string         `json:"ipAddress,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	OccurredAt    time.Time      `json:"timestamp"`
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	ActorID      string
	ResourceKind string
	Action       string
	Offset       int
	Limit        int
}

// Store persists entries. ListAudit returns newest first together with the
// number of entries matching the filter before paging.
type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
	ListAudit(ctx context.Context, f Filter) ([]Entry, int, error)
}
