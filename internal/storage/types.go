package storage

import (
	"context"
	"errors"
	"time"

	"cronlens/internal/engine"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("schedule not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API for schedule definitions plus an append-only
// audit trail of mutations.
type Store interface {
	ListSchedules(ctx context.Context) ([]engine.Schedule, error)
	GetSchedule(ctx context.Context, id string) (engine.Schedule, error)
	// PutSchedule inserts or replaces a schedule by ID.
	PutSchedule(ctx context.Context, sc engine.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records a schedule mutation.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time `json:"at"`
	Action     string    `json:"action"` // "create" | "update" | "delete" | "seed"
	ScheduleID string    `json:"schedule_id"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	TookMS     int64     `json:"took_ms,omitempty"`
}
