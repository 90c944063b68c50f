// Package store persists stream records as a JSON state file so the
// configured streams survive restarts.
package store

import (
	"time"

	"streamgate/internal/resolver"
)

// Status is the lifecycle state of a stream. Only the stream manager
// mutates it.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)

// Record is the durable description of a stream. Process identity is
// not durable: no pid or handle is persisted, and reloaded records
// come back as stopped.
type Record struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	SourceURL   string        `json:"source_url"`
	ResolvedURL string        `json:"resolved_url,omitempty"`
	Kind        resolver.Kind `json:"kind"`
	Status      Status        `json:"status"`
	OutputDir   string        `json:"output_dir"`
	CreatedAt   time.Time     `json:"created_at"`

	// LastRefreshAt is when the resolved URL was last obtained.
	// Zero for direct sources.
	LastRefreshAt time.Time `json:"last_refresh_at,omitempty"`

	RestartCount int `json:"restart_count"`
}

// Store holds stream records and persists them on every mutation.
// Implementations are safe for concurrent use.
type Store interface {
	// Load reads persisted records. A missing file yields an empty
	// store; a corrupt file yields an empty store and an error so the
	// caller can report it.
	Load() error

	// Upsert inserts or replaces a record and persists.
	Upsert(rec Record) error

	// Remove deletes a record by ID and persists. Removing an unknown
	// ID is a no-op.
	Remove(id string) error

	// Get returns a record by ID.
	Get(id string) (Record, bool)

	// List returns all records in insertion order.
	List() []Record
}
