package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/openstrata/strata/pkg/graph"
)

// ErrNotFound is returned when a requested item does not exist.
var ErrNotFound = errors.New("not found")

// MetadataItem holds the attributes recorded for one ingested object,
// keyed by a unique name. Single writer per key is assumed; concurrent
// writes to the same key are the backing store's consistency problem.
type MetadataItem struct {
	// Name is the unique item key.
	Name string `json:"name"`

	// Size is the object size in bytes.
	Size int64 `json:"size"`

	// ContentType is the declared media type of the object.
	ContentType string `json:"contentType"`

	// LastModified is the object's last modification time.
	LastModified time.Time `json:"lastModified"`

	// UpdatedAt is when the item record was last written.
	UpdatedAt time.Time `json:"updatedAt"`
}

// MetadataStore is the capability interface consumed by the event router.
type MetadataStore interface {
	// GetItem retrieves an item by name. Returns ErrNotFound if absent.
	GetItem(ctx context.Context, name string) (*MetadataItem, error)

	// PutItem writes an item, replacing any existing record with the
	// same name.
	PutItem(ctx context.Context, item *MetadataItem) error
}

// QuarantineRecord is one poison event that exhausted its delivery-retry
// budget. Records are immutable once written; their lifecycle ends when an
// operator reprocesses or purges them.
type QuarantineRecord struct {
	// ID is the unique record identifier.
	ID string `json:"id"`

	// Payload is the original event payload.
	Payload json.RawMessage `json:"payload"`

	// Error is the original error that exhausted the budget.
	Error string `json:"error"`

	// AttemptCount is the number of delivery attempts made.
	AttemptCount int `json:"attemptCount"`

	// FirstSeenAt is when the event first failed.
	FirstSeenAt time.Time `json:"firstSeenAt"`
}

// QuarantineStore is the durable sink for events that exhausted their
// delivery-retry budget.
type QuarantineStore interface {
	// PutQuarantine appends a quarantine record.
	PutQuarantine(ctx context.Context, rec *QuarantineRecord) error

	// GetQuarantine retrieves a record by ID. Returns ErrNotFound if absent.
	GetQuarantine(ctx context.Context, id string) (*QuarantineRecord, error)

	// ListQuarantine lists records ordered by first-seen time, newest first.
	ListQuarantine(ctx context.Context, limit, offset int) ([]*QuarantineRecord, error)

	// DeleteQuarantine removes a record, ending its lifecycle.
	DeleteQuarantine(ctx context.Context, id string) error
}

// RunStore persists orchestrator runs for later inspection.
type RunStore interface {
	// SaveRun persists a completed run.
	SaveRun(ctx context.Context, run *graph.Run) error

	// GetRun retrieves a run by ID. Returns ErrNotFound if absent.
	GetRun(ctx context.Context, id string) (*graph.Run, error)

	// ListRuns lists runs ordered by start time, newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*graph.Run, error)
}

// Store is the full persistence interface.
type Store interface {
	MetadataStore
	QuarantineStore
	RunStore

	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// Utility
	HealthCheck(ctx context.Context) error
}
