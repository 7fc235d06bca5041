package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openstrata/strata/pkg/graph"
)

// MemoryStore implements the Store interface with in-process maps. It backs
// tests and single-process deployments without a database file.
type MemoryStore struct {
	mu         sync.RWMutex
	items      map[string]*MetadataItem
	quarantine map[string]*QuarantineRecord
	runs       map[string]*graph.Run
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]*MetadataItem),
		quarantine: make(map[string]*QuarantineRecord),
		runs:       make(map[string]*graph.Run),
	}
}

// Init implements Store.
func (s *MemoryStore) Init(_ context.Context) error { return nil }

// Migrate implements Store.
func (s *MemoryStore) Migrate(_ context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// HealthCheck implements Store.
func (s *MemoryStore) HealthCheck(_ context.Context) error { return nil }

// GetItem retrieves a metadata item by name.
func (s *MemoryStore) GetItem(ctx context.Context, name string) (*MetadataItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[name]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", name, ErrNotFound)
	}
	copied := *item
	return &copied, nil
}

// PutItem writes a metadata item, replacing any existing record.
func (s *MemoryStore) PutItem(ctx context.Context, item *MetadataItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *item
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = time.Now()
	}
	s.items[copied.Name] = &copied
	return nil
}

// PutQuarantine appends a quarantine record.
func (s *MemoryStore) PutQuarantine(ctx context.Context, rec *QuarantineRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.quarantine[copied.ID] = &copied
	return nil
}

// GetQuarantine retrieves a quarantine record by ID.
func (s *MemoryStore) GetQuarantine(ctx context.Context, id string) (*QuarantineRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.quarantine[id]
	if !ok {
		return nil, fmt.Errorf("quarantine record %s: %w", id, ErrNotFound)
	}
	copied := *rec
	return &copied, nil
}

// ListQuarantine lists quarantine records, newest first.
func (s *MemoryStore) ListQuarantine(ctx context.Context, limit, offset int) ([]*QuarantineRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*QuarantineRecord, 0, len(s.quarantine))
	for _, rec := range s.quarantine {
		copied := *rec
		records = append(records, &copied)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FirstSeenAt.After(records[j].FirstSeenAt)
	})

	return paginate(records, limit, offset), nil
}

// DeleteQuarantine removes a quarantine record.
func (s *MemoryStore) DeleteQuarantine(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quarantine[id]; !ok {
		return fmt.Errorf("quarantine record %s: %w", id, ErrNotFound)
	}
	delete(s.quarantine, id)
	return nil
}

// SaveRun persists a run.
func (s *MemoryStore) SaveRun(ctx context.Context, run *graph.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	s.runs[copied.ID] = &copied
	return nil
}

// GetRun retrieves a run by ID.
func (s *MemoryStore) GetRun(ctx context.Context, id string) (*graph.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	copied := *run
	return &copied, nil
}

// ListRuns lists runs, newest first.
func (s *MemoryStore) ListRuns(ctx context.Context, limit, offset int) ([]*graph.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*graph.Run, 0, len(s.runs))
	for _, run := range s.runs {
		copied := *run
		runs = append(runs, &copied)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return paginate(runs, limit, offset), nil
}

// paginate applies limit/offset semantics to a sorted slice.
func paginate[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
