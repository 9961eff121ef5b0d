package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	toggles   map[string]*domain.ToggleRecord   // key: id
	snapshots map[string]*domain.SwitchSnapshot // key: device
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		toggles:   make(map[string]*domain.ToggleRecord),
		snapshots: make(map[string]*domain.SwitchSnapshot),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return &Tx{store: s}, nil
}

// Tx is a no-op transaction for in-memory store.
type Tx struct {
	store *Store
}

func (t *Tx) Commit() error   { return nil }
func (t *Tx) Rollback() error { return nil }
func (t *Tx) Close() error    { return nil }
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, domain.ErrInvalidInput
}

// Forward all Tx methods to the underlying store
func (t *Tx) CreateToggleRecord(ctx context.Context, record *domain.ToggleRecord) error {
	return t.store.CreateToggleRecord(ctx, record)
}
func (t *Tx) GetToggleRecord(ctx context.Context, id string) (*domain.ToggleRecord, error) {
	return t.store.GetToggleRecord(ctx, id)
}
func (t *Tx) UpdateToggleRecord(ctx context.Context, record *domain.ToggleRecord) error {
	return t.store.UpdateToggleRecord(ctx, record)
}
func (t *Tx) ListToggleRecords(ctx context.Context, filter storage.ToggleFilter) ([]*domain.ToggleRecord, error) {
	return t.store.ListToggleRecords(ctx, filter)
}
func (t *Tx) UpsertSwitchSnapshot(ctx context.Context, snap *domain.SwitchSnapshot) error {
	return t.store.UpsertSwitchSnapshot(ctx, snap)
}
func (t *Tx) GetSwitchSnapshot(ctx context.Context, device string) (*domain.SwitchSnapshot, error) {
	return t.store.GetSwitchSnapshot(ctx, device)
}
func (t *Tx) ListSwitchSnapshots(ctx context.Context) ([]*domain.SwitchSnapshot, error) {
	return t.store.ListSwitchSnapshots(ctx)
}

// ============================================
// Toggle history
// ============================================

func (s *Store) CreateToggleRecord(ctx context.Context, record *domain.ToggleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.toggles[record.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *record
	s.toggles[record.ID] = &cp
	return nil
}

func (s *Store) GetToggleRecord(ctx context.Context, id string) (*domain.ToggleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.toggles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *Store) UpdateToggleRecord(ctx context.Context, record *domain.ToggleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.toggles[record.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Status = record.Status
	existing.Error = record.Error
	existing.CompletedAt = record.CompletedAt
	return nil
}

func (s *Store) ListToggleRecords(ctx context.Context, filter storage.ToggleFilter) ([]*domain.ToggleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*domain.ToggleRecord
	for _, r := range s.toggles {
		if filter.Device != "" && r.Device != filter.Device {
			continue
		}
		cp := *r
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	if filter.Offset >= len(records) {
		return []*domain.ToggleRecord{}, nil
	}
	records = records[filter.Offset:]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ============================================
// Switch snapshots
// ============================================

func (s *Store) UpsertSwitchSnapshot(ctx context.Context, snap *domain.SwitchSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.snapshots[snap.Device] = &cp
	return nil
}

func (s *Store) GetSwitchSnapshot(ctx context.Context, device string) (*domain.SwitchSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[device]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (s *Store) ListSwitchSnapshots(ctx context.Context) ([]*domain.SwitchSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := make([]*domain.SwitchSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		cp := *snap
		snaps = append(snaps, &cp)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Device < snaps[j].Device })
	return snaps, nil
}
