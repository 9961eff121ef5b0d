package storage

import (
	"context"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// DefaultHistoryLimit applies when a history query asks for no limit.
const DefaultHistoryLimit = 50

// ToggleFilter narrows a toggle history query.
type ToggleFilter struct {
	Device string // empty matches all devices
	Limit  int
	Offset int
}

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// BeginTx starts a new transaction.
	BeginTx(ctx context.Context) (Transaction, error)

	// Toggle history
	CreateToggleRecord(ctx context.Context, record *domain.ToggleRecord) error
	GetToggleRecord(ctx context.Context, id string) (*domain.ToggleRecord, error)
	UpdateToggleRecord(ctx context.Context, record *domain.ToggleRecord) error
	ListToggleRecords(ctx context.Context, filter ToggleFilter) ([]*domain.ToggleRecord, error)

	// Switch snapshots
	UpsertSwitchSnapshot(ctx context.Context, snap *domain.SwitchSnapshot) error
	GetSwitchSnapshot(ctx context.Context, device string) (*domain.SwitchSnapshot, error)
	ListSwitchSnapshots(ctx context.Context) ([]*domain.SwitchSnapshot, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}
