package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if driver == "sqlite3" {
		// A single connection serializes writers and keeps :memory: databases intact.
		db.SetMaxOpenConns(1)
	}

	// Run migrations
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ============================================
// Toggle history
// ============================================

const toggleColumns = `id, device, address, alias, intent, status, error, created_at, completed_at`

func createToggleRecord(ctx context.Context, db dbInterface, r *domain.ToggleRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO toggle_records (`+toggleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.Device, r.Address, r.Alias, r.Intent, r.Status, r.Error, r.CreatedAt, r.CompletedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateToggleRecord(ctx context.Context, r *domain.ToggleRecord) error {
	return createToggleRecord(ctx, s.db, r)
}

func (t *Tx) CreateToggleRecord(ctx context.Context, r *domain.ToggleRecord) error {
	return createToggleRecord(ctx, t.tx, r)
}

func getToggleRecord(ctx context.Context, db dbInterface, id string) (*domain.ToggleRecord, error) {
	var r domain.ToggleRecord
	err := db.GetContext(ctx, &r,
		`SELECT `+toggleColumns+` FROM toggle_records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetToggleRecord(ctx context.Context, id string) (*domain.ToggleRecord, error) {
	return getToggleRecord(ctx, s.db, id)
}

func (t *Tx) GetToggleRecord(ctx context.Context, id string) (*domain.ToggleRecord, error) {
	return getToggleRecord(ctx, t.tx, id)
}

func updateToggleRecord(ctx context.Context, db dbInterface, r *domain.ToggleRecord) error {
	result, err := db.ExecContext(ctx,
		`UPDATE toggle_records SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		r.Status, r.Error, r.CompletedAt, r.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateToggleRecord(ctx context.Context, r *domain.ToggleRecord) error {
	return updateToggleRecord(ctx, s.db, r)
}

func (t *Tx) UpdateToggleRecord(ctx context.Context, r *domain.ToggleRecord) error {
	return updateToggleRecord(ctx, t.tx, r)
}

func listToggleRecords(ctx context.Context, db dbInterface, filter storage.ToggleFilter) ([]*domain.ToggleRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	records := []*domain.ToggleRecord{}
	var err error
	if filter.Device != "" {
		err = db.SelectContext(ctx, &records,
			`SELECT `+toggleColumns+` FROM toggle_records WHERE device = $1
			 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, filter.Device, limit, offset)
	} else {
		err = db.SelectContext(ctx, &records,
			`SELECT `+toggleColumns+` FROM toggle_records
			 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListToggleRecords(ctx context.Context, filter storage.ToggleFilter) ([]*domain.ToggleRecord, error) {
	return listToggleRecords(ctx, s.db, filter)
}

func (t *Tx) ListToggleRecords(ctx context.Context, filter storage.ToggleFilter) ([]*domain.ToggleRecord, error) {
	return listToggleRecords(ctx, t.tx, filter)
}

// ============================================
// Switch snapshots
// ============================================

const snapshotColumns = `device, address, intended, confirmed, pending_reload, last_error, confirmed_at, updated_at`

func upsertSwitchSnapshot(ctx context.Context, db dbInterface, snap *domain.SwitchSnapshot) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO switch_snapshots (`+snapshotColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (device) DO UPDATE SET
		   address = excluded.address,
		   intended = excluded.intended,
		   confirmed = excluded.confirmed,
		   pending_reload = excluded.pending_reload,
		   last_error = excluded.last_error,
		   confirmed_at = excluded.confirmed_at,
		   updated_at = excluded.updated_at`,
		snap.Device, snap.Address, snap.Intended, snap.Confirmed, snap.PendingReload,
		snap.LastError, snap.ConfirmedAt, snap.UpdatedAt)
	return err
}

func (s *Store) UpsertSwitchSnapshot(ctx context.Context, snap *domain.SwitchSnapshot) error {
	return upsertSwitchSnapshot(ctx, s.db, snap)
}

func (t *Tx) UpsertSwitchSnapshot(ctx context.Context, snap *domain.SwitchSnapshot) error {
	return upsertSwitchSnapshot(ctx, t.tx, snap)
}

func getSwitchSnapshot(ctx context.Context, db dbInterface, device string) (*domain.SwitchSnapshot, error) {
	var snap domain.SwitchSnapshot
	err := db.GetContext(ctx, &snap,
		`SELECT `+snapshotColumns+` FROM switch_snapshots WHERE device = $1`, device)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) GetSwitchSnapshot(ctx context.Context, device string) (*domain.SwitchSnapshot, error) {
	return getSwitchSnapshot(ctx, s.db, device)
}

func (t *Tx) GetSwitchSnapshot(ctx context.Context, device string) (*domain.SwitchSnapshot, error) {
	return getSwitchSnapshot(ctx, t.tx, device)
}

func listSwitchSnapshots(ctx context.Context, db dbInterface) ([]*domain.SwitchSnapshot, error) {
	snaps := []*domain.SwitchSnapshot{}
	err := db.SelectContext(ctx, &snaps,
		`SELECT `+snapshotColumns+` FROM switch_snapshots ORDER BY device`)
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

func (s *Store) ListSwitchSnapshots(ctx context.Context) ([]*domain.SwitchSnapshot, error) {
	return listSwitchSnapshots(ctx, s.db)
}

func (t *Tx) ListSwitchSnapshots(ctx context.Context) ([]*domain.SwitchSnapshot, error) {
	return listSwitchSnapshots(ctx, t.tx)
}
