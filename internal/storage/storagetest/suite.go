// Package storagetest holds behavior tests shared by every storage.Storage implementation.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
	"github.com/bcnelson/opnsense-access-control/internal/storage"
)

// Run exercises store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Run("ToggleRecords", func(t *testing.T) { testToggleRecords(t, newStore(t)) })
	t.Run("ToggleHistoryPaging", func(t *testing.T) { testToggleHistoryPaging(t, newStore(t)) })
	t.Run("SwitchSnapshots", func(t *testing.T) { testSwitchSnapshots(t, newStore(t)) })
	t.Run("Transaction", func(t *testing.T) { testTransaction(t, newStore(t)) })
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id, device string, at time.Time) *domain.ToggleRecord {
	return &domain.ToggleRecord{
		ID:        id,
		Device:    device,
		Address:   "192.168.1.10",
		Alias:     "Blocked",
		Intent:    domain.Block.String(),
		Status:    domain.ToggleStatusPending,
		CreatedAt: at,
	}
}

func testToggleRecords(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	r := record("rec-1", "laptop", base)
	require.NoError(t, s.CreateToggleRecord(ctx, r))
	assert.ErrorIs(t, s.CreateToggleRecord(ctx, r), domain.ErrAlreadyExists)

	got, err := s.GetToggleRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "laptop", got.Device)
	assert.Equal(t, domain.ToggleStatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, base.Equal(got.CreatedAt))

	done := base.Add(2 * time.Second)
	r.Status = domain.ToggleStatusReloadFailed
	r.Error = "reload: appliance returned 503"
	r.CompletedAt = &done
	require.NoError(t, s.UpdateToggleRecord(ctx, r))

	got, err = s.GetToggleRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ToggleStatusReloadFailed, got.Status)
	assert.Equal(t, r.Error, got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))

	_, err = s.GetToggleRecord(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.UpdateToggleRecord(ctx, record("missing", "x", base)), domain.ErrNotFound)
}

func testToggleHistoryPaging(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		device := "laptop"
		if i%2 == 1 {
			device = "tv"
		}
		require.NoError(t, s.CreateToggleRecord(ctx, record(fmt.Sprintf("rec-%d", i), device, base.Add(time.Duration(i)*time.Minute))))
	}

	all, err := s.ListToggleRecords(ctx, storage.ToggleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "rec-4", all[0].ID, "newest first")
	assert.Equal(t, "rec-0", all[4].ID)

	page, err := s.ListToggleRecords(ctx, storage.ToggleFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "rec-3", page[0].ID)
	assert.Equal(t, "rec-2", page[1].ID)

	tv, err := s.ListToggleRecords(ctx, storage.ToggleFilter{Device: "tv"})
	require.NoError(t, err)
	require.Len(t, tv, 2)
	assert.Equal(t, "rec-3", tv[0].ID)

	empty, err := s.ListToggleRecords(ctx, storage.ToggleFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testSwitchSnapshots(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.GetSwitchSnapshot(ctx, "laptop")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	snap := &domain.SwitchSnapshot{
		Device:        "laptop",
		Address:       "192.168.1.10",
		Intended:      "off",
		Confirmed:     "on",
		PendingReload: true,
		LastError:     "reload failed",
		UpdatedAt:     base,
	}
	require.NoError(t, s.UpsertSwitchSnapshot(ctx, snap))

	got, err := s.GetSwitchSnapshot(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, "off", got.Intended)
	assert.True(t, got.PendingReload)
	assert.Nil(t, got.ConfirmedAt)

	confirmed := base.Add(time.Minute)
	snap.Confirmed = "off"
	snap.PendingReload = false
	snap.LastError = ""
	snap.ConfirmedAt = &confirmed
	snap.UpdatedAt = confirmed
	require.NoError(t, s.UpsertSwitchSnapshot(ctx, snap))
	require.NoError(t, s.UpsertSwitchSnapshot(ctx, &domain.SwitchSnapshot{
		Device: "alpha", Address: "192.168.1.2", Intended: "on", Confirmed: "on", UpdatedAt: base,
	}))

	snaps, err := s.ListSwitchSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "alpha", snaps[0].Device)
	assert.Equal(t, "laptop", snaps[1].Device)
	assert.Equal(t, "off", snaps[1].Confirmed)
	assert.False(t, snaps[1].PendingReload)
	require.NotNil(t, snaps[1].ConfirmedAt)
	assert.True(t, confirmed.Equal(*snaps[1].ConfirmedAt))
}

func testTransaction(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateToggleRecord(ctx, record("tx-1", "laptop", base)))
	require.NoError(t, tx.UpsertSwitchSnapshot(ctx, &domain.SwitchSnapshot{
		Device: "laptop", Address: "192.168.1.10", Intended: "off", Confirmed: "off", UpdatedAt: base,
	}))
	require.NoError(t, tx.Commit())

	_, err = s.GetToggleRecord(ctx, "tx-1")
	assert.NoError(t, err)
	_, err = s.GetSwitchSnapshot(ctx, "laptop")
	assert.NoError(t, err)

	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
}
