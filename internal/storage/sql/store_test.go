package sql

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bcnelson/opnsense-access-control/internal/storage"
	"github.com/bcnelson/opnsense-access-control/internal/storage/storagetest"
)

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		store, err := New("sqlite3", filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New("nope", "whatever")
	require.Error(t, err)
}

func TestWrapUniqueError(t *testing.T) {
	require.Nil(t, wrapUniqueError(nil))
	require.False(t, isUniqueViolation(nil))
}
