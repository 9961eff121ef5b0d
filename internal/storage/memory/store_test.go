package memory

import (
	"testing"

	"github.com/bcnelson/opnsense-access-control/internal/storage"
	"github.com/bcnelson/opnsense-access-control/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return New()
	})
}
