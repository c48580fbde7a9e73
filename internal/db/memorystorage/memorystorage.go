// Package memorystorage keeps bookmarks in process memory only.
// It is the storage of last resort when neither a DSN nor a file is configured.
package memorystorage

import (
	"github.com/patric-chuzhbe/smartmark/internal/db/jsondb"
)

type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: jsondb.NewInMemory(),
	}, nil
}
