package db

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

// OpenBolt opens (creating if needed) the embedded bbolt file used when STORAGE_BACKEND=bolt.
func OpenBolt(path string) (*bolt.DB, error) {
	if path == "" {
		return nil, errors.New("db: BOLT_PATH is not set")
	}
	return bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
}
