package repository

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"
)

var revokedBucket = []byte("revoked_tokens")

// BoltRepository keeps revoked ids in an embedded bbolt file; values are the RFC 3339 expiry.
type BoltRepository struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltRepository ensures the bucket exists and returns the repository.
func NewBoltRepository(db *bolt.DB) (*BoltRepository, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(revokedBucket)
		return err
	}); err != nil {
		return nil, err
	}
	return &BoltRepository{db: db, now: time.Now}, nil
}

func (r *BoltRepository) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" || !until.After(r.now()) {
		return nil
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(revokedBucket)
		if prev, ok := expiry(b.Get([]byte(tokenID))); ok && prev.After(until) {
			return nil
		}
		return b.Put([]byte(tokenID), []byte(until.UTC().Format(time.RFC3339Nano)))
	})
}

func (r *BoltRepository) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	var revoked bool
	err := r.db.View(func(tx *bolt.Tx) error {
		exp, ok := expiry(tx.Bucket(revokedBucket).Get([]byte(tokenID)))
		revoked = ok && exp.After(r.now())
		return nil
	})
	return revoked, err
}

func (r *BoltRepository) PurgeExpired(_ context.Context) (int, error) {
	now := r.now()
	var n int
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(revokedBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if exp, ok := expiry(v); !ok || !exp.After(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}

func expiry(raw []byte) (time.Time, bool) {
	if raw == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	return t, err == nil
}
