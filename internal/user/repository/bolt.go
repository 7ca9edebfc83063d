package repository

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"coliving-platform/backend/internal/user/domain"
)

var profilesBucket = []byte("profiles")

// BoltRepository keeps profiles in an embedded bbolt file, keyed by subject.
type BoltRepository struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltRepository ensures the bucket exists and returns the repository.
func NewBoltRepository(db *bolt.DB) (*BoltRepository, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(profilesBucket)
		return err
	}); err != nil {
		return nil, err
	}
	return &BoltRepository{db: db, now: time.Now}, nil
}

func (r *BoltRepository) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	var out *domain.Profile
	err := r.db.View(func(tx *bolt.Tx) error {
		p, err := getProfile(tx.Bucket(profilesBucket), id)
		out = p
		return err
	})
	return out, err
}

func (r *BoltRepository) Upsert(_ context.Context, p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(profilesBucket)
		existing, err := getProfile(b, p.ID)
		if err != nil {
			return err
		}
		now := r.now().UTC()
		p.UpdatedAt = now
		switch {
		case existing != nil:
			p.CreatedAt = existing.CreatedAt
			if p.LastLoginAt == nil {
				p.LastLoginAt = existing.LastLoginAt
			}
		case p.CreatedAt.IsZero():
			p.CreatedAt = now
		}
		return putProfile(b, p)
	})
}

func (r *BoltRepository) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(profilesBucket)
		p, err := getProfile(b, id)
		if err != nil || p == nil {
			return err
		}
		at = at.UTC()
		p.LastLoginAt = &at
		return putProfile(b, p)
	})
}

func getProfile(b *bolt.Bucket, id string) (*domain.Profile, error) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	var p domain.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func putProfile(b *bolt.Bucket, p *domain.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.Put([]byte(p.ID), raw)
}
