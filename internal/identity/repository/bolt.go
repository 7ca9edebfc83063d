package repository

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"coliving-platform/backend/internal/identity/domain"
)

var credentialsBucket = []byte("local_identities")

// BoltRepository keeps credentials in an embedded bbolt file, keyed by email.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository ensures the bucket exists and returns the repository.
func NewBoltRepository(db *bolt.DB) (*BoltRepository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BoltRepository{db: db}, nil
}

func (r *BoltRepository) GetByEmail(_ context.Context, email string) (*domain.Credential, error) {
	var out *domain.Credential
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(credentialsBucket).Get([]byte(email))
		if raw == nil {
			return nil
		}
		var c domain.Credential
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *BoltRepository) Create(_ context.Context, c *domain.Credential) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		if b.Get([]byte(c.Email)) != nil {
			return ErrDuplicate
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return b.Put([]byte(c.Email), raw)
	})
}

func (r *BoltRepository) SetEmailVerified(_ context.Context, email string, verified bool) error {
	return r.update(email, func(c *domain.Credential) { c.EmailVerified = verified })
}

func (r *BoltRepository) UpdatePasswordHash(_ context.Context, email, passwordHash string) error {
	return r.update(email, func(c *domain.Credential) { c.PasswordHash = passwordHash })
}

func (r *BoltRepository) update(email string, fn func(*domain.Credential)) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		raw := b.Get([]byte(email))
		if raw == nil {
			return ErrNotFound
		}
		var c domain.Credential
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		fn(&c)
		c.UpdatedAt = time.Now().UTC()
		next, err := json.Marshal(&c)
		if err != nil {
			return err
		}
		return b.Put([]byte(email), next)
	})
}
