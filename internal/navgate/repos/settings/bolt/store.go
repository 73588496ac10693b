// Package bolt is a bbolt-backed settings backend, used as the local tier.
package bolt

import (
	"context"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/navgate/internal/navgate/repos/settings"
)

var bucketSettings = []byte("settings")

// boltStore implements settings.Backend using one bbolt bucket.
type boltStore struct {
	db   *bbolt.DB
	path string
}

// New opens (or creates) a Bolt database at path and ensures the bucket exists.
func New(path string) (settings.Backend, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, path: path}, nil
}

func (s *boltStore) Name() string { return "bolt" }

func (s *boltStore) Get(_ context.Context, keys []string) (settings.Record, error) {
	out := settings.Record{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if b == nil {
			return nil
		}
		for _, k := range keys {
			// values are only valid for the life of the transaction
			if v := b.Get([]byte(k)); v != nil {
				out[k] = append([]byte(nil), v...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", settings.ErrBackendUnavailable, err)
	}
	return out, nil
}

func (s *boltStore) Set(_ context.Context, rec settings.Record) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		for k, v := range rec {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", settings.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *boltStore) Close() error { return s.db.Close() }
