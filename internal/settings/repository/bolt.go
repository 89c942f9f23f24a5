package repository

import (
	"context"

	"github.com/boltdb/bolt"
	jsoniter "github.com/json-iterator/go"

	"relay-gate/internal/settings/domain"
)

// BucketSettings is the bolt bucket holding settings keyed by name.
const BucketSettings = "settings"

type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository returns a settings repository stored in db.
func NewBoltRepository(db *bolt.DB) *BoltRepository {
	return &BoltRepository{db: db}
}

func (r *BoltRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var s domain.Setting
	var found bool
	err := r.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(BucketSettings))
		if bkt == nil {
			return nil
		}
		b := bkt.Get([]byte(key))
		if b == nil {
			return nil
		}
		found = true
		return jsoniter.Unmarshal(b, &s)
	})
	if err != nil || !found || s.Value == nil {
		return "", false, err
	}
	return *s.Value, true, nil
}

func (r *BoltRepository) Set(ctx context.Context, key, value string) error {
	b, err := jsoniter.Marshal(&domain.Setting{Key: key, Value: &value})
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(BucketSettings))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), b)
	})
}

// Seed stores key with a NULL value unless the key already exists.
func (r *BoltRepository) Seed(ctx context.Context, key string) error {
	b, err := jsoniter.Marshal(&domain.Setting{Key: key})
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(BucketSettings))
		if err != nil {
			return err
		}
		if bkt.Get([]byte(key)) != nil {
			return nil
		}
		return bkt.Put([]byte(key), b)
	})
}
