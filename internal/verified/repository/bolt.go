package repository

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	jsoniter "github.com/json-iterator/go"

	"relay-gate/internal/verified/domain"
)

// BucketVerifiedUsers is the bolt bucket holding verified users keyed by big-endian user id.
const BucketVerifiedUsers = "verified_users"

type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository returns a verified-users repository stored in db.
func NewBoltRepository(db *bolt.DB) *BoltRepository {
	return &BoltRepository{db: db}
}

func userKey(userID int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(userID))
	return k
}

func (r *BoltRepository) IsVerified(ctx context.Context, userID int64) (bool, error) {
	var found bool
	err := r.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(BucketVerifiedUsers))
		if bkt == nil {
			return nil
		}
		found = bkt.Get(userKey(userID)) != nil
		return nil
	})
	return found, err
}

// MarkVerified stores the record unless one already exists.
func (r *BoltRepository) MarkVerified(ctx context.Context, userID int64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(BucketVerifiedUsers))
		if err != nil {
			return err
		}
		k := userKey(userID)
		if bkt.Get(k) != nil {
			return nil
		}
		b, err := jsoniter.Marshal(&domain.VerifiedUser{UserID: userID, VerifiedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		return bkt.Put(k, b)
	})
}

func (r *BoltRepository) Revoke(ctx context.Context, userID int64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(BucketVerifiedUsers))
		if bkt == nil {
			return nil
		}
		return bkt.Delete(userKey(userID))
	})
}

func (r *BoltRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(BucketVerifiedUsers))
		if bkt == nil {
			return nil
		}
		n = bkt.Stats().KeyN
		return nil
	})
	return n, err
}

// Get returns the stored record for userID, or nil if absent.
func (r *BoltRepository) Get(ctx context.Context, userID int64) (*domain.VerifiedUser, error) {
	var out *domain.VerifiedUser
	err := r.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(BucketVerifiedUsers))
		if bkt == nil {
			return nil
		}
		b := bkt.Get(userKey(userID))
		if b == nil {
			return nil
		}
		var v domain.VerifiedUser
		if err := jsoniter.Unmarshal(b, &v); err != nil {
			return err
		}
		out = &v
		return nil
	})
	return out, err
}
