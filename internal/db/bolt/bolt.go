// Package bolt opens the embedded bolt database used when STORE_DRIVER=bolt.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

// Open opens (creating if needed) the bolt file at path. Caller must call Close when done.
func Open(path string) (*bolt.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	return db, nil
}

// Pinger reports whether the bolt file is still readable.
type Pinger struct {
	DB *bolt.DB
}

// PingContext opens and closes a read transaction.
func (p Pinger) PingContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.DB.View(func(tx *bolt.Tx) error { return nil })
}
