package bolt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var (
	bucketSales       = []byte("sales")
	bucketSaleNumbers = []byte("sale_numbers")
	bucketSequences   = []byte("sale_sequences")
	bucketOutbox      = []byte("outbox")
	bucketOutboxKeys  = []byte("outbox_keys")
	bucketIdempotency = []byte("idempotency")
)

var allBuckets = [][]byte{
	bucketSales,
	bucketSaleNumbers,
	bucketSequences,
	bucketOutbox,
	bucketOutboxKeys,
	bucketIdempotency,
}

// Store wraps a BoltDB file holding sales, their sequence counters, the outbox log
// and idempotency keys. Every write is a single bolt transaction.
type Store struct {
	db  *bbolt.DB
	now func() time.Time

	// afterSequenceRead runs between the optimistic read of a sequence counter and
	// the write transaction that claims it.
	afterSequenceRead func()
}

// Open initializes the BoltDB file and ensures every bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *Store) Ping() error {
	if s == nil || s.db == nil {
		return bbolt.ErrDatabaseNotOpen
	}
	return s.db.View(func(tx *bbolt.Tx) error { return nil })
}

// Stats exposes Bolt statistics for monitoring endpoints.
func (s *Store) Stats() bbolt.Stats {
	if s == nil || s.db == nil {
		return bbolt.Stats{}
	}
	return s.db.Stats()
}

func (s *Store) open() error {
	if s == nil || s.db == nil {
		return bbolt.ErrDatabaseNotOpen
	}
	return nil
}

func getJSON(b *bbolt.Bucket, key []byte, dst interface{}) (bool, error) {
	raw := b.Get(key)
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func putJSON(b *bbolt.Bucket, key []byte, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return b.Put(key, payload)
}
