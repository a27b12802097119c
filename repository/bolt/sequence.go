package bolt

import (
	"fmt"

	bbolt "go.etcd.io/bbolt"

	"github.com/fastygo/sales/domain"
)

// sequenceCounter is the per-branch numbering state.
type sequenceCounter struct {
	LastNumber int64 `json:"last_number"`
	Version    int64 `json:"version"`
}

// readSequence is the optimistic read half of the allocator; it runs in its own
// read transaction so concurrent writers may claim the counter in between.
func (s *Store) readSequence(branchID string) (sequenceCounter, error) {
	var counter sequenceCounter
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketSequences), []byte(branchID), &counter)
		return err
	})
	return counter, err
}

// claimSequence is the conditional write half: it advances the counter only if
// nobody changed it since observed was read.
func claimSequence(tx *bbolt.Tx, branchID string, observed sequenceCounter) (int64, error) {
	bucket := tx.Bucket(bucketSequences)
	var current sequenceCounter
	if _, err := getJSON(bucket, []byte(branchID), &current); err != nil {
		return 0, err
	}
	if current.Version != observed.Version {
		return 0, domain.ErrConcurrencyConflict
	}

	next := sequenceCounter{
		LastNumber: observed.LastNumber + 1,
		Version:    observed.Version + 1,
	}
	if err := putJSON(bucket, []byte(branchID), next); err != nil {
		return 0, err
	}
	return next.LastNumber, nil
}

func saleNumberKey(branchID string, number int64) []byte {
	return []byte(fmt.Sprintf("%s\x00%020d", branchID, number))
}
