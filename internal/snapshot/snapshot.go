// Package snapshot archives AccountsCopy batches in a Bolt file, one bucket
// per cycle, so a node can restore the account set it held at that cycle.
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/shardstate/internal/ir"
)

// ErrCycleNotFound is returned when no archive exists for a cycle.
var ErrCycleNotFound = errors.New("snapshot cycle not found")

// Archive is a Bolt-backed store of account copies keyed by cycle.
type Archive struct {
	db *bolt.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func cycleBucket(cycle uint64) []byte {
	name := make([]byte, 8)
	binary.BigEndian.PutUint64(name, cycle)
	return name
}

// Put replaces the archive for cycle with copies. Every copy's CycleNumber
// is set to cycle. Duplicate account ids fail the whole batch.
func (a *Archive) Put(cycle uint64, copies []ir.AccountsCopy) error {
	err := a.db.Update(func(tx *bolt.Tx) error {
		name := cycleBucket(cycle)
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}
		for _, c := range copies {
			if c.AccountID == "" {
				return errors.New("account copy with empty id")
			}
			key := []byte(c.AccountID)
			if bucket.Get(key) != nil {
				return fmt.Errorf("duplicate account %s", c.AccountID)
			}
			c.CycleNumber = cycle
			encoded, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("encode %s: %w", c.AccountID, err)
			}
			if err := bucket.Put(key, encoded); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put snapshot cycle %d: %w", cycle, err)
	}
	return nil
}

// Load returns the copies archived for cycle, ordered by account id.
func (a *Archive) Load(cycle uint64) ([]ir.AccountsCopy, error) {
	copies := []ir.AccountsCopy{}
	err := a.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(cycleBucket(cycle))
		if bucket == nil {
			return ErrCycleNotFound
		}
		return bucket.ForEach(func(k, v []byte) error {
			var c ir.AccountsCopy
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			copies = append(copies, c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot cycle %d: %w", cycle, err)
	}
	return copies, nil
}

// Cycles lists archived cycle numbers in ascending order.
func (a *Archive) Cycles() ([]uint64, error) {
	cycles := []uint64{}
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if len(name) != 8 {
				return nil
			}
			cycles = append(cycles, binary.BigEndian.Uint64(name))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshot cycles: %w", err)
	}
	return cycles, nil
}

// Delete removes the archive for cycle. Deleting a missing cycle is not an error.
func (a *Archive) Delete(cycle uint64) error {
	err := a.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(cycleBucket(cycle))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete snapshot cycle %d: %w", cycle, err)
	}
	return nil
}
