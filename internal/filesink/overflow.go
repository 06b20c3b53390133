package filesink

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var overflowBucket = []byte("pending_lines")

// overflowStore is a bbolt-backed durable queue for output.txt lines that
// could not be written because of a filesystem error. It exists so a
// transient disk hiccup doesn't silently drop discovered attributes; the
// run only shuts down (spec.md §7: code 2) once this queue itself grows
// past pending_write_limit, adapted from the teacher's reliability DLQ
// used for undeliverable RPC messages.
type overflowStore struct {
	db     *bbolt.DB
	seq    uint64
}

func openOverflowStore(path string) (*overflowStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("filesink: open overflow store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(overflowBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("filesink: init overflow bucket: %w", err)
	}

	return &overflowStore{db: db}, nil
}

// Push durably enqueues a line that failed to reach output.txt.
func (o *overflowStore) Push(line string) error {
	return o.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(overflowBucket)
		o.seq++
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, o.seq)
		return b.Put(key, []byte(line))
	})
}

// Count returns the number of lines still pending.
func (o *overflowStore) Count() (int, error) {
	n := 0
	err := o.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(overflowBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Drain removes and returns every pending line in insertion order, for a
// retry once the filesystem is healthy again.
func (o *overflowStore) Drain() ([]string, error) {
	var lines []string
	err := o.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(overflowBucket)
		c := b.Cursor()
		var keys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			lines = append(lines, string(v))
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return lines, err
}

func (o *overflowStore) Close() error {
	return o.db.Close()
}
