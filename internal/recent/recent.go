// Package recent remembers the rooms an agent has joined, most recent
// first, in a bbolt file.
package recent

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("rooms")

// ErrEmpty is returned by Latest when no room has been recorded.
var ErrEmpty = errors.New("recent: no rooms recorded")

// Store is a bounded most-recently-used list of room ids.
type Store struct {
	db    *bolt.DB
	limit int
}

// Open opens or creates the database at path, keeping at most limit
// rooms (limit <= 0 means 20).
func Open(path string, limit int) (*Store, error) {
	if limit <= 0 {
		limit = 20
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open recent rooms %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, limit: limit}, nil
}

// Touch marks roomID as the most recently used room and evicts the
// oldest entries past the limit.
func (s *Store) Touch(roomID string) error {
	if roomID == "" {
		return errors.New("recent: empty room id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], seq)
		if err := b.Put([]byte(roomID), v[:]); err != nil {
			return err
		}

		entries := collect(b)
		for _, e := range entries[min(len(entries), s.limit):] {
			if err := b.Delete([]byte(e.id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns room ids, most recent first.
func (s *Store) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, e := range collect(tx.Bucket(bucket)) {
			ids = append(ids, e.id)
		}
		return nil
	})
	return ids, err
}

// Latest returns the most recently touched room.
func (s *Store) Latest() (string, error) {
	ids, err := s.List()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrEmpty
	}
	return ids[0], nil
}

func (s *Store) Close() error { return s.db.Close() }

type entry struct {
	id  string
	seq uint64
}

func collect(b *bolt.Bucket) []entry {
	var out []entry
	_ = b.ForEach(func(k, v []byte) error {
		if len(v) == 8 {
			out = append(out, entry{id: string(k), seq: binary.BigEndian.Uint64(v)})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}
