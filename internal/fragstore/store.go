package fragstore

import (
	"errors"
	"fmt"

	"ChainVault/internal/codec"
	"ChainVault/internal/storage"
)

var (
	// ErrNotFound is returned for fragments this node does not hold.
	ErrNotFound = errors.New("fragment not found")

	// ErrHashMismatch is returned when put data does not hash to the declared hash.
	ErrHashMismatch = errors.New("fragment hash mismatch")
)

// prefixFragment is the key prefix of stored fragments.
const prefixFragment = "frag:"

// Store keeps the fragments held by one storage node.
type Store struct {
	db     *storage.Storage
	prefix string
}

// NewStore creates a fragment store over db.
func NewStore(db *storage.Storage) *Store {
	return &Store{db: db, prefix: prefixFragment}
}

// NewScopedStore creates the store of node inside a db shared by several nodes.
func NewScopedStore(db *storage.Storage, node string) *Store {
	return &Store{db: db, prefix: "node:" + node + "/" + prefixFragment}
}

func (s *Store) fragmentKey(hash string) []byte {
	return []byte(s.prefix + hash)
}

// Put stores data after checking it hashes to hash. Re-putting the same fragment is a no-op.
func (s *Store) Put(hash string, data []byte) error {
	if !codec.VerifyContent(hash, data) {
		return fmt.Errorf("%w: declared %s, got %s", ErrHashMismatch, hash, codec.ContentHash(data))
	}

	return s.db.Set(s.fragmentKey(hash), data)
}

// Get returns the fragment stored under hash.
// Bytes are returned as stored, so on-disk corruption reaches the caller's integrity check.
func (s *Store) Get(hash string) ([]byte, error) {
	data, err := s.db.Get(s.fragmentKey(hash))
	if err != nil {
		return nil, fmt.Errorf("read fragment %s:\n%w", hash, err)
	}

	if data == nil {
		return nil, ErrNotFound
	}

	return data, nil
}

// Remove deletes a fragment. Missing fragments are not an error.
func (s *Store) Remove(hash string) error {
	return s.db.Delete(s.fragmentKey(hash))
}

// Stats reports the number of fragments and bytes held.
func (s *Store) Stats() (count int, bytes int64, err error) {
	err = s.db.IteratePrefix([]byte(s.prefix), func(_, value []byte) error {
		count++
		bytes += int64(len(value))
		return nil
	})

	return count, bytes, err
}
