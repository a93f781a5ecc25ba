package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ChainVault/internal/keylock"
	"ChainVault/internal/storage"
)

var (
	// ErrNotFound is returned when a node or file is not registered.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when creating a node or file that is already registered.
	ErrExists = errors.New("already exists")
)

// Key prefixes.
const (
	prefixNode  = "n:"
	prefixFile  = "f:"
	prefixGrant = "g:"
)

// Ledger persists nodes, files and access grants on a key-value store.
// Read-modify-write operations are serialized per record.
type Ledger struct {
	db    *storage.Storage
	locks *keylock.Map
	now   func() time.Time
}

// New creates a ledger over db.
func New(db *storage.Storage) *Ledger {
	return &Ledger{
		db:    db,
		locks: keylock.New(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func nodeKey(id string) []byte {
	return []byte(prefixNode + id)
}

func fileKey(hash string) []byte {
	return []byte(prefixFile + hash)
}

func grantPrefix(hash string) string {
	return prefixGrant + hash + ":"
}

func grantKey(hash, grantee string) []byte {
	return []byte(grantPrefix(hash) + grantee)
}

// CreateNode stores a new node record.
func (l *Ledger) CreateNode(n StorageNode) error {
	key := nodeKey(n.Identity)

	unlock := l.locks.Lock(string(key))
	defer unlock()

	exists, err := l.db.Has(key)
	if err != nil {
		return fmt.Errorf("check node %s:\n%w", n.Identity, err)
	}

	if exists {
		return ErrExists
	}

	return l.put(key, n)
}

// Node returns a node record.
func (l *Ledger) Node(id string) (StorageNode, error) {
	var n StorageNode
	err := l.get(nodeKey(id), &n)

	return n, err
}

// Nodes returns every node ordered by identity.
func (l *Ledger) Nodes() ([]StorageNode, error) {
	var nodes []StorageNode

	err := l.db.IteratePrefix([]byte(prefixNode), func(_, value []byte) error {
		var n StorageNode
		if err := unmarshal(value, &n); err != nil {
			return err
		}

		nodes = append(nodes, n)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate nodes:\n%w", err)
	}

	return nodes, nil
}

// UpdateNode applies fn to a node record atomically and returns the stored result.
// If fn returns an error nothing is written.
func (l *Ledger) UpdateNode(id string, fn func(*StorageNode) error) (StorageNode, error) {
	key := nodeKey(id)

	unlock := l.locks.Lock(string(key))
	defer unlock()

	var n StorageNode
	if err := l.get(key, &n); err != nil {
		return StorageNode{}, err
	}

	if err := fn(&n); err != nil {
		return StorageNode{}, err
	}

	if err := l.put(key, n); err != nil {
		return StorageNode{}, err
	}

	return n, nil
}

// CreateFile registers a file record. Records are write-once.
func (l *Ledger) CreateFile(rec FileRecord) error {
	key := fileKey(rec.FileHash)

	unlock := l.locks.Lock(string(key))
	defer unlock()

	exists, err := l.db.Has(key)
	if err != nil {
		return fmt.Errorf("check file %s:\n%w", rec.FileHash, err)
	}

	if exists {
		return ErrExists
	}

	rec.Exists = true

	return l.put(key, rec)
}

// File returns a file record.
func (l *Ledger) File(hash string) (FileRecord, error) {
	var rec FileRecord
	err := l.get(fileKey(hash), &rec)

	return rec, err
}

// Files returns every file record ordered by hash.
func (l *Ledger) Files() ([]FileRecord, error) {
	var files []FileRecord

	err := l.db.IteratePrefix([]byte(prefixFile), func(_, value []byte) error {
		var rec FileRecord
		if err := unmarshal(value, &rec); err != nil {
			return err
		}

		files = append(files, rec)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate files:\n%w", err)
	}

	return files, nil
}

// SetGrant inserts or removes the grant of hash to grantee. Both directions are idempotent.
// The file lock is held so grant changes serialize with each other per file.
func (l *Ledger) SetGrant(hash, grantee string, present bool) error {
	fk := fileKey(hash)

	unlock := l.locks.Lock(string(fk))
	defer unlock()

	exists, err := l.db.Has(fk)
	if err != nil {
		return fmt.Errorf("check file %s:\n%w", hash, err)
	}

	if !exists {
		return ErrNotFound
	}

	key := grantKey(hash, grantee)

	if !present {
		return l.db.Delete(key)
	}

	has, err := l.db.Has(key)
	if err != nil || has {
		return err
	}

	return l.put(key, Grant{FileHash: hash, Grantee: grantee, GrantedAt: l.now()})
}

// HasGrant reports whether grantee holds a grant on hash.
func (l *Ledger) HasGrant(hash, grantee string) (bool, error) {
	return l.db.Has(grantKey(hash, grantee))
}

// Grantees returns the identities holding a grant on hash.
func (l *Ledger) Grantees(hash string) ([]string, error) {
	prefix := grantPrefix(hash)

	var out []string

	err := l.db.IteratePrefix([]byte(prefix), func(key, _ []byte) error {
		out = append(out, strings.TrimPrefix(string(key), prefix))
		return nil
	})

	return out, err
}

// GrantedTo returns the hashes of files on which grantee holds a grant.
func (l *Ledger) GrantedTo(grantee string) ([]string, error) {
	var out []string

	err := l.db.IteratePrefix([]byte(prefixGrant), func(key, _ []byte) error {
		hash, who, ok := strings.Cut(strings.TrimPrefix(string(key), prefixGrant), ":")
		if ok && who == grantee {
			out = append(out, hash)
		}

		return nil
	})

	return out, err
}

// get loads and decodes key into v, returning ErrNotFound if absent.
func (l *Ledger) get(key []byte, v any) error {
	data, err := l.db.Get(key)
	if err != nil {
		return fmt.Errorf("get %s:\n%w", key, err)
	}

	if data == nil {
		return ErrNotFound
	}

	if err := unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s:\n%w", key, err)
	}

	return nil
}

// put encodes v and stores it at key.
func (l *Ledger) put(key []byte, v any) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s:\n%w", key, err)
	}

	return l.db.Set(key, data)
}
