package fragstore

import (
	"context"
	"errors"
	"sync"

	"ChainVault/internal/storage"
	"ChainVault/internal/transport"
)

// Local is a transport whose nodes all live in one pebble database owned by the coordinator.
// Fragments survive restarts, so it is the durable single-process deployment.
type Local struct {
	db *storage.Storage

	mu     sync.Mutex
	stores map[string]*Store
}

// NewLocal creates a local transport over db.
func NewLocal(db *storage.Storage) *Local {
	return &Local{db: db, stores: make(map[string]*Store)}
}

// store returns the fragment store of node.
func (l *Local) store(node string) *Store {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stores[node]
	if !ok {
		s = NewScopedStore(l.db, node)
		l.stores[node] = s
	}

	return s
}

// Put stores data under hash on node.
func (l *Local) Put(ctx context.Context, node, hash string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &transport.NodeError{Op: "put", Node: node, Hash: hash, Err: err}
	}

	if err := l.store(node).Put(hash, data); err != nil {
		return &transport.NodeError{Op: "put", Node: node, Hash: hash, Err: localErr(err)}
	}

	return nil
}

// Get returns the fragment stored under hash on node.
func (l *Local) Get(ctx context.Context, node, hash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &transport.NodeError{Op: "get", Node: node, Hash: hash, Err: err}
	}

	data, err := l.store(node).Get(hash)
	if err != nil {
		return nil, &transport.NodeError{Op: "get", Node: node, Hash: hash, Err: localErr(err)}
	}

	return data, nil
}

// Remove deletes a fragment from node.
func (l *Local) Remove(ctx context.Context, node, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.store(node).Remove(hash); err != nil {
		return &transport.NodeError{Op: "remove", Node: node, Hash: hash, Err: err}
	}

	return nil
}

// Stats reports the fragments and bytes held for node.
func (l *Local) Stats(node string) (count int, bytes int64, err error) {
	return l.store(node).Stats()
}

// localErr maps store errors onto the transport sentinels.
func localErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return transport.ErrNotFound
	case errors.Is(err, ErrHashMismatch):
		return errors.Join(transport.ErrRejected, err)
	default:
		return err
	}
}
