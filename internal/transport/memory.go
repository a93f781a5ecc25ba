package transport

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// Memory is an in-process transport holding each node's fragments in a map.
// Fault hooks let callers take nodes offline, corrupt data, add latency and fail puts.
type Memory struct {
	mu    sync.Mutex
	nodes map[string]*memNode
}

type memNode struct {
	frags    map[string][]byte
	offline  bool
	delay    time.Duration
	failPuts int
	gets     int
	puts     int
}

// NewMemory creates an empty in-memory transport.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[string]*memNode)}
}

// node returns the state for id, creating it on first use. Caller holds m.mu.
func (m *Memory) node(id string) *memNode {
	n, ok := m.nodes[id]
	if !ok {
		n = &memNode{frags: make(map[string][]byte)}
		m.nodes[id] = n
	}

	return n
}

// Put stores a copy of data under hash on node.
func (m *Memory) Put(ctx context.Context, node, hash string, data []byte) error {
	if err := m.wait(ctx, node); err != nil {
		return &NodeError{Op: "put", Node: node, Hash: hash, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(node)
	n.puts++

	if n.offline {
		return &NodeError{Op: "put", Node: node, Hash: hash, Err: ErrUnavailable}
	}

	if n.failPuts > 0 {
		n.failPuts--
		return &NodeError{Op: "put", Node: node, Hash: hash, Err: ErrUnavailable}
	}

	n.frags[hash] = bytes.Clone(data)

	return nil
}

// Get returns a copy of the fragment stored under hash on node.
func (m *Memory) Get(ctx context.Context, node, hash string) ([]byte, error) {
	if err := m.wait(ctx, node); err != nil {
		return nil, &NodeError{Op: "get", Node: node, Hash: hash, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(node)
	n.gets++

	if n.offline {
		return nil, &NodeError{Op: "get", Node: node, Hash: hash, Err: ErrUnavailable}
	}

	data, ok := n.frags[hash]
	if !ok {
		return nil, &NodeError{Op: "get", Node: node, Hash: hash, Err: ErrNotFound}
	}

	return bytes.Clone(data), nil
}

// Remove deletes a fragment. Missing fragments are not an error.
func (m *Memory) Remove(ctx context.Context, node, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.node(node)
	if n.offline {
		return &NodeError{Op: "remove", Node: node, Hash: hash, Err: ErrUnavailable}
	}

	delete(n.frags, hash)

	return nil
}

// wait sleeps for the node's configured delay or until ctx ends.
func (m *Memory) wait(ctx context.Context, node string) error {
	m.mu.Lock()
	delay := m.node(node).delay
	m.mu.Unlock()

	if delay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetOffline makes every operation on node fail with ErrUnavailable.
func (m *Memory) SetOffline(node string, offline bool) {
	m.mu.Lock()
	m.node(node).offline = offline
	m.mu.Unlock()
}

// SetDelay adds latency to every put and get on node.
func (m *Memory) SetDelay(node string, d time.Duration) {
	m.mu.Lock()
	m.node(node).delay = d
	m.mu.Unlock()
}

// FailPuts makes the next count puts on node fail.
func (m *Memory) FailPuts(node string, count int) {
	m.mu.Lock()
	m.node(node).failPuts = count
	m.mu.Unlock()
}

// Corrupt flips the lowest bit of the first byte of a stored fragment.
// It reports whether the fragment existed.
func (m *Memory) Corrupt(node, hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.node(node).frags[hash]
	if !ok || len(data) == 0 {
		return false
	}

	data[0] ^= 0x01

	return true
}

// Holds reports whether node stores hash.
func (m *Memory) Holds(node, hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.node(node).frags[hash]

	return ok
}

// Count returns the number of fragments stored on node.
func (m *Memory) Count(node string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.node(node).frags)
}

// Gets returns how many gets node has received.
func (m *Memory) Gets(node string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.node(node).gets
}

// Puts returns how many puts node has received.
func (m *Memory) Puts(node string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.node(node).puts
}
