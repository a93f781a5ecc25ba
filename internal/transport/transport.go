package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a node does not hold the requested fragment.
	ErrNotFound = errors.New("fragment not found")

	// ErrRejected is returned when a node refuses a fragment whose bytes do not match its hash.
	ErrRejected = errors.New("fragment rejected")

	// ErrUnavailable is returned when a node cannot be reached.
	ErrUnavailable = errors.New("node unavailable")
)

// Transport moves fragments to and from storage nodes.
// Implementations must honor ctx cancellation and deadlines.
type Transport interface {
	Put(ctx context.Context, node, hash string, data []byte) error
	Get(ctx context.Context, node, hash string) ([]byte, error)
}

// Remover is implemented by transports that can delete fragments.
type Remover interface {
	Remove(ctx context.Context, node, hash string) error
}

// NodeError attributes a transport failure to a node.
type NodeError struct {
	Op   string // Op is put, get or remove
	Node string // Node is the remote identity
	Hash string // Hash is the fragment hash
	Err  error  // Err is the cause
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s fragment %s on %s: %v", e.Op, e.Hash, e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
