package transport

import (
	"context"
	"fmt"

	"ChainVault/internal/network"
)

// QUIC reaches storage nodes over the network package. Node identities are dial addresses.
type QUIC struct {
	node *network.Node
}

// NewQUIC creates a transport dialing through node.
func NewQUIC(node *network.Node) *QUIC {
	return &QUIC{node: node}
}

// Put sends a fragment to a storage node.
func (q *QUIC) Put(ctx context.Context, node, hash string, data []byte) error {
	_, err := q.do(ctx, node, &Request{Op: OpPut, Hash: hash, Data: data})
	return err
}

// Get fetches a fragment from a storage node.
func (q *QUIC) Get(ctx context.Context, node, hash string) ([]byte, error) {
	return q.do(ctx, node, &Request{Op: OpGet, Hash: hash})
}

// Remove deletes a fragment from a storage node.
func (q *QUIC) Remove(ctx context.Context, node, hash string) error {
	_, err := q.do(ctx, node, &Request{Op: OpRemove, Hash: hash})
	return err
}

func (q *QUIC) do(ctx context.Context, node string, req *Request) ([]byte, error) {
	msg, err := EncodeRequest(req)
	if err != nil {
		return nil, &NodeError{Op: req.Op.String(), Node: node, Hash: req.Hash, Err: err}
	}

	resp, err := q.node.Request(ctx, node, msg)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		return nil, &NodeError{Op: req.Op.String(), Node: node, Hash: req.Hash, Err: err}
	}

	data, err := decodeResponse(resp)
	if err != nil {
		return nil, &NodeError{Op: req.Op.String(), Node: node, Hash: req.Hash, Err: err}
	}

	return data, nil
}
