package fragstore

import (
	"errors"

	"ChainVault/internal/logger"
	"ChainVault/internal/network"
	"ChainVault/internal/transport"
)

// Handler answers storage requests from coordinators.
type Handler struct {
	store *Store
}

// NewHandler creates a request handler over store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Register installs the handler on a network node.
func (h *Handler) Register(node *network.Node) {
	node.OnRequest(func(p *network.Peer, data []byte) ([]byte, error) {
		return h.Handle(data), nil
	})
}

// Handle decodes one request and returns the encoded response.
func (h *Handler) Handle(data []byte) []byte {
	req, err := transport.DecodeRequest(data)
	if err != nil {
		return transport.EncodeError(transport.CodeBadRequest, err.Error())
	}

	switch req.Op {
	case transport.OpPut:
		if err := h.store.Put(req.Hash, req.Data); err != nil {
			return errorResponse(req, err)
		}

		logger.Debug("fragment stored", "hash", req.Hash, "bytes", len(req.Data))

		return transport.EncodeOK()

	case transport.OpGet:
		frag, err := h.store.Get(req.Hash)
		if err != nil {
			return errorResponse(req, err)
		}

		return transport.EncodeData(frag)

	default:
		if err := h.store.Remove(req.Hash); err != nil {
			return errorResponse(req, err)
		}

		return transport.EncodeOK()
	}
}

func errorResponse(req *transport.Request, err error) []byte {
	switch {
	case errors.Is(err, ErrNotFound):
		return transport.EncodeError(transport.CodeNotFound, err.Error())
	case errors.Is(err, ErrHashMismatch):
		logger.Warn("rejected fragment", "hash", req.Hash, "error", err)
		return transport.EncodeError(transport.CodeHashMismatch, err.Error())
	default:
		logger.Error("fragment request failed", "op", req.Op, "hash", req.Hash, "error", err)
		return transport.EncodeError(transport.CodeInternal, err.Error())
	}
}
