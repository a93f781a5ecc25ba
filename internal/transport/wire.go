package transport

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"ChainVault/internal/codec"
	"ChainVault/internal/network"
)

// putHeaderSize is the type, hash and length prefix of a put request.
const putHeaderSize = 1 + codec.HashSize + 4

// MaxFragmentSize is the largest fragment a put request can carry in one network message.
const MaxFragmentSize = network.MaxMessageSize - putHeaderSize

// Request message types.
const (
	msgPut    = 0x01 // store a fragment
	msgGet    = 0x02 // fetch a fragment
	msgRemove = 0x03 // delete a fragment
)

// Response message types.
const (
	msgOK    = 0x10 // operation succeeded without payload
	msgData  = 0x11 // fragment bytes follow
	msgError = 0x12 // error code and message follow
)

// Error codes carried by msgError.
const (
	CodeNotFound     = 0x01 // fragment not held
	CodeHashMismatch = 0x02 // put data does not hash to the declared hash
	CodeBadRequest   = 0x03 // request could not be decoded
	CodeInternal     = 0x04 // server-side storage failure
)

// Op identifies a request kind.
type Op byte

const (
	OpPut    Op = msgPut
	OpGet    Op = msgGet
	OpRemove Op = msgRemove
)

func (o Op) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpGet:
		return "get"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("op(0x%02x)", byte(o))
	}
}

// Request is a decoded storage node request.
type Request struct {
	Op   Op     // Op is the request kind
	Hash string // Hash is the hex fragment hash
	Data []byte // Data is the fragment for puts
}

// EncodeRequest encodes a request.
// Format: [1B type] [32B hash] and for puts [4B len] [NB data]
func EncodeRequest(req *Request) ([]byte, error) {
	raw, err := hex.DecodeString(req.Hash)
	if err != nil || len(raw) != codec.HashSize {
		return nil, fmt.Errorf("invalid fragment hash %q", req.Hash)
	}

	size := 1 + codec.HashSize
	if req.Op == OpPut {
		if len(req.Data) > MaxFragmentSize {
			return nil, fmt.Errorf("fragment too large: %d > %d", len(req.Data), MaxFragmentSize)
		}

		size = putHeaderSize + len(req.Data)
	}

	buf := make([]byte, size)
	buf[0] = byte(req.Op)
	copy(buf[1:33], raw)

	if req.Op == OpPut {
		binary.BigEndian.PutUint32(buf[33:putHeaderSize], uint32(len(req.Data)))
		copy(buf[putHeaderSize:], req.Data)
	}

	return buf, nil
}

// DecodeRequest decodes a request.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) < 1+codec.HashSize {
		return nil, fmt.Errorf("request too short: %d < %d", len(data), 1+codec.HashSize)
	}

	req := &Request{
		Op:   Op(data[0]),
		Hash: hex.EncodeToString(data[1:33]),
	}

	switch req.Op {
	case OpGet, OpRemove:
		return req, nil

	case OpPut:
		if len(data) < putHeaderSize {
			return nil, fmt.Errorf("put request too short: %d < %d", len(data), putHeaderSize)
		}

		n := binary.BigEndian.Uint32(data[33:putHeaderSize])
		if uint64(len(data)-putHeaderSize) != uint64(n) {
			return nil, fmt.Errorf("put data length %d, header says %d", len(data)-putHeaderSize, n)
		}

		req.Data = data[putHeaderSize:]

		return req, nil

	default:
		return nil, fmt.Errorf("invalid message type: 0x%02x", data[0])
	}
}

// EncodeOK encodes an empty success response.
func EncodeOK() []byte {
	return []byte{msgOK}
}

// EncodeData encodes a fragment response.
// Format: [1B type] [4B len] [NB data]
func EncodeData(data []byte) []byte {
	buf := make([]byte, 5+len(data))
	buf[0] = msgData
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(data)))
	copy(buf[5:], data)

	return buf
}

// EncodeError encodes an error response.
// Format: [1B type] [1B code] [message]
func EncodeError(code byte, msg string) []byte {
	buf := make([]byte, 2+len(msg))
	buf[0] = msgError
	buf[1] = code
	copy(buf[2:], msg)

	return buf
}

// decodeResponse returns the payload of an OK or data response, or the error it carries.
func decodeResponse(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	switch data[0] {
	case msgOK:
		return nil, nil

	case msgData:
		if len(data) < 5 {
			return nil, fmt.Errorf("data response too short: %d < 5", len(data))
		}

		n := binary.BigEndian.Uint32(data[1:5])
		if uint64(len(data)-5) != uint64(n) {
			return nil, fmt.Errorf("data truncated: need %d, have %d", n, len(data)-5)
		}

		return data[5:], nil

	case msgError:
		if len(data) < 2 {
			return nil, fmt.Errorf("error response too short")
		}

		return nil, codeError(data[1], string(data[2:]))

	default:
		return nil, fmt.Errorf("invalid response type: 0x%02x", data[0])
	}
}

// codeError maps a wire error code to a transport error.
func codeError(code byte, msg string) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodeHashMismatch:
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	default:
		return fmt.Errorf("remote error 0x%02x: %s", code, msg)
	}
}
