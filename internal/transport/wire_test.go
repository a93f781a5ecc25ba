package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainVault/internal/codec"
)

// TestRequestEncoding tests put, get and remove frames.
func TestRequestEncoding(t *testing.T) {
	data := []byte("encrypted fragment")
	hash := codec.ContentHash(data)

	for _, req := range []*Request{
		{Op: OpPut, Hash: hash, Data: data},
		{Op: OpGet, Hash: hash},
		{Op: OpRemove, Hash: hash},
	} {
		t.Run(req.Op.String(), func(t *testing.T) {
			msg, err := EncodeRequest(req)
			require.NoError(t, err)

			got, err := DecodeRequest(msg)
			require.NoError(t, err)
			assert.Equal(t, req.Op, got.Op)
			assert.Equal(t, req.Hash, got.Hash)
			assert.Equal(t, string(req.Data), string(got.Data))
		})
	}
}

// TestRequestEncodingErrors tests malformed hashes and frames.
func TestRequestEncodingErrors(t *testing.T) {
	_, err := EncodeRequest(&Request{Op: OpGet, Hash: "xyz"})
	assert.Error(t, err)

	big := make([]byte, MaxFragmentSize+1)
	_, err = EncodeRequest(&Request{Op: OpPut, Hash: codec.ContentHash(big), Data: big})
	assert.Error(t, err)

	_, err = DecodeRequest([]byte{msgGet, 1, 2})
	assert.Error(t, err)

	msg, err := EncodeRequest(&Request{Op: OpPut, Hash: codec.ContentHash(nil), Data: []byte("abc")})
	require.NoError(t, err)

	_, err = DecodeRequest(msg[:len(msg)-1])
	assert.Error(t, err)

	msg[0] = 0x7f
	_, err = DecodeRequest(msg)
	assert.Error(t, err)
}

// TestResponseDecoding tests each response kind.
func TestResponseDecoding(t *testing.T) {
	data, err := decodeResponse(EncodeOK())
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = decodeResponse(EncodeData([]byte("frag")))
	require.NoError(t, err)
	assert.Equal(t, []byte("frag"), data)

	_, err = decodeResponse(EncodeError(CodeNotFound, "gone"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = decodeResponse(EncodeError(CodeHashMismatch, "bad"))
	assert.ErrorIs(t, err, ErrRejected)

	_, err = decodeResponse(EncodeError(CodeInternal, "disk"))
	assert.ErrorContains(t, err, "disk")

	_, err = decodeResponse(nil)
	assert.Error(t, err)

	truncated := EncodeData([]byte("frag"))
	_, err = decodeResponse(truncated[:len(truncated)-1])
	assert.Error(t, err)
}

// TestNodeErrorUnwrap tests error attribution.
func TestNodeErrorUnwrap(t *testing.T) {
	err := error(&NodeError{Op: "get", Node: "n1", Hash: "h", Err: ErrUnavailable})

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "n1")

	var nerr *NodeError
	assert.True(t, errors.As(err, &nerr))
}
