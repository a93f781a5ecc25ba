package fragment

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainVault/internal/codec"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, codec.KeySize)
}

// TestSplitShape tests fragment count, sizes and per-fragment hashes.
func TestSplitShape(t *testing.T) {
	plaintext := bytes.Repeat([]byte("abcdefgh"), 100)

	set, err := Split(plaintext, testKey(), Options{Size: 100})
	require.NoError(t, err)

	sealed := headerSize + len(plaintext) + codec.Overhead
	wantCount := (sealed + 99) / 100

	assert.Equal(t, codec.ContentHash(plaintext), set.FileHash)
	assert.Equal(t, len(plaintext), set.FileSize)
	require.Len(t, set.Fragments, wantCount)

	for i, f := range set.Fragments {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, len(f.Data), f.Size)
		assert.Equal(t, codec.ContentHash(f.Data), f.Hash)

		if i < wantCount-1 {
			assert.Equal(t, 100, f.Size)
		} else {
			assert.LessOrEqual(t, f.Size, 100)
		}
	}
}

// TestSplitRejectsBadInput tests empty input and non-positive sizes.
func TestSplitRejectsBadInput(t *testing.T) {
	var ferr *FragmentationError

	_, err := Split(nil, testKey(), Options{Size: 10})
	assert.True(t, errors.As(err, &ferr))

	_, err = Split([]byte("x"), testKey(), Options{Size: 0})
	assert.True(t, errors.As(err, &ferr))

	_, err = Split([]byte("x"), testKey(), Options{Size: -5})
	assert.True(t, errors.As(err, &ferr))
}

// TestSplitBadKey tests that key errors surface as CryptoError.
func TestSplitBadKey(t *testing.T) {
	_, err := Split([]byte("x"), []byte("short"), Options{Size: 10})

	var cerr *codec.CryptoError
	assert.True(t, errors.As(err, &cerr))
}

// TestRoundTripCompression tests every compression mode, including incompressible data.
func TestRoundTripCompression(t *testing.T) {
	text := bytes.Repeat([]byte("the quick brown fox "), 500)
	random := make([]byte, 4096)
	for i := range random {
		random[i] = byte(i*7919 + i>>3)
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		for name, input := range map[string][]byte{"text": text, "noise": random, "tiny": []byte("h")} {
			t.Run(c.String()+"/"+name, func(t *testing.T) {
				set, err := Split(input, testKey(), Options{Size: 512, Compression: c})
				require.NoError(t, err)

				out, err := Reassemble(set.Fragments, testKey(), set.FileHash)
				require.NoError(t, err)
				assert.Equal(t, input, out)
			})
		}
	}
}

// TestCompressionShrinksText tests that compressible text yields fewer fragments.
func TestCompressionShrinksText(t *testing.T) {
	text := bytes.Repeat([]byte("lorem ipsum dolor sit amet "), 1000)

	plain, err := Split(text, testKey(), Options{Size: 1024})
	require.NoError(t, err)

	packed, err := Split(text, testKey(), Options{Size: 1024, Compression: CompressionZstd})
	require.NoError(t, err)

	assert.Less(t, len(packed.Fragments), len(plain.Fragments))
}

// TestReassembleIgnoresOrder tests that shuffled input reconstructs.
func TestReassembleIgnoresOrder(t *testing.T) {
	plaintext := bytes.Repeat([]byte{1, 2, 3}, 200)

	set, err := Split(plaintext, testKey(), Options{Size: 64})
	require.NoError(t, err)

	reversed := make([]Fragment, len(set.Fragments))
	for i, f := range set.Fragments {
		reversed[len(reversed)-1-i] = f
	}

	out, err := Reassemble(reversed, testKey(), set.FileHash)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

// TestReassembleMissingIndex tests gap detection.
func TestReassembleMissingIndex(t *testing.T) {
	set, err := Split(bytes.Repeat([]byte{9}, 500), testKey(), Options{Size: 64})
	require.NoError(t, err)

	partial := append([]Fragment{}, set.Fragments[:2]...)
	partial = append(partial, set.Fragments[3:]...)

	_, err = Reassemble(partial, testKey(), set.FileHash)

	var rerr *ReconstructionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 2, rerr.MissingIndex)

	_, err = Reassemble(nil, testKey(), set.FileHash)
	assert.True(t, errors.As(err, &rerr))
}

// TestReassembleDuplicateIndex tests that a repeated index is rejected.
func TestReassembleDuplicateIndex(t *testing.T) {
	set, err := Split(bytes.Repeat([]byte{9}, 200), testKey(), Options{Size: 64})
	require.NoError(t, err)

	dup := append([]Fragment{}, set.Fragments...)
	dup[1] = dup[0]

	_, err = Reassemble(dup, testKey(), set.FileHash)

	var rerr *ReconstructionError
	assert.True(t, errors.As(err, &rerr))
}

// TestReassembleFragmentTampered tests that a flipped bit is caught before decryption.
func TestReassembleFragmentTampered(t *testing.T) {
	set, err := Split([]byte("hello world"), testKey(), Options{Size: 16})
	require.NoError(t, err)

	frags := append([]Fragment{}, set.Fragments...)
	frags[1].Data = append([]byte{}, frags[1].Data...)
	frags[1].Data[0] ^= 0x80

	_, err = Reassemble(frags, testKey(), set.FileHash)

	var ierr *IntegrityError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, 1, ierr.Index)
}

// TestReassembleWrongFileHash tests the whole-file check.
func TestReassembleWrongFileHash(t *testing.T) {
	set, err := Split([]byte("hello world"), testKey(), Options{Size: 16})
	require.NoError(t, err)

	_, err = Reassemble(set.Fragments, testKey(), codec.ContentHash([]byte("other")))

	var ierr *IntegrityError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, -1, ierr.Index)
}

// TestReassembleWrongKey tests that a key mismatch propagates as CryptoError.
func TestReassembleWrongKey(t *testing.T) {
	set, err := Split([]byte("hello world"), testKey(), Options{Size: 16})
	require.NoError(t, err)

	_, err = Reassemble(set.Fragments, bytes.Repeat([]byte{1}, codec.KeySize), set.FileHash)

	var cerr *codec.CryptoError
	assert.True(t, errors.As(err, &cerr))
}

// TestParseCompression tests name parsing.
func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, got)

	_, err = ParseCompression("brotli")
	assert.Error(t, err)
}
