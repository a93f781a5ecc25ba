package fragment

import (
	"fmt"
	"sort"

	"ChainVault/internal/codec"
)

// DefaultSize is the fragment size used when none is configured.
const DefaultSize = 64 * 1024

// Options controls how a file is split.
type Options struct {
	Size        int         // Size is the maximum fragment length in bytes
	Compression Compression // Compression is applied to the plaintext before encryption
}

// Fragment is one contiguous slice of a file's sealed ciphertext.
type Fragment struct {
	Index int    // Index is the 0-based reconstruction position
	Data  []byte // Data is the encrypted bytes
	Hash  string // Hash is the content hash of Data
	Size  int    // Size is len(Data)
}

// Set is the output of Split.
type Set struct {
	FileHash  string     // FileHash is the content hash of the original plaintext
	FileSize  int        // FileSize is the plaintext length
	Fragments []Fragment // Fragments is ordered by Index
}

// Split compresses and encrypts plaintext once, then cuts the ciphertext
// into fragments of at most opts.Size bytes.
func Split(plaintext, key []byte, opts Options) (*Set, error) {
	if len(plaintext) == 0 {
		return nil, &FragmentationError{Reason: "empty input"}
	}

	if opts.Size <= 0 {
		return nil, &FragmentationError{Reason: "fragment size must be positive"}
	}

	payload, err := seal(plaintext, opts.Compression)
	if err != nil {
		return nil, &FragmentationError{Reason: err.Error()}
	}

	ciphertext, err := codec.Encrypt(payload, key)
	if err != nil {
		return nil, err
	}

	count := (len(ciphertext) + opts.Size - 1) / opts.Size
	set := &Set{
		FileHash:  codec.ContentHash(plaintext),
		FileSize:  len(plaintext),
		Fragments: make([]Fragment, 0, count),
	}

	for i := 0; i < count; i++ {
		start := i * opts.Size
		end := min(start+opts.Size, len(ciphertext))
		data := ciphertext[start:end:end]

		set.Fragments = append(set.Fragments, Fragment{
			Index: i,
			Data:  data,
			Hash:  codec.ContentHash(data),
			Size:  len(data),
		})
	}

	return set, nil
}

// Reassemble verifies and decrypts a complete fragment set.
// Input order is ignored; every index 0..N-1 must be present exactly once.
// Each fragment's Hash is the expected value recorded at upload time.
func Reassemble(fragments []Fragment, key []byte, fileHash string) ([]byte, error) {
	if len(fragments) == 0 {
		return nil, &ReconstructionError{MissingIndex: 0, Reason: "no fragments"}
	}

	ordered := make([]Fragment, len(fragments))
	copy(ordered, fragments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	total := 0
	for i, f := range ordered {
		if f.Index != i {
			if f.Index < i {
				return nil, &ReconstructionError{MissingIndex: -1, Reason: fmt.Sprintf("duplicate fragment index %d", f.Index)}
			}

			return nil, &ReconstructionError{MissingIndex: i, Reason: "missing fragment"}
		}

		if got := codec.ContentHash(f.Data); got != f.Hash {
			return nil, &IntegrityError{FileHash: fileHash, Index: i, Expected: f.Hash, Actual: got}
		}

		total += len(f.Data)
	}

	ciphertext := make([]byte, 0, total)
	for _, f := range ordered {
		ciphertext = append(ciphertext, f.Data...)
	}

	payload, err := codec.Decrypt(ciphertext, key)
	if err != nil {
		return nil, err
	}

	plaintext, err := unseal(payload)
	if err != nil {
		return nil, &ReconstructionError{MissingIndex: -1, Reason: "malformed payload", Err: err}
	}

	if got := codec.ContentHash(plaintext); got != fileHash {
		return nil, &IntegrityError{FileHash: fileHash, Index: -1, Expected: fileHash, Actual: got}
	}

	return plaintext, nil
}
