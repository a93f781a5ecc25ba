package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of every symmetric key handled by the codec.
	KeySize = chacha20poly1305.KeySize

	// HashSize is the size of a raw content hash.
	HashSize = 32

	// HashHexLen is the length of a hex-encoded content hash.
	HashHexLen = 2 * HashSize

	// Version is the envelope format byte, authenticated as associated data.
	Version byte = 0x01

	// Overhead is the envelope size added to every plaintext:
	// 1 (version) + 24 (XChaCha20 nonce) + 16 (Poly1305 tag).
	Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
)

var (
	hkdfInfoFileKey = []byte("chainvault.file.v1")
	nonceDomain     = []byte("chainvault.nonce.v1")
)

// CryptoError reports an invalid key, a malformed envelope or a failed authentication.
type CryptoError struct {
	Op     string // Op is encrypt, decrypt or derive
	Reason string // Reason is a human-readable cause
	Err    error  // Err is the underlying error, if any
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto %s: %s: %v", e.Op, e.Reason, e.Err)
	}

	return fmt.Sprintf("crypto %s: %s", e.Op, e.Reason)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Encrypt seals plaintext under key. The output layout is
//
//	[version: 1] [nonce: 24] [ciphertext+tag: N+16]
//
// The nonce is a keyed BLAKE3 of the plaintext, so the same plaintext and key
// always produce the same envelope.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newAEAD("encrypt", key)
	if err != nil {
		return nil, err
	}

	nonce := deriveNonce(key, plaintext)

	out := make([]byte, 1+len(nonce), Overhead+len(plaintext))
	out[0] = Version
	copy(out[1:], nonce)

	return aead.Seal(out, nonce, plaintext, []byte{Version}), nil
}

// Decrypt opens an envelope produced by Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	aead, err := newAEAD("decrypt", key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < Overhead {
		return nil, &CryptoError{
			Op:     "decrypt",
			Reason: fmt.Sprintf("envelope is %d bytes, minimum is %d", len(ciphertext), Overhead),
		}
	}

	if ciphertext[0] != Version {
		return nil, &CryptoError{Op: "decrypt", Reason: fmt.Sprintf("unsupported version %d", ciphertext[0])}
	}

	nonce := ciphertext[1 : 1+chacha20poly1305.NonceSizeX]
	body := ciphertext[1+chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, body, ciphertext[:1])
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Reason: "authentication failed", Err: err}
	}

	return plaintext, nil
}

// newAEAD validates the key length and builds the cipher.
func newAEAD(op string, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, &CryptoError{Op: op, Reason: fmt.Sprintf("key is %d bytes, want %d", len(key), KeySize)}
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, &CryptoError{Op: op, Reason: "creating cipher", Err: err}
	}

	return aead, nil
}

// deriveNonce computes BLAKE3-keyed(key, domain || plaintext) truncated to the nonce size.
func deriveNonce(key, plaintext []byte) []byte {
	h, _ := blake3.NewKeyed(key) // key length already checked

	h.Write(nonceDomain)
	h.Write(plaintext)

	return h.Sum(nil)[:chacha20poly1305.NonceSizeX]
}

// HashBytes returns the raw 256-bit BLAKE3 digest of data.
func HashBytes(data []byte) [HashSize]byte {
	return blake3.Sum256(data)
}

// ContentHash returns the hex-encoded BLAKE3 digest of data.
// The same function hashes whole files and individual fragments.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyContent reports whether candidate hashes to expected.
// Comparison is case-insensitive on the hex form and constant time.
func VerifyContent(expected string, candidate []byte) bool {
	want, err := hex.DecodeString(expected)
	if err != nil || len(want) != HashSize {
		return false
	}

	got := blake3.Sum256(candidate)

	return subtle.ConstantTimeCompare(want, got[:]) == 1
}

// DeriveFileKey derives the per-file encryption key from a master key and the file's content hash.
func DeriveFileKey(master []byte, fileHash string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, &CryptoError{Op: "derive", Reason: fmt.Sprintf("master key is %d bytes, want %d", len(master), KeySize)}
	}

	info := make([]byte, 0, len(hkdfInfoFileKey)+len(fileHash))
	info = append(info, hkdfInfoFileKey...)
	info = append(info, fileHash...)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, info), key); err != nil {
		return nil, &CryptoError{Op: "derive", Reason: "hkdf expand", Err: err}
	}

	return key, nil
}

// GenerateKey returns a fresh random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	return key, nil
}
