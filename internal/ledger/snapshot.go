package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"ChainVault/internal/storage"
)

// snapshotVersion is the current snapshot format version.
const snapshotVersion = 1

// snapshotBody is the CBOR document inside a compressed snapshot.
type snapshotBody struct {
	Version  uint32
	Entries  []snapshotEntry
	Checksum []byte
}

type snapshotEntry struct {
	Key   []byte
	Value []byte
}

// Snapshot exports every ledger record as a zstd-compressed CBOR document
// carrying a BLAKE3 checksum over the entries. All prefixes are read from one
// point-in-time view, so concurrent writes land entirely before or after it.
func (l *Ledger) Snapshot() ([]byte, error) {
	return l.snapshotOf(l.db.NewSnapshot())
}

// snapshotOf exports view and closes it.
func (l *Ledger) snapshotOf(view *storage.Snapshot) ([]byte, error) {
	defer view.Close()

	var entries []snapshotEntry

	for _, prefix := range []string{prefixFile, prefixGrant, prefixNode} {
		err := view.IteratePrefix([]byte(prefix), func(key, value []byte) error {
			entries = append(entries, snapshotEntry{
				Key:   bytes.Clone(key),
				Value: bytes.Clone(value),
			})

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("collect %s:\n%w", prefix, err)
		}
	}

	sum := checksum(snapshotVersion, entries)

	data, err := marshal(snapshotBody{Version: snapshotVersion, Entries: entries, Checksum: sum[:]})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot:\n%w", err)
	}

	return compressSnapshot(data)
}

// Restore writes every record of a snapshot atomically.
// Records already present with the same key are overwritten.
func (l *Ledger) Restore(data []byte) (int, error) {
	raw, err := decompressSnapshot(data)
	if err != nil {
		return 0, fmt.Errorf("decompress snapshot:\n%w", err)
	}

	var body snapshotBody
	if err := unmarshal(raw, &body); err != nil {
		return 0, fmt.Errorf("decode snapshot:\n%w", err)
	}

	if body.Version != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", body.Version)
	}

	sum := checksum(body.Version, body.Entries)
	if !bytes.Equal(sum[:], body.Checksum) {
		return 0, fmt.Errorf("snapshot checksum mismatch")
	}

	ops := make([]storage.Op, len(body.Entries))
	for i, e := range body.Entries {
		ops[i] = storage.Put(e.Key, e.Value)
	}

	if err := l.db.Apply(ops); err != nil {
		return 0, fmt.Errorf("write snapshot:\n%w", err)
	}

	return len(ops), nil
}

// checksum hashes version followed by each length-prefixed key and value.
func checksum(version uint32, entries []snapshotEntry) [32]byte {
	hasher := blake3.New()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], version)
	hasher.Write(buf[:])

	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[:], uint32(len(e.Key)))
		hasher.Write(buf[:])
		hasher.Write(e.Key)

		binary.BigEndian.PutUint32(buf[:], uint32(len(e.Value)))
		hasher.Write(buf[:])
		hasher.Write(e.Value)
	}

	var out [32]byte
	hasher.Sum(out[:0])

	return out
}

func compressSnapshot(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

func decompressSnapshot(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
