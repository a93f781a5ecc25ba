package fragment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how a file is compressed before encryption.
// The numeric values are stored in sealed payloads and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

// headerSize is the sealed payload prefix: 1 byte tag + 8 bytes original length.
const headerSize = 9

var errIncompressible = errors.New("incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("fragment: zstd encoder: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("fragment: zstd decoder: " + err.Error())
	}
}

// String returns the configuration name of c.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name. The empty string means none.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// seal compresses data with c and prepends the payload header.
// Data that does not shrink is stored uncompressed.
func seal(data []byte, c Compression) ([]byte, error) {
	body, err := compress(data, c)
	if errors.Is(err, errIncompressible) {
		body, c = data, CompressionNone
	} else if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(body))
	out[0] = byte(c)
	binary.BigEndian.PutUint64(out[1:headerSize], uint64(len(data)))

	return append(out, body...), nil
}

// unseal reverses seal.
func unseal(payload []byte) ([]byte, error) {
	if len(payload) < headerSize {
		return nil, fmt.Errorf("payload is %d bytes, header needs %d", len(payload), headerSize)
	}

	c := Compression(payload[0])
	size := binary.BigEndian.Uint64(payload[1:headerSize])
	body := payload[headerSize:]

	if size > uint64(math.MaxInt) {
		return nil, fmt.Errorf("declared size %d overflows", size)
	}

	return decompress(body, c, int(size))
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))

		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}

		if n == 0 || n >= len(data) {
			return nil, errIncompressible
		}

		return dst[:n], nil

	case CompressionZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return nil, errIncompressible
		}

		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}

func decompress(body []byte, c Compression, size int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(body) != size {
			return nil, fmt.Errorf("stored body is %d bytes, header says %d", len(body), size)
		}

		return body, nil

	case CompressionLZ4:
		dst := make([]byte, size)

		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}

		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", n, size)
		}

		return dst, nil

	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}

		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(out), size)
		}

		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression %d", c)
	}
}
