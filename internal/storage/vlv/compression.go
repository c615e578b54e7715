package vlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how blocks are stored.
type Compression uint8

const (
	// CompressionNone stores blocks as encoded.
	CompressionNone Compression = 0
	// CompressionLZ4 stores blocks LZ4 block-compressed.
	CompressionLZ4 Compression = 1
	// CompressionZSTD stores blocks zstd-compressed.
	CompressionZSTD Compression = 2
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression parses none, lz4 or zstd. The empty string is none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("vlv: unknown compression %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// A stored block starts with the compression tag. Compressed blocks then
// carry an 8-byte header: [uncompressed uint32][compressed uint32], where a
// compressed size of 0 means the payload is stored raw.
const (
	tagSize         = 1
	blockHeaderSize = 8
)

// compressBlock wraps an encoded block for storage. Blocks that compress
// to more than 90% of their size are stored raw.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	if c == CompressionNone {
		out := make([]byte, tagSize+len(data))
		out[0] = byte(CompressionNone)
		copy(out[tagSize:], data)
		return out, nil
	}

	var compressed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("vlv: unknown compression %d", c)
	}

	raw := len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9
	payload := compressed
	if raw {
		payload = data
	}
	out := make([]byte, tagSize+blockHeaderSize+len(payload))
	out[0] = byte(c)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	if !raw {
		binary.LittleEndian.PutUint32(out[5:], uint32(len(compressed)))
	}
	copy(out[tagSize+blockHeaderSize:], payload)
	return out, nil
}

// decompressBlock unwraps a stored block written with any compression.
func decompressBlock(data []byte) ([]byte, error) {
	if len(data) < tagSize {
		return nil, ErrCorruptBlock
	}
	c := Compression(data[0])
	if c == CompressionNone {
		return data[tagSize:], nil
	}
	if len(data) < tagSize+blockHeaderSize {
		return nil, errors.New("vlv: block too small for header")
	}
	uncompressedSize := binary.LittleEndian.Uint32(data[1:])
	compressedSize := binary.LittleEndian.Uint32(data[5:])
	body := data[tagSize+blockHeaderSize:]

	if compressedSize == 0 {
		if uint32(len(body)) < uncompressedSize {
			return nil, ErrCorruptBlock
		}
		return body[:uncompressedSize], nil
	}
	if uint32(len(body)) < compressedSize {
		return nil, ErrCorruptBlock
	}
	body = body[:compressedSize]
	result := make([]byte, uncompressedSize)

	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(body, result)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
		}
		if uint32(n) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return result, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(body, result[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptBlock)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrCorruptBlock, c)
	}
}
