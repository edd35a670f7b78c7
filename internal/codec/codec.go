// Package codec holds the compression primitives shared by the storage
// backends: bare zstd for inline file contents and a tagged frame format
// for pile cells.
package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"dstash/internal/model"
)

// Compression identifies the algorithm used for a pile frame. The values
// are written to disk in frame headers and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

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

// ParseCompression maps a configured algorithm name to its tag.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression %q", model.ErrInvalidArgument, name)
	}
}

// zstd's encoder and decoder are safe for concurrent use, so one of each
// serves the whole process.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress returns the zstd encoding of data. Inline contents store this
// form directly.
func Compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

// EncodeFrame compresses data with the requested algorithm and prepends
// the tag byte. When compression does not shrink the payload the frame
// silently falls back to the uncompressed form.
func EncodeFrame(data []byte, algo Compression) ([]byte, error) {
	switch algo {
	case CompressionNone:
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock reports 0 for incompressible input.
		if written > 0 && written < len(data) {
			return appendTag(CompressionLZ4, dst[:written]), nil
		}
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) < len(data) {
			return appendTag(CompressionZstd, compressed), nil
		}
	default:
		return nil, fmt.Errorf("%w: unsupported compression %d", model.ErrInvalidArgument, algo)
	}
	return appendTag(CompressionNone, data), nil
}

func appendTag(tag Compression, payload []byte) []byte {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, byte(tag))
	return append(frame, payload...)
}

// DecodeFrame reverses EncodeFrame. uncompressedSize must match the
// original payload length exactly.
func DecodeFrame(frame []byte, uncompressedSize int) ([]byte, error) {
	if len(frame) < 1 {
		return nil, fmt.Errorf("frame too short")
	}
	payload := frame[1:]

	switch tag := Compression(frame[0]); tag {
	case CompressionNone:
		if len(payload) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed frame: size %d does not match expected %d",
				len(payload), uncompressedSize)
		}
		return payload, nil

	case CompressionLZ4:
		dst := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return dst, nil

	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), uncompressedSize)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown frame tag %d", frame[0])
	}
}
