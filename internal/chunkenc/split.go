package chunkenc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/restic/chunker"
)

// Chunking defaults. The polynomial must stay fixed for the life of a
// deployment, or identical content re-splits on different boundaries.
const (
	DefaultMinChunkSize = chunker.MinSize // 512 KiB
	DefaultMaxChunkSize = chunker.MaxSize // 8 MiB
	DefaultPolynomial   = 0x3DA3358B4DC173
)

// SplitParams bounds the content-defined chunker. Zero values fall back
// to the defaults above.
type SplitParams struct {
	MinSize    uint
	MaxSize    uint
	Polynomial uint64
}

// WithDefaults returns a copy with zero fields replaced by the defaults.
func (p SplitParams) WithDefaults() SplitParams {
	if p.MinSize == 0 {
		p.MinSize = DefaultMinChunkSize
	}
	if p.MaxSize == 0 {
		p.MaxSize = DefaultMaxChunkSize
	}
	if p.Polynomial == 0 {
		p.Polynomial = DefaultPolynomial
	}
	return p
}

// Split cuts content into chunks on content-defined boundaries (a
// Rabin rolling hash), so shared runs of bytes land in identical chunks
// across files. Every chunk except the last is at least MinSize bytes;
// no chunk exceeds MaxSize. Empty content yields no chunks.
func Split(content []byte, p SplitParams) ([][]byte, error) {
	p = p.WithDefaults()
	if len(content) == 0 {
		return nil, nil
	}

	ch := chunker.NewWithBoundaries(bytes.NewReader(content), chunker.Pol(p.Polynomial), p.MinSize, p.MaxSize)
	buf := make([]byte, p.MaxSize)
	var chunks [][]byte
	for {
		c, err := ch.Next(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("splitting content: %w", err)
		}
		// Next reuses buf, so the chunk data must be copied out.
		chunks = append(chunks, append([]byte(nil), c.Data...))
	}
	return chunks, nil
}
