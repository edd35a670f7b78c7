package chunkenc

import (
	"bytes"
	"testing"

	"github.com/restic/chunker"
)

// testContent returns n deterministic filler bytes.
func testContent(n int) []byte {
	content := make([]byte, n)
	for i := range content {
		content[i] = byte(i*131 + i>>9 + 7)
	}
	return content
}

var testParams = SplitParams{MinSize: 64 * 1024, MaxSize: 256 * 1024}

func TestSplitReassembles(t *testing.T) {
	content := testContent(900 * 1024)

	chunks, err := Split(content, testParams)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 4 {
		t.Fatalf("got %d chunks, want >= 4 for %d bytes under a %d cap",
			len(chunks), len(content), testParams.MaxSize)
	}

	var joined []byte
	for i, c := range chunks {
		if len(c) > int(testParams.MaxSize) {
			t.Errorf("chunk %d is %d bytes, over the %d cap", i, len(c), testParams.MaxSize)
		}
		if i < len(chunks)-1 && len(c) < int(testParams.MinSize) {
			t.Errorf("chunk %d is %d bytes, under the %d floor", i, len(c), testParams.MinSize)
		}
		joined = append(joined, c...)
	}
	if !bytes.Equal(joined, content) {
		t.Error("reassembled chunks do not match the input")
	}
}

func TestSplitDeterministic(t *testing.T) {
	content := testContent(700 * 1024)

	first, err := Split(content, testParams)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Split(content, testParams)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !bytes.Equal(first[i], second[i]) {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitSmallContent(t *testing.T) {
	content := []byte("well under the minimum chunk size")

	chunks, err := Split(content, testParams)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || !bytes.Equal(chunks[0], content) {
		t.Errorf("chunks = %d, want the content back as one chunk", len(chunks))
	}
}

func TestSplitEmpty(t *testing.T) {
	for _, content := range [][]byte{nil, {}} {
		chunks, err := Split(content, testParams)
		if err != nil {
			t.Fatal(err)
		}
		if chunks != nil {
			t.Errorf("Split(%v) = %v, want nil", content, chunks)
		}
	}
}

func TestSplitParamsDefaults(t *testing.T) {
	got := SplitParams{}.WithDefaults()
	if got.MinSize != chunker.MinSize || got.MaxSize != chunker.MaxSize || got.Polynomial != DefaultPolynomial {
		t.Errorf("WithDefaults() = %+v, want the built-in bounds", got)
	}

	set := SplitParams{MinSize: 1 << 16, MaxSize: 1 << 20, Polynomial: 0x3DA3358B4DC173}
	if got := set.WithDefaults(); got != set {
		t.Errorf("WithDefaults() = %+v, want %+v unchanged", got, set)
	}
}
