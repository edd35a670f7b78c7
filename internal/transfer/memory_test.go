package transfer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"dstash/internal/model"
)

func TestMemoryTransferRoundTrip(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransfer(0)

	content := []byte("chunk ciphertext goes here")
	locator, err := tr.Put(ctx, "alice", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if locator == "" {
		t.Fatal("Put() returned empty locator")
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}

	var buf bytes.Buffer
	if err := tr.Get(ctx, locator, &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Errorf("Get() = %q, want %q", buf.Bytes(), content)
	}

	if err := tr.Delete(ctx, locator); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if tr.Len() != 0 {
		t.Errorf("Len() after delete = %d, want 0", tr.Len())
	}
	if err := tr.Get(ctx, locator, &buf); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryTransferDistinctLocators(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransfer(0)

	content := []byte("same bytes twice")
	first, err := tr.Put(ctx, "alice", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	second, err := tr.Put(ctx, "alice", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if first == second {
		t.Errorf("identical content produced the same locator %q", first)
	}
	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tr.Len())
	}
}

func TestMemoryTransferSizeMismatch(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransfer(0)

	_, err := tr.Put(ctx, "alice", strings.NewReader("short"), 100)
	if err == nil {
		t.Fatal("Put() with wrong size succeeded")
	}
	if !strings.Contains(err.Error(), "size mismatch") {
		t.Errorf("Put() error = %v, want size mismatch", err)
	}
	if tr.Len() != 0 {
		t.Errorf("Len() after failed put = %d, want 0", tr.Len())
	}
}

func TestMemoryTransferQuota(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransfer(10)

	// 6 bytes fit under the 10 byte quota.
	loc, err := tr.Put(ctx, "alice", strings.NewReader("sixbyt"), 6)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// 6 more would exceed it.
	_, err = tr.Put(ctx, "alice", strings.NewReader("toofar"), 6)
	if !errors.Is(err, model.ErrQuotaExhausted) {
		t.Fatalf("Put() over quota error = %v, want ErrQuotaExhausted", err)
	}

	// Another owner has a quota of their own.
	if _, err := tr.Put(ctx, "bob", strings.NewReader("sixbyt"), 6); err != nil {
		t.Errorf("Put() as bob error = %v", err)
	}

	// Deleting refunds the usage.
	if err := tr.Delete(ctx, loc); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := tr.Put(ctx, "alice", strings.NewReader("refund"), 6); err != nil {
		t.Errorf("Put() after refund error = %v", err)
	}
}

func TestMemoryTransferDelete(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTransfer(0)

	if err := tr.Delete(ctx, "no-such-locator"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if err := tr.Validate(ctx); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
