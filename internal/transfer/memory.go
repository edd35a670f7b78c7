// Package transfer implements the remote object backends the write and
// read pipelines move chunk bytes through.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"dstash/internal/model"
	"dstash/internal/stash"
)

// MemoryTransfer keeps objects in process memory. Useful for tests and
// for exercising the quota rotation path without a real service.
// This implementation is safe for concurrent use.
type MemoryTransfer struct {
	quota   int64 // per-owner byte ceiling, 0 means unlimited
	mu      sync.RWMutex
	objects map[string]memObject // locator -> object
	usage   map[string]int64     // owner -> bytes stored
}

type memObject struct {
	data  []byte
	owner string
}

// NewMemoryTransfer creates an empty in-memory backend.
func NewMemoryTransfer(quota int64) *MemoryTransfer {
	return &MemoryTransfer{
		quota:   quota,
		objects: make(map[string]memObject),
		usage:   make(map[string]int64),
	}
}

// Put stores the object under a fresh locator, charging the owner's quota.
func (t *MemoryTransfer) Put(ctx context.Context, credOwner string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.quota > 0 && t.usage[credOwner]+size > t.quota {
		return "", fmt.Errorf("%w: owner %s is over %d bytes", model.ErrQuotaExhausted, credOwner, t.quota)
	}

	locator := uuid.New().String()
	t.objects[locator] = memObject{data: data, owner: credOwner}
	t.usage[credOwner] += size
	return locator, nil
}

// Get writes the object at locator to w.
func (t *MemoryTransfer) Get(ctx context.Context, locator string, w io.Writer) error {
	t.mu.RLock()
	obj, ok := t.objects[locator]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: object %q", model.ErrNotFound, locator)
	}

	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Delete removes the object and refunds the owner's quota.
func (t *MemoryTransfer) Delete(ctx context.Context, locator string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.objects[locator]
	if !ok {
		return fmt.Errorf("%w: object %q", model.ErrNotFound, locator)
	}
	delete(t.objects, locator)
	t.usage[obj.owner] -= int64(len(obj.data))
	return nil
}

// Validate always succeeds for the in-memory backend.
func (t *MemoryTransfer) Validate(ctx context.Context) error {
	return nil
}

// Len reports how many objects are stored.
func (t *MemoryTransfer) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objects)
}

var _ stash.Transfer = (*MemoryTransfer)(nil)
