package testutil

import "dstash/internal/storage"

// NewStorageStore builds a storage store on a fixed stub clock.
func NewStorageStore() (*storage.Store, *StubClock) {
	clock := FixedClock()
	return storage.NewStore(clock), clock
}
