// Package storage persists where file contents live: the binding table
// joining files to their stored representations, the inline payload rows,
// and the pile/cell bookkeeping for local disk storage.
package storage

import "time"

// Clock supplies timestamps for binding and payload records.
type Clock interface {
	Now() time.Time
}

// Store runs the binding, inline and pile operations. All of them take a
// caller-supplied transaction.
type Store struct {
	clock Clock
}

func NewStore(clock Clock) *Store {
	return &Store{clock: clock}
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}
