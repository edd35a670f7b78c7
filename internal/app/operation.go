package app

import "dstash/internal/journal"

// Operation tracks the CLI command behind one App instance. It starts
// in memory with ID=0; only mutating commands journal it, which assigns
// the database id. The status stays success unless a command fails
// after its journal entry was written.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewOperation creates an in-memory operation record for the named
// command.
func NewOperation(operation string) *Operation {
	return &Operation{
		Operation: operation,
		Status:    journal.StatusSuccess,
	}
}

// Persisted reports whether the operation has a journal entry.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}
