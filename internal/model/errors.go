package model

import "errors"

// Sentinel errors for the engine's failure taxonomy. Operations wrap these
// with fmt.Errorf("...: %w", ...) and callers discriminate with errors.Is;
// ids, names and counts ride in the message text.
var (
	ErrNotFound           = errors.New("not found")
	ErrNotADirectory      = errors.New("not a directory")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnparented         = errors.New("directory is unparented")
	ErrCycleRejected      = errors.New("cycle rejected")
	ErrConcurrentMutation = errors.New("concurrent mutation conflict")
	ErrSymlinkLoop        = errors.New("too many levels of symbolic links")
	ErrNoParent           = errors.New("no parent")
	ErrNotEmpty           = errors.New("directory not empty")
	ErrIntegrity          = errors.New("referential integrity violation")
	ErrKeyLength          = errors.New("cipher key length mismatch")
	ErrQuotaExhausted     = errors.New("quota exhausted")
)
