package tree

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"dstash/internal/model"
)

// RootID is the id of the distinguished root directory seeded by the
// schema. The root is its own parent and can never be deleted or linked
// as a child.
const RootID int64 = 1

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Store implements the tree operations: directories, files, symlinks and
// the dirents connecting them. Every method takes a *database.Tx so that
// callers compose multi-step updates into one atomic unit of work; each
// public operation validates its preconditions and applies its change
// inside that transaction.
type Store struct {
	clock Clock
	birth model.Birth
}

// NewStore creates a tree store. birth identifies the creating engine
// and host; its Time field is refreshed from clock for every entity
// created.
func NewStore(clock Clock, birth model.Birth) *Store {
	return &Store{clock: clock, birth: birth}
}

func (s *Store) now() time.Time { return s.clock.Now().UTC() }

func (s *Store) newBirth(now time.Time) model.Birth {
	b := s.birth
	b.Time = now
	return b
}

// ValidateBasename checks the dirent naming rules: 1-255 bytes of valid
// UTF-8, no '/', and not the reserved names '.' or '..'.
func ValidateBasename(name string) error {
	if len(name) < 1 || len(name) > 255 {
		return fmt.Errorf("%w: basename must be 1-255 bytes, got %d", model.ErrInvalidName, len(name))
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: basename is not valid UTF-8", model.ErrInvalidName)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: basename %q is reserved", model.ErrInvalidName, name)
	}
	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: basename must not contain '/'", model.ErrInvalidName)
	}
	return nil
}

func validateSymlinkTarget(target string) error {
	if len(target) < 1 || len(target) > 1024 {
		return fmt.Errorf("%w: symlink target must be 1-1024 bytes, got %d", model.ErrInvalidArgument, len(target))
	}
	if !utf8.ValidString(target) {
		return fmt.Errorf("%w: symlink target is not valid UTF-8", model.ErrInvalidArgument)
	}
	return nil
}

// requireParented rejects growth under an unparented directory. An
// unparented directory is always empty (it can only lose its parent while
// empty, and cannot gain children here), which is what makes the cycle
// check structural instead of a graph search.
func requireParented(d model.Directory) error {
	if d.ID != RootID && d.ParentID == 0 {
		return fmt.Errorf("%w: directory %d has no parent", model.ErrUnparented, d.ID)
	}
	return nil
}
