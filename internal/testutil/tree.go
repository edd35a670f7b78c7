package testutil

import (
	"testing"

	"dstash/internal/database"
	"dstash/internal/model"
	"dstash/internal/tree"
)

// NewTreeStore builds a tree store on a fixed stub clock with test birth
// metadata.
func NewTreeStore() (*tree.Store, *StubClock) {
	clock := FixedClock()
	return tree.NewStore(clock, model.Birth{Version: 1, Hostname: "test"}), clock
}

// MustMkdir creates and links a directory, failing the test on error.
func MustMkdir(t *testing.T, db *database.DB, ts *tree.Store, parent int64, basename string) model.Directory {
	t.Helper()

	var d model.Directory
	MustTx(t, db, func(tx *database.Tx) error {
		var err error
		d, err = ts.CreateDirectory(tx, parent, basename)
		return err
	})
	return d
}

// MustCreateFile records a file, failing the test on error.
func MustCreateFile(t *testing.T, db *database.DB, ts *tree.Store, nf model.NewFile) model.File {
	t.Helper()

	var f model.File
	MustTx(t, db, func(tx *database.Tx) error {
		var err error
		f, err = ts.CreateFile(tx, nf)
		return err
	})
	return f
}

// MustCreateSymlink records a symlink, failing the test on error.
func MustCreateSymlink(t *testing.T, db *database.DB, ts *tree.Store, target string) model.Symlink {
	t.Helper()

	var l model.Symlink
	MustTx(t, db, func(tx *database.Tx) error {
		var err error
		l, err = ts.CreateSymlink(tx, target)
		return err
	})
	return l
}

// MustLink creates a dirent, failing the test on error.
func MustLink(t *testing.T, db *database.DB, ts *tree.Store, parent int64, basename string, child model.NodeRef) {
	t.Helper()

	MustTx(t, db, func(tx *database.Tx) error {
		return ts.Link(tx, parent, basename, child)
	})
}
