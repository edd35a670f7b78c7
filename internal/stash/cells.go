package stash

import "dstash/internal/model"

// CellStore is the on-disk side of pile storage. The database rows name
// piles and cells; a CellStore turns those rows into object files under
// the pile root.
type CellStore interface {
	// Init prepares the pile's directory and manifest. Idempotent.
	Init(p *model.Pile) error

	// Put stores content as the object for fileID in the given cell.
	Put(p *model.Pile, cellID, fileID int64, content []byte) error

	// Get returns the content of the object for fileID in the given
	// cell. size is the expected content length after deframing; dctx
	// must hold the unlocked identity.
	Get(p *model.Pile, cellID, fileID, size int64, dctx DecryptionContext) ([]byte, error)

	// CountObjects reports how many objects the cell holds on disk.
	CountObjects(p *model.Pile, cellID int64) (int64, error)
}
