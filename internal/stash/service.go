package stash

import (
	"fmt"

	"dstash/internal/chunkenc"
	"dstash/internal/credential"
	"dstash/internal/database"
	"dstash/internal/model"
	"dstash/internal/placement"
	"dstash/internal/remote"
	"dstash/internal/storage"
	"dstash/internal/tree"
)

// Service is the orchestration layer that coordinates the tree, the
// storage registries, placement, chunking and transfer to perform the
// whole-file operations the CLI needs.
type Service struct {
	db       *database.DB
	tree     *tree.Store
	storage  *storage.Store
	remote   *remote.Store
	creds    *credential.Store
	policy   placement.Policy
	transfer Transfer
	cells    CellStore
	split    chunkenc.SplitParams
	logger   Logger
	clock    Clock
	birth    model.Birth
}

// NewService creates a Service with the provided dependencies. The birth
// hostname decides which piles count as local to this process.
func NewService(
	db *database.DB,
	treeStore *tree.Store,
	storageStore *storage.Store,
	remoteStore *remote.Store,
	credStore *credential.Store,
	policy placement.Policy,
	transfer Transfer,
	cells CellStore,
	split chunkenc.SplitParams,
	logger Logger,
	clock Clock,
	birth model.Birth,
) *Service {
	return &Service{
		db:       db,
		tree:     treeStore,
		storage:  storageStore,
		remote:   remoteStore,
		creds:    credStore,
		policy:   policy,
		transfer: transfer,
		cells:    cells,
		split:    split,
		logger:   logger,
		clock:    clock,
		birth:    birth,
	}
}

// resolveDir resolves a path that must name a directory, following
// symlinks all the way.
func (s *Service) resolveDir(tx *database.Tx, p string) (int64, error) {
	ref, err := s.tree.ResolveFollow(tx, tree.RootID, p)
	if err != nil {
		return 0, err
	}
	if ref.Kind != model.KindDir {
		return 0, fmt.Errorf("%w: %q is a %s", model.ErrNotADirectory, p, ref.Kind)
	}
	return ref.ID, nil
}
