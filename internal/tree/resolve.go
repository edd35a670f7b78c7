package tree

import (
	"fmt"
	"strings"

	"dstash/internal/database"
	"dstash/internal/model"
)

// symlinkBudget bounds the total number of symlink expansions in one
// resolution, mirroring the kernel's ELOOP limit.
const symlinkBudget = 40

// Resolve walks a '/'-separated path from the directory start. Empty
// segments and '.' are no-ops, a leading '/' resets to the root, and '..'
// follows the cached parent pointer (at the root, '..' stays at the
// root). Symlinks in intermediate positions are expanded relative to the
// directory containing them; a symlink in the final position is returned
// as-is.
func (s *Store) Resolve(tx *database.Tx, startID int64, path string) (model.NodeRef, error) {
	budget := symlinkBudget
	return s.walk(tx, startID, path, false, &budget)
}

// ResolveFollow is Resolve with a final symlink expanded too, sharing the
// same overall expansion budget.
func (s *Store) ResolveFollow(tx *database.Tx, startID int64, path string) (model.NodeRef, error) {
	budget := symlinkBudget
	return s.walk(tx, startID, path, true, &budget)
}

// ListPath resolves path from start, following symlinks, and lists the
// resulting directory.
func (s *Store) ListPath(tx *database.Tx, startID int64, path string) ([]model.Dirent, error) {
	ref, err := s.ResolveFollow(tx, startID, path)
	if err != nil {
		return nil, err
	}
	if ref.Kind != model.KindDir {
		return nil, fmt.Errorf("%w: %s", model.ErrNotADirectory, ref)
	}
	return s.List(tx, ref.ID)
}

func (s *Store) walk(tx *database.Tx, startID int64, path string, followFinal bool, budget *int) (model.NodeRef, error) {
	cur, err := s.DirByID(tx, startID)
	if err != nil {
		return model.NodeRef{}, err
	}
	if strings.HasPrefix(path, "/") {
		cur, err = s.DirByID(tx, RootID)
		if err != nil {
			return model.NodeRef{}, err
		}
	}

	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." {
			continue
		}
		segs = append(segs, seg)
	}

	for i, seg := range segs {
		final := i == len(segs)-1

		if seg == ".." {
			if cur.ParentID == 0 {
				return model.NodeRef{}, fmt.Errorf("%w: directory %d", model.ErrNoParent, cur.ID)
			}
			cur, err = s.DirByID(tx, cur.ParentID)
			if err != nil {
				return model.NodeRef{}, err
			}
			continue
		}

		child, err := s.Lookup(tx, cur.ID, seg)
		if err != nil {
			return model.NodeRef{}, err
		}

		if child.Kind == model.KindSymlink {
			if final && !followFinal {
				return child, nil
			}
			link, err := s.SymlinkByID(tx, child.ID)
			if err != nil {
				return model.NodeRef{}, err
			}
			*budget--
			if *budget < 0 {
				return model.NodeRef{}, fmt.Errorf("%w: more than %d expansions resolving %q", model.ErrSymlinkLoop, symlinkBudget, seg)
			}
			// The target is resolved relative to the directory holding
			// the symlink, fully, since a partial result is only usable
			// if it is a directory anyway.
			resolved, err := s.walk(tx, cur.ID, link.Target, true, budget)
			if err != nil {
				return model.NodeRef{}, err
			}
			if final {
				return resolved, nil
			}
			if resolved.Kind != model.KindDir {
				return model.NodeRef{}, fmt.Errorf("%w: %q resolves to %s", model.ErrNotADirectory, seg, resolved)
			}
			cur, err = s.DirByID(tx, resolved.ID)
			if err != nil {
				return model.NodeRef{}, err
			}
			continue
		}

		if final {
			return child, nil
		}
		if child.Kind != model.KindDir {
			return model.NodeRef{}, fmt.Errorf("%w: %q is a %s", model.ErrNotADirectory, seg, child.Kind)
		}
		cur, err = s.DirByID(tx, child.ID)
		if err != nil {
			return model.NodeRef{}, err
		}
	}

	// Nothing left to consume: the walk ended on a directory.
	return model.DirRef(cur.ID), nil
}
