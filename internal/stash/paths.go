package stash

import (
	"context"
	"errors"
	"fmt"
	"path"

	"dstash/internal/database"
	"dstash/internal/model"
	"dstash/internal/tree"
)

// joinPath builds an absolute path from a directory and a basename.
func joinPath(dir, base string) string {
	return path.Join("/", dir, base)
}

// SplitPath cleans p and splits it into the containing directory and the
// final basename. The root itself has no basename.
func SplitPath(p string) (dir, base string, err error) {
	clean := path.Join("/", p)
	if clean == "/" {
		return "", "", fmt.Errorf("%w: path %q has no basename", model.ErrInvalidArgument, p)
	}
	dir, base = path.Split(clean)
	return dir, base, nil
}

// Mkdir creates a directory at p. The parent must already exist.
func (s *Service) Mkdir(ctx context.Context, p string) (model.Directory, error) {
	dir, base, err := SplitPath(p)
	if err != nil {
		return model.Directory{}, err
	}

	var d model.Directory
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		parentID, err := s.resolveDir(tx, dir)
		if err != nil {
			return err
		}
		d, err = s.tree.CreateDirectory(tx, parentID, base)
		return err
	})
	if err != nil {
		return model.Directory{}, err
	}
	s.logger.Info("directory created", "path", joinPath(dir, base), "dir_id", d.ID)
	return d, nil
}

// Symlink creates a symlink at p pointing at target. The target is
// stored uninterpreted and may dangle.
func (s *Service) Symlink(ctx context.Context, target, p string) (model.Symlink, error) {
	dir, base, err := SplitPath(p)
	if err != nil {
		return model.Symlink{}, err
	}

	var l model.Symlink
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		parentID, err := s.resolveDir(tx, dir)
		if err != nil {
			return err
		}
		l, err = s.tree.CreateSymlink(tx, target)
		if err != nil {
			return err
		}
		return s.tree.Link(tx, parentID, base, model.SymlinkRef(l.ID))
	})
	if err != nil {
		return model.Symlink{}, err
	}
	s.logger.Info("symlink created", "path", joinPath(dir, base), "symlink_id", l.ID, "target", target)
	return l, nil
}

// Ln links the entity at existing under a second path. The existing path
// is resolved without following a final symlink, so symlinks can be
// re-linked as themselves. Directories that already have a parent are
// rejected by the link itself.
func (s *Service) Ln(ctx context.Context, existing, p string) (model.NodeRef, error) {
	dir, base, err := SplitPath(p)
	if err != nil {
		return model.NodeRef{}, err
	}

	var ref model.NodeRef
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		ref, err = s.tree.Resolve(tx, tree.RootID, existing)
		if err != nil {
			return err
		}
		parentID, err := s.resolveDir(tx, dir)
		if err != nil {
			return err
		}
		return s.tree.Link(tx, parentID, base, ref)
	})
	if err != nil {
		return model.NodeRef{}, err
	}
	s.logger.Info("entity linked", "path", joinPath(dir, base), "kind", ref.Kind, "id", ref.ID)
	return ref, nil
}

// Rm unlinks the dirent at p. An empty directory is removed outright.
// A file or symlink entity is removed too when nothing else holds it;
// other dirents or storage bindings keep the entity alive with only the
// dirent gone.
func (s *Service) Rm(ctx context.Context, p string) error {
	dir, base, err := SplitPath(p)
	if err != nil {
		return err
	}

	var (
		ref     model.NodeRef
		removed bool
	)
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		parentID, err := s.resolveDir(tx, dir)
		if err != nil {
			return err
		}
		ref, err = s.tree.Lookup(tx, parentID, base)
		if err != nil {
			return err
		}
		if err := s.tree.Unlink(tx, parentID, base); err != nil {
			return err
		}

		switch ref.Kind {
		case model.KindDir:
			// Unlink already guaranteed emptiness.
			err = s.tree.RemoveDirectory(tx, ref.ID)
		case model.KindFile:
			err = s.tree.RemoveFile(tx, ref.ID)
		case model.KindSymlink:
			err = s.tree.RemoveSymlink(tx, ref.ID)
		}
		if errors.Is(err, model.ErrIntegrity) {
			return nil
		}
		if err == nil {
			removed = true
		}
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("dirent removed", "path", joinPath(dir, base), "kind", ref.Kind, "id", ref.ID, "entity_removed", removed)
	return nil
}

// Ls lists the directory at p ordered by basename.
func (s *Service) Ls(ctx context.Context, p string) ([]model.Dirent, error) {
	var dirents []model.Dirent
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		dirents, err = s.tree.ListPath(tx, tree.RootID, p)
		return err
	})
	return dirents, err
}

// NodeInfo describes the entity at a path. Exactly one of Dir, File and
// Symlink is set, and Bindings is populated for files only.
type NodeInfo struct {
	Ref      model.NodeRef
	Dir      *model.Directory
	File     *model.File
	Symlink  *model.Symlink
	Bindings []model.Binding
}

// Info inspects the entity at p without following a final symlink.
func (s *Service) Info(ctx context.Context, p string) (NodeInfo, error) {
	var info NodeInfo
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		ref, err := s.tree.Resolve(tx, tree.RootID, p)
		if err != nil {
			return err
		}
		info.Ref = ref

		switch ref.Kind {
		case model.KindDir:
			d, err := s.tree.DirByID(tx, ref.ID)
			if err != nil {
				return err
			}
			info.Dir = &d
		case model.KindFile:
			f, err := s.tree.FileByID(tx, ref.ID)
			if err != nil {
				return err
			}
			info.File = &f
			info.Bindings, err = s.storage.BindingsForFile(tx, f.ID)
			if err != nil {
				return err
			}
		case model.KindSymlink:
			l, err := s.tree.SymlinkByID(tx, ref.ID)
			if err != nil {
				return err
			}
			info.Symlink = &l
		}
		return nil
	})
	if err != nil {
		return NodeInfo{}, err
	}
	return info, nil
}
