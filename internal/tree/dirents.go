package tree

import (
	"database/sql"
	"errors"
	"fmt"

	"dstash/internal/database"
	"dstash/internal/model"
)

// Link creates the dirent parent/basename -> child. A directory child
// must not already have a parent and must not be the parent itself or the
// root; linking or unlinking a directory child counts against the
// transaction's single directory-edge budget.
func (s *Store) Link(tx *database.Tx, parentID int64, basename string, child model.NodeRef) error {
	if err := ValidateBasename(basename); err != nil {
		return err
	}
	parent, err := s.DirByID(tx, parentID)
	if err != nil {
		return err
	}
	if err := requireParented(parent); err != nil {
		return err
	}
	return s.link(tx, parent, basename, child)
}

// link assumes parent is loaded and allowed to gain children.
func (s *Store) link(tx *database.Tx, parent model.Directory, basename string, child model.NodeRef) error {
	switch child.Kind {
	case model.KindDir:
		if child.ID == RootID {
			return fmt.Errorf("%w: the root directory cannot be linked as a child", model.ErrCycleRejected)
		}
		if child.ID == parent.ID {
			return fmt.Errorf("%w: directory %d cannot contain itself", model.ErrCycleRejected, child.ID)
		}
		childDir, err := s.DirByID(tx, child.ID)
		if err != nil {
			return err
		}
		if childDir.ParentID != 0 {
			return fmt.Errorf("%w: directory %d already has a parent", model.ErrAlreadyExists, child.ID)
		}
		if err := tx.NoteDirEdge(); err != nil {
			return err
		}
	case model.KindFile:
		if _, err := s.FileByID(tx, child.ID); err != nil {
			return err
		}
	case model.KindSymlink:
		if _, err := s.SymlinkByID(tx, child.ID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: child ref has no kind", model.ErrInvalidArgument)
	}

	var taken int64
	err := tx.QueryRow(`SELECT count(*) FROM dirents WHERE parent_id = ? AND basename = ?`, parent.ID, basename).Scan(&taken)
	if err != nil {
		return fmt.Errorf("checking dirent %q: %w", basename, err)
	}
	if taken > 0 {
		return fmt.Errorf("%w: dirent %q in directory %d", model.ErrAlreadyExists, basename, parent.ID)
	}

	childDir, childFile, childSymlink := refColumns(child)
	if _, err := tx.Exec(
		`INSERT INTO dirents (parent_id, basename, child_dir, child_file, child_symlink) VALUES (?, ?, ?, ?, ?)`,
		parent.ID, basename, childDir, childFile, childSymlink,
	); err != nil {
		return fmt.Errorf("inserting dirent %q: %w", basename, err)
	}

	now := s.now()
	if child.Kind == model.KindDir {
		if _, err := tx.Exec(`UPDATE dirs SET parent_id = ? WHERE id = ?`, parent.ID, child.ID); err != nil {
			return fmt.Errorf("setting parent of dir %d: %w", child.ID, err)
		}
		if _, err := tx.Exec(
			`UPDATE dirs SET dirent_count = dirent_count + 1, child_dir_count = child_dir_count + 1, mtime = ? WHERE id = ?`,
			now, parent.ID,
		); err != nil {
			return fmt.Errorf("updating counters of dir %d: %w", parent.ID, err)
		}
	} else {
		if _, err := tx.Exec(
			`UPDATE dirs SET dirent_count = dirent_count + 1, mtime = ? WHERE id = ?`,
			now, parent.ID,
		); err != nil {
			return fmt.Errorf("updating counters of dir %d: %w", parent.ID, err)
		}
	}
	return nil
}

// Unlink removes the dirent parent/basename. A directory child must be
// empty; its cached parent pointer is cleared, after which it can be
// re-linked elsewhere or removed.
func (s *Store) Unlink(tx *database.Tx, parentID int64, basename string) error {
	if err := ValidateBasename(basename); err != nil {
		return err
	}
	if _, err := s.DirByID(tx, parentID); err != nil {
		return err
	}
	child, err := s.Lookup(tx, parentID, basename)
	if err != nil {
		return err
	}

	if child.Kind == model.KindDir {
		childDir, err := s.DirByID(tx, child.ID)
		if err != nil {
			return err
		}
		if childDir.DirentCount > 0 {
			return fmt.Errorf("%w: directory %d still has %d dirents", model.ErrNotEmpty, child.ID, childDir.DirentCount)
		}
		if err := tx.NoteDirEdge(); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM dirents WHERE parent_id = ? AND basename = ?`, parentID, basename); err != nil {
		return fmt.Errorf("deleting dirent %q: %w", basename, err)
	}

	now := s.now()
	if child.Kind == model.KindDir {
		if _, err := tx.Exec(`UPDATE dirs SET parent_id = NULL WHERE id = ?`, child.ID); err != nil {
			return fmt.Errorf("clearing parent of dir %d: %w", child.ID, err)
		}
		if _, err := tx.Exec(
			`UPDATE dirs SET dirent_count = dirent_count - 1, child_dir_count = child_dir_count - 1, mtime = ? WHERE id = ?`,
			now, parentID,
		); err != nil {
			return fmt.Errorf("updating counters of dir %d: %w", parentID, err)
		}
	} else {
		if _, err := tx.Exec(
			`UPDATE dirs SET dirent_count = dirent_count - 1, mtime = ? WHERE id = ?`,
			now, parentID,
		); err != nil {
			return fmt.Errorf("updating counters of dir %d: %w", parentID, err)
		}
	}
	return nil
}

// Lookup returns the child of the dirent parent/basename without
// following symlinks.
func (s *Store) Lookup(tx *database.Tx, parentID int64, basename string) (model.NodeRef, error) {
	var cd, cf, cs sql.NullInt64
	err := tx.QueryRow(
		`SELECT child_dir, child_file, child_symlink FROM dirents WHERE parent_id = ? AND basename = ?`,
		parentID, basename,
	).Scan(&cd, &cf, &cs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NodeRef{}, fmt.Errorf("%w: no dirent %q in directory %d", model.ErrNotFound, basename, parentID)
	}
	if err != nil {
		return model.NodeRef{}, fmt.Errorf("looking up dirent %q: %w", basename, err)
	}
	return refFromColumns(cd, cf, cs)
}

// List returns the dirents of a directory ordered by basename.
func (s *Store) List(tx *database.Tx, dirID int64) ([]model.Dirent, error) {
	if _, err := s.DirByID(tx, dirID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(
		`SELECT basename, child_dir, child_file, child_symlink FROM dirents WHERE parent_id = ? ORDER BY basename`,
		dirID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing dir %d: %w", dirID, err)
	}
	defer rows.Close()

	var dirents []model.Dirent
	for rows.Next() {
		var basename string
		var cd, cf, cs sql.NullInt64
		if err := rows.Scan(&basename, &cd, &cf, &cs); err != nil {
			return nil, fmt.Errorf("scanning dirent: %w", err)
		}
		ref, err := refFromColumns(cd, cf, cs)
		if err != nil {
			return nil, err
		}
		dirents = append(dirents, model.Dirent{ParentID: dirID, Basename: basename, Child: ref})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing dir %d: %w", dirID, err)
	}
	return dirents, nil
}

// refFromColumns converts the three nullable child columns into a ref.
// The schema guarantees exactly one column is set.
func refFromColumns(dir, file, symlink sql.NullInt64) (model.NodeRef, error) {
	switch {
	case dir.Valid && !file.Valid && !symlink.Valid:
		return model.DirRef(dir.Int64), nil
	case !dir.Valid && file.Valid && !symlink.Valid:
		return model.FileRef(file.Int64), nil
	case !dir.Valid && !file.Valid && symlink.Valid:
		return model.SymlinkRef(symlink.Int64), nil
	default:
		return model.NodeRef{}, fmt.Errorf("dirent does not reference exactly one entity")
	}
}

// refColumns is the inverse of refFromColumns, for inserts.
func refColumns(ref model.NodeRef) (dir, file, symlink any) {
	switch ref.Kind {
	case model.KindDir:
		return ref.ID, nil, nil
	case model.KindFile:
		return nil, ref.ID, nil
	case model.KindSymlink:
		return nil, nil, ref.ID
	default:
		return nil, nil, nil
	}
}
