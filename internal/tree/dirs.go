package tree

import (
	"database/sql"
	"errors"
	"fmt"

	"dstash/internal/database"
	"dstash/internal/model"
)

// CreateDirectory creates a directory and links it under parent in one
// atomic step. The parent must exist and must not be unparented (the
// root is exempt), and basename must be free in it.
func (s *Store) CreateDirectory(tx *database.Tx, parentID int64, basename string) (model.Directory, error) {
	if err := ValidateBasename(basename); err != nil {
		return model.Directory{}, err
	}
	parent, err := s.DirByID(tx, parentID)
	if err != nil {
		return model.Directory{}, err
	}
	if err := requireParented(parent); err != nil {
		return model.Directory{}, err
	}

	now := s.now()
	b := s.newBirth(now)
	res, err := tx.Exec(
		`INSERT INTO dirs (mtime, birth_time, birth_version, birth_hostname) VALUES (?, ?, ?, ?)`,
		now, b.Time, b.Version, b.Hostname,
	)
	if err != nil {
		return model.Directory{}, fmt.Errorf("inserting dir: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Directory{}, fmt.Errorf("reading new dir id: %w", err)
	}

	if err := s.link(tx, parent, basename, model.DirRef(id)); err != nil {
		return model.Directory{}, err
	}

	return s.DirByID(tx, id)
}

// DirByID loads one directory, including its derived counters and cached
// parent pointer.
func (s *Store) DirByID(tx *database.Tx, id int64) (model.Directory, error) {
	var d model.Directory
	var parent sql.NullInt64
	err := tx.QueryRow(
		`SELECT id, mtime, birth_time, birth_version, birth_hostname, parent_id, dirent_count, child_dir_count
		 FROM dirs WHERE id = ?`, id,
	).Scan(&d.ID, &d.Mtime, &d.Birth.Time, &d.Birth.Version, &d.Birth.Hostname, &parent, &d.DirentCount, &d.ChildDirCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Directory{}, fmt.Errorf("%w: dir %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Directory{}, fmt.Errorf("loading dir %d: %w", id, err)
	}
	if parent.Valid {
		d.ParentID = parent.Int64
	}
	return d, nil
}

// RemoveDirectory deletes a directory. The directory must have no
// outgoing dirents; if it is still linked, its incoming dirent is removed
// first, which counts as the transaction's directory-edge change. The id
// is never reused.
func (s *Store) RemoveDirectory(tx *database.Tx, id int64) error {
	if id == RootID {
		return fmt.Errorf("%w: the root directory cannot be removed", model.ErrInvalidArgument)
	}
	d, err := s.DirByID(tx, id)
	if err != nil {
		return err
	}
	if d.DirentCount > 0 {
		return fmt.Errorf("%w: directory %d still has %d dirents", model.ErrNotEmpty, id, d.DirentCount)
	}

	if d.ParentID != 0 {
		var basename string
		err := tx.QueryRow(`SELECT basename FROM dirents WHERE child_dir = ?`, id).Scan(&basename)
		if err != nil {
			return fmt.Errorf("loading incoming dirent of dir %d: %w", id, err)
		}
		if err := s.Unlink(tx, d.ParentID, basename); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM dirs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting dir %d: %w", id, err)
	}
	return nil
}
