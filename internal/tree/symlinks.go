package tree

import (
	"database/sql"
	"errors"
	"fmt"

	"dstash/internal/database"
	"dstash/internal/model"
)

// CreateSymlink records a symlink with an uninterpreted target. Targets
// are only parsed when a resolution walks through the symlink.
func (s *Store) CreateSymlink(tx *database.Tx, target string) (model.Symlink, error) {
	if err := validateSymlinkTarget(target); err != nil {
		return model.Symlink{}, err
	}

	now := s.now()
	b := s.newBirth(now)
	res, err := tx.Exec(
		`INSERT INTO symlinks (mtime, birth_time, birth_version, birth_hostname, target)
		 VALUES (?, ?, ?, ?, ?)`,
		now, b.Time, b.Version, b.Hostname, target,
	)
	if err != nil {
		return model.Symlink{}, fmt.Errorf("inserting symlink: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Symlink{}, fmt.Errorf("reading new symlink id: %w", err)
	}

	return model.Symlink{ID: id, Mtime: now, Birth: b, Target: target}, nil
}

// SymlinkByID loads one symlink.
func (s *Store) SymlinkByID(tx *database.Tx, id int64) (model.Symlink, error) {
	var l model.Symlink
	err := tx.QueryRow(
		`SELECT id, mtime, birth_time, birth_version, birth_hostname, target
		 FROM symlinks WHERE id = ?`, id,
	).Scan(&l.ID, &l.Mtime, &l.Birth.Time, &l.Birth.Version, &l.Birth.Hostname, &l.Target)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Symlink{}, fmt.Errorf("%w: symlink %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Symlink{}, fmt.Errorf("loading symlink %d: %w", id, err)
	}
	return l, nil
}

// RemoveSymlink deletes a symlink that no dirent references.
func (s *Store) RemoveSymlink(tx *database.Tx, id int64) error {
	if _, err := s.SymlinkByID(tx, id); err != nil {
		return err
	}

	var dirents int64
	if err := tx.QueryRow(`SELECT count(*) FROM dirents WHERE child_symlink = ?`, id).Scan(&dirents); err != nil {
		return fmt.Errorf("counting dirents of symlink %d: %w", id, err)
	}
	if dirents > 0 {
		return fmt.Errorf("%w: symlink %d is still referenced by %d dirents", model.ErrIntegrity, id, dirents)
	}

	if _, err := tx.Exec(`DELETE FROM symlinks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting symlink %d: %w", id, err)
	}
	return nil
}
