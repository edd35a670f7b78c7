package tree

import (
	"database/sql"
	"errors"
	"fmt"

	"dstash/internal/database"
	"dstash/internal/model"
)

// CreateFile records a file. Size and the executable bit are immutable
// afterwards; content is attached separately through storage bindings,
// and parenting is optional (files may stay unreachable or be linked at
// several places).
func (s *Store) CreateFile(tx *database.Tx, nf model.NewFile) (model.File, error) {
	if nf.Size < 0 {
		return model.File{}, fmt.Errorf("%w: file size must be >= 0, got %d", model.ErrInvalidArgument, nf.Size)
	}
	if nf.B3Sum != nil && len(nf.B3Sum) != 32 {
		return model.File{}, fmt.Errorf("%w: b3sum must be 32 bytes, got %d", model.ErrInvalidArgument, len(nf.B3Sum))
	}

	now := s.now()
	b := s.newBirth(now)
	mtime := nf.Mtime
	if mtime.IsZero() {
		mtime = now
	} else {
		mtime = mtime.UTC()
	}

	res, err := tx.Exec(
		`INSERT INTO files (mtime, birth_time, birth_version, birth_hostname, size, executable, b3sum)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mtime, b.Time, b.Version, b.Hostname, nf.Size, nf.Executable, nf.B3Sum,
	)
	if err != nil {
		return model.File{}, fmt.Errorf("inserting file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.File{}, fmt.Errorf("reading new file id: %w", err)
	}

	return model.File{
		ID:         id,
		Mtime:      mtime,
		Birth:      b,
		Size:       nf.Size,
		Executable: nf.Executable,
		B3Sum:      nf.B3Sum,
	}, nil
}

// FileByID loads one file.
func (s *Store) FileByID(tx *database.Tx, id int64) (model.File, error) {
	var f model.File
	err := tx.QueryRow(
		`SELECT id, mtime, birth_time, birth_version, birth_hostname, size, executable, b3sum
		 FROM files WHERE id = ?`, id,
	).Scan(&f.ID, &f.Mtime, &f.Birth.Time, &f.Birth.Version, &f.Birth.Hostname, &f.Size, &f.Executable, &f.B3Sum)
	if errors.Is(err, sql.ErrNoRows) {
		return model.File{}, fmt.Errorf("%w: file %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.File{}, fmt.Errorf("loading file %d: %w", id, err)
	}
	return f, nil
}

// RemoveFile deletes a file that nothing references. Dirents and storage
// bindings must be removed first.
func (s *Store) RemoveFile(tx *database.Tx, id int64) error {
	if _, err := s.FileByID(tx, id); err != nil {
		return err
	}

	var dirents int64
	if err := tx.QueryRow(`SELECT count(*) FROM dirents WHERE child_file = ?`, id).Scan(&dirents); err != nil {
		return fmt.Errorf("counting dirents of file %d: %w", id, err)
	}
	if dirents > 0 {
		return fmt.Errorf("%w: file %d is still referenced by %d dirents", model.ErrIntegrity, id, dirents)
	}

	var bindings int64
	if err := tx.QueryRow(`SELECT count(*) FROM storage_bindings WHERE file_id = ?`, id).Scan(&bindings); err != nil {
		return fmt.Errorf("counting bindings of file %d: %w", id, err)
	}
	if bindings > 0 {
		return fmt.Errorf("%w: file %d still has %d storage bindings", model.ErrIntegrity, id, bindings)
	}

	if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting file %d: %w", id, err)
	}
	return nil
}
