package storage

import (
	"fmt"
	"strconv"

	"dstash/internal/database"
	"dstash/internal/model"
)

// Bind records that one representation of the file's content lives at
// locator within domain. The referent must already exist: a sequence id
// for remote, an inline content id for inline, a cell id for pile.
// Archive locators point outside the engine and are taken as given.
func (s *Store) Bind(tx *database.Tx, fileID int64, domain model.Domain, locator string) error {
	if !domain.Valid() {
		return fmt.Errorf("%w: unknown storage domain %q", model.ErrInvalidArgument, domain)
	}
	if locator == "" {
		return fmt.Errorf("%w: binding locator must not be empty", model.ErrInvalidArgument)
	}

	var files int64
	if err := tx.QueryRow(`SELECT count(*) FROM files WHERE id = ?`, fileID).Scan(&files); err != nil {
		return fmt.Errorf("checking file %d: %w", fileID, err)
	}
	if files == 0 {
		return fmt.Errorf("%w: file %d", model.ErrNotFound, fileID)
	}

	if err := s.checkReferent(tx, domain, locator); err != nil {
		return err
	}

	var taken int64
	if err := tx.QueryRow(
		`SELECT count(*) FROM storage_bindings WHERE file_id = ? AND domain = ? AND locator = ?`,
		fileID, string(domain), locator,
	).Scan(&taken); err != nil {
		return fmt.Errorf("checking binding: %w", err)
	}
	if taken > 0 {
		return fmt.Errorf("%w: file %d already bound to %s locator %q",
			model.ErrAlreadyExists, fileID, domain, locator)
	}

	if _, err := tx.Exec(
		`INSERT INTO storage_bindings (file_id, domain, locator, created_at) VALUES (?, ?, ?, ?)`,
		fileID, string(domain), locator, s.now(),
	); err != nil {
		return fmt.Errorf("inserting binding: %w", err)
	}
	return nil
}

func (s *Store) checkReferent(tx *database.Tx, domain model.Domain, locator string) error {
	var (
		query string
		arg   any = locator
	)
	switch domain {
	case model.DomainRemote:
		id, err := strconv.ParseInt(locator, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: remote locator %q is not a sequence id", model.ErrInvalidArgument, locator)
		}
		query, arg = `SELECT count(*) FROM chunk_sequences WHERE id = ?`, id
	case model.DomainInline:
		id, err := strconv.ParseInt(locator, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: inline locator %q is not a content id", model.ErrInvalidArgument, locator)
		}
		query, arg = `SELECT count(*) FROM inline_contents WHERE id = ?`, id
	case model.DomainPile:
		id, err := strconv.ParseInt(locator, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: pile locator %q is not a cell id", model.ErrInvalidArgument, locator)
		}
		query, arg = `SELECT count(*) FROM cells WHERE id = ?`, id
	case model.DomainArchive:
		return nil
	}

	var n int64
	if err := tx.QueryRow(query, arg).Scan(&n); err != nil {
		return fmt.Errorf("checking %s locator %q: %w", domain, locator, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s locator %q", model.ErrNotFound, domain, locator)
	}
	return nil
}

// Unbind removes one binding.
func (s *Store) Unbind(tx *database.Tx, fileID int64, domain model.Domain, locator string) error {
	res, err := tx.Exec(
		`DELETE FROM storage_bindings WHERE file_id = ? AND domain = ? AND locator = ?`,
		fileID, string(domain), locator,
	)
	if err != nil {
		return fmt.Errorf("deleting binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting binding: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: file %d has no %s binding for %q", model.ErrNotFound, fileID, domain, locator)
	}
	return nil
}

// CountBindings reports how many files are bound to the given locator
// within domain. The write pipeline uses this as the cheap estimate of a
// cell's population.
func (s *Store) CountBindings(tx *database.Tx, domain model.Domain, locator string) (int64, error) {
	var n int64
	if err := tx.QueryRow(
		`SELECT count(*) FROM storage_bindings WHERE domain = ? AND locator = ?`,
		string(domain), locator,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s bindings for %q: %w", domain, locator, err)
	}
	return n, nil
}

// BindingsForFile lists the file's bindings in read-preference order,
// fastest domain first.
func (s *Store) BindingsForFile(tx *database.Tx, fileID int64) ([]model.Binding, error) {
	rows, err := tx.Query(
		`SELECT file_id, domain, locator, created_at FROM storage_bindings
		 WHERE file_id = ?
		 ORDER BY CASE domain
		   WHEN 'pile' THEN 0 WHEN 'inline' THEN 1 WHEN 'remote' THEN 2 ELSE 3
		 END, locator`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing bindings of file %d: %w", fileID, err)
	}
	defer rows.Close()

	var bindings []model.Binding
	for rows.Next() {
		var (
			b      model.Binding
			domain string
		)
		if err := rows.Scan(&b.FileID, &domain, &b.Locator, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning binding: %w", err)
		}
		b.Domain = model.Domain(domain)
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing bindings of file %d: %w", fileID, err)
	}
	return bindings, nil
}
