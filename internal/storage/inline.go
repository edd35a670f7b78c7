package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"dstash/internal/codec"
	"dstash/internal/database"
	"dstash/internal/model"
)

// PutInline compresses content and stores it in the durable store itself.
// The returned id is the binding locator for the inline domain.
func (s *Store) PutInline(tx *database.Tx, content []byte) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO inline_contents (content_zstd, created_at) VALUES (?, ?)`,
		codec.Compress(content), s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting inline content: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading new inline content id: %w", err)
	}
	return id, nil
}

// GetInline loads and decompresses one inline payload.
func (s *Store) GetInline(tx *database.Tx, id int64) ([]byte, error) {
	var compressed []byte
	err := tx.QueryRow(`SELECT content_zstd FROM inline_contents WHERE id = ?`, id).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: inline content %d", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading inline content %d: %w", id, err)
	}

	content, err := codec.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: inline content %d: %v", model.ErrIntegrity, id, err)
	}
	return content, nil
}

// DeleteInline removes an inline payload nothing binds to anymore.
func (s *Store) DeleteInline(tx *database.Tx, id int64) error {
	var bound int64
	if err := tx.QueryRow(
		`SELECT count(*) FROM storage_bindings WHERE domain = 'inline' AND locator = ?`,
		fmt.Sprint(id),
	).Scan(&bound); err != nil {
		return fmt.Errorf("checking bindings of inline content %d: %w", id, err)
	}
	if bound > 0 {
		return fmt.Errorf("%w: inline content %d is bound by %d files", model.ErrIntegrity, id, bound)
	}

	res, err := tx.Exec(`DELETE FROM inline_contents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting inline content %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting inline content %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: inline content %d", model.ErrNotFound, id)
	}
	return nil
}
