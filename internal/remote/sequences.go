package remote

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dstash/internal/database"
	"dstash/internal/model"
)

// CreateSequence registers an ordered chunk sequence over already
// registered blobs. The key is the content encryption key for every chunk
// in the sequence.
func (s *Store) CreateSequence(tx *database.Tx, cipher model.Cipher, key []byte, locators []string) (model.Sequence, error) {
	if len(locators) == 0 {
		return model.Sequence{}, fmt.Errorf("%w: a sequence needs at least one blob", model.ErrInvalidArgument)
	}
	if !cipher.Valid() {
		return model.Sequence{}, fmt.Errorf("%w: unknown cipher %q", model.ErrInvalidArgument, cipher)
	}
	if len(key) != cipher.KeyLen() {
		return model.Sequence{}, fmt.Errorf("%w: cipher %s takes %d-byte keys, got %d",
			model.ErrKeyLength, cipher, cipher.KeyLen(), len(key))
	}

	// One count over the listed locators catches both unregistered and
	// duplicated entries: either way the matches fall short of the list.
	query := `SELECT count(*) FROM remote_blobs WHERE locator IN (?` +
		strings.Repeat(", ?", len(locators)-1) + `)`
	args := make([]any, len(locators))
	for i, loc := range locators {
		args[i] = loc
	}
	var registered int64
	if err := tx.QueryRow(query, args...).Scan(&registered); err != nil {
		return model.Sequence{}, fmt.Errorf("counting registered blobs: %w", err)
	}
	if registered != int64(len(locators)) {
		return model.Sequence{}, fmt.Errorf("%w: %d blobs listed, %d registered",
			model.ErrIntegrity, len(locators), registered)
	}

	now := s.now()
	res, err := tx.Exec(
		`INSERT INTO chunk_sequences (cipher, cipher_key, created_at) VALUES (?, ?, ?)`,
		string(cipher), key, now,
	)
	if err != nil {
		return model.Sequence{}, fmt.Errorf("inserting sequence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Sequence{}, fmt.Errorf("reading new sequence id: %w", err)
	}

	for i, loc := range locators {
		if _, err := tx.Exec(
			`INSERT INTO sequence_blobs (sequence_id, position, locator) VALUES (?, ?, ?)`,
			id, i, loc,
		); err != nil {
			return model.Sequence{}, fmt.Errorf("inserting sequence %d position %d: %w", id, i, err)
		}
	}

	return model.Sequence{
		ID:        id,
		Cipher:    cipher,
		Key:       key,
		Locators:  locators,
		CreatedAt: now,
	}, nil
}

// SequenceByID loads a sequence with its locators in chunk order.
func (s *Store) SequenceByID(tx *database.Tx, id int64) (model.Sequence, error) {
	var (
		seq    model.Sequence
		cipher string
	)
	err := tx.QueryRow(
		`SELECT id, cipher, cipher_key, created_at FROM chunk_sequences WHERE id = ?`, id,
	).Scan(&seq.ID, &cipher, &seq.Key, &seq.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Sequence{}, fmt.Errorf("%w: sequence %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Sequence{}, fmt.Errorf("loading sequence %d: %w", id, err)
	}
	seq.Cipher = model.Cipher(cipher)

	rows, err := tx.Query(`SELECT locator FROM sequence_blobs WHERE sequence_id = ? ORDER BY position`, id)
	if err != nil {
		return model.Sequence{}, fmt.Errorf("loading sequence %d blobs: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return model.Sequence{}, fmt.Errorf("scanning sequence %d blob: %w", id, err)
		}
		seq.Locators = append(seq.Locators, loc)
	}
	if err := rows.Err(); err != nil {
		return model.Sequence{}, fmt.Errorf("loading sequence %d blobs: %w", id, err)
	}
	return seq, nil
}

// DeleteSequence drops a sequence, its position rows, and any storage
// bindings pointing at it. Deletion is always permitted; the underlying
// blobs stay registered and become deletable once no sequence lists them.
func (s *Store) DeleteSequence(tx *database.Tx, id int64) error {
	var n int64
	if err := tx.QueryRow(`SELECT count(*) FROM chunk_sequences WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("checking sequence %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: sequence %d", model.ErrNotFound, id)
	}

	if _, err := tx.Exec(
		`DELETE FROM storage_bindings WHERE domain = ? AND locator = ?`,
		string(model.DomainRemote), strconv.FormatInt(id, 10),
	); err != nil {
		return fmt.Errorf("unbinding sequence %d: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM sequence_blobs WHERE sequence_id = ?`, id); err != nil {
		return fmt.Errorf("deleting sequence %d blobs: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM chunk_sequences WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting sequence %d: %w", id, err)
	}
	return nil
}

// SequencesUsingBlob lists the ids of sequences that include the locator.
func (s *Store) SequencesUsingBlob(tx *database.Tx, locator string) ([]int64, error) {
	rows, err := tx.Query(
		`SELECT DISTINCT sequence_id FROM sequence_blobs WHERE locator = ? ORDER BY sequence_id`,
		locator,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sequences using %q: %w", locator, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning sequence id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sequences using %q: %w", locator, err)
	}
	return ids, nil
}
