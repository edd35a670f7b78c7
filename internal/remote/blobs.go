// Package remote tracks the objects stored at the remote object service:
// individual blobs identified by service locators, and the ordered chunk
// sequences assembled from them that represent whole file contents.
package remote

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dstash/internal/database"
	"dstash/internal/model"
)

// Clock supplies timestamps for registration records.
type Clock interface {
	Now() time.Time
}

// Store is the registry over remote_blobs, chunk_sequences and
// sequence_blobs. All operations run inside a caller-supplied transaction.
type Store struct {
	clock Clock
}

func NewStore(clock Clock) *Store {
	return &Store{clock: clock}
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

// RegisterBlob records one uploaded object. The locator is whatever the
// service handed back at upload time and must be unique.
func (s *Store) RegisterBlob(tx *database.Tx, nb model.NewBlob) (model.Blob, error) {
	if nb.Locator == "" {
		return model.Blob{}, fmt.Errorf("%w: blob locator must not be empty", model.ErrInvalidArgument)
	}
	if nb.Size < 1 {
		return model.Blob{}, fmt.Errorf("%w: blob size must be >= 1, got %d", model.ErrInvalidArgument, nb.Size)
	}

	var taken int64
	if err := tx.QueryRow(`SELECT count(*) FROM remote_blobs WHERE locator = ?`, nb.Locator).Scan(&taken); err != nil {
		return model.Blob{}, fmt.Errorf("checking locator %q: %w", nb.Locator, err)
	}
	if taken > 0 {
		return model.Blob{}, fmt.Errorf("%w: blob %q", model.ErrAlreadyExists, nb.Locator)
	}

	var credID any
	if nb.CredentialID != 0 {
		var n int64
		if err := tx.QueryRow(`SELECT count(*) FROM credentials WHERE id = ?`, nb.CredentialID).Scan(&n); err != nil {
			return model.Blob{}, fmt.Errorf("checking credential %d: %w", nb.CredentialID, err)
		}
		if n == 0 {
			return model.Blob{}, fmt.Errorf("%w: credential %d", model.ErrNotFound, nb.CredentialID)
		}
		credID = nb.CredentialID
	}

	now := s.now()
	if _, err := tx.Exec(
		`INSERT INTO remote_blobs (locator, credential_id, md5, crc32c, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nb.Locator, credID, nb.MD5[:], nb.CRC32C, nb.Size, now,
	); err != nil {
		return model.Blob{}, fmt.Errorf("inserting blob %q: %w", nb.Locator, err)
	}

	return model.Blob{
		Locator:      nb.Locator,
		CredentialID: nb.CredentialID,
		MD5:          nb.MD5,
		CRC32C:       nb.CRC32C,
		Size:         nb.Size,
		CreatedAt:    now,
	}, nil
}

// BlobByLocator loads one registered blob.
func (s *Store) BlobByLocator(tx *database.Tx, locator string) (model.Blob, error) {
	var (
		b      model.Blob
		md5    []byte
		credID sql.NullInt64
		probed sql.NullTime
	)
	err := tx.QueryRow(
		`SELECT locator, credential_id, md5, crc32c, size, created_at, last_probed
		 FROM remote_blobs WHERE locator = ?`, locator,
	).Scan(&b.Locator, &credID, &md5, &b.CRC32C, &b.Size, &b.CreatedAt, &probed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Blob{}, fmt.Errorf("%w: blob %q", model.ErrNotFound, locator)
	}
	if err != nil {
		return model.Blob{}, fmt.Errorf("loading blob %q: %w", locator, err)
	}
	copy(b.MD5[:], md5)
	if credID.Valid {
		b.CredentialID = credID.Int64
	}
	if probed.Valid {
		t := probed.Time
		b.LastProbed = &t
	}
	return b, nil
}

// DeleteBlob removes a blob no sequence references anymore. The caller is
// expected to delete the remote object itself separately.
func (s *Store) DeleteBlob(tx *database.Tx, locator string) error {
	if _, err := s.BlobByLocator(tx, locator); err != nil {
		return err
	}

	var seqID int64
	err := tx.QueryRow(
		`SELECT sequence_id FROM sequence_blobs WHERE locator = ? ORDER BY sequence_id LIMIT 1`,
		locator,
	).Scan(&seqID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: blob %q is referenced by sequence %d", model.ErrIntegrity, locator, seqID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking references of blob %q: %w", locator, err)
	}

	if _, err := tx.Exec(`DELETE FROM remote_blobs WHERE locator = ?`, locator); err != nil {
		return fmt.Errorf("deleting blob %q: %w", locator, err)
	}
	return nil
}

// MarkBlobProbed records that the object was seen intact at the service.
func (s *Store) MarkBlobProbed(tx *database.Tx, locator string, t time.Time) error {
	res, err := tx.Exec(`UPDATE remote_blobs SET last_probed = ? WHERE locator = ?`, t.UTC(), locator)
	if err != nil {
		return fmt.Errorf("marking blob %q probed: %w", locator, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking blob %q probed: %w", locator, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: blob %q", model.ErrNotFound, locator)
	}
	return nil
}
