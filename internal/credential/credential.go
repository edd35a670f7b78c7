// Package credential manages the accounts used for remote uploads and
// picks which one to try next when several share a pool.
package credential

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"dstash/internal/database"
	"dstash/internal/model"
)

// Store is the registry over the credentials table.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Add registers an account under a pool. The pair (pool, owner) is unique.
func (s *Store) Add(tx *database.Tx, pool, owner string) (model.Credential, error) {
	if pool == "" {
		return model.Credential{}, fmt.Errorf("%w: credential pool must not be empty", model.ErrInvalidArgument)
	}
	if owner == "" {
		return model.Credential{}, fmt.Errorf("%w: credential owner must not be empty", model.ErrInvalidArgument)
	}

	var taken int64
	if err := tx.QueryRow(
		`SELECT count(*) FROM credentials WHERE pool = ? AND owner = ?`, pool, owner,
	).Scan(&taken); err != nil {
		return model.Credential{}, fmt.Errorf("checking credential %s/%s: %w", pool, owner, err)
	}
	if taken > 0 {
		return model.Credential{}, fmt.Errorf("%w: credential %s/%s", model.ErrAlreadyExists, pool, owner)
	}

	res, err := tx.Exec(`INSERT INTO credentials (pool, owner) VALUES (?, ?)`, pool, owner)
	if err != nil {
		return model.Credential{}, fmt.Errorf("inserting credential %s/%s: %w", pool, owner, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Credential{}, fmt.Errorf("reading new credential id: %w", err)
	}

	return model.Credential{ID: id, Pool: pool, Owner: owner}, nil
}

// ByID loads one credential.
func (s *Store) ByID(tx *database.Tx, id int64) (model.Credential, error) {
	var (
		c         model.Credential
		exhausted sql.NullTime
	)
	err := tx.QueryRow(
		`SELECT id, pool, owner, quota_exhausted_at FROM credentials WHERE id = ?`, id,
	).Scan(&c.ID, &c.Pool, &c.Owner, &exhausted)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, fmt.Errorf("%w: credential %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("loading credential %d: %w", id, err)
	}
	if exhausted.Valid {
		t := exhausted.Time
		c.QuotaExhaustedAt = &t
	}
	return c, nil
}

// ByPool lists the credentials registered under a pool, oldest first.
func (s *Store) ByPool(tx *database.Tx, pool string) ([]model.Credential, error) {
	rows, err := tx.Query(
		`SELECT id, pool, owner, quota_exhausted_at FROM credentials WHERE pool = ? ORDER BY id`, pool,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pool %q: %w", pool, err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		var (
			c         model.Credential
			exhausted sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Pool, &c.Owner, &exhausted); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		if exhausted.Valid {
			t := exhausted.Time
			c.QuotaExhaustedAt = &t
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing pool %q: %w", pool, err)
	}
	return creds, nil
}

// MarkExhausted records that the service denied an upload for quota at t.
func (s *Store) MarkExhausted(tx *database.Tx, id int64, at time.Time) error {
	res, err := tx.Exec(`UPDATE credentials SET quota_exhausted_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking credential %d exhausted: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking credential %d exhausted: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: credential %d", model.ErrNotFound, id)
	}
	return nil
}

// ClearExhausted forgets a recorded quota denial, usually after the
// service's quota window has rolled over.
func (s *Store) ClearExhausted(tx *database.Tx, id int64) error {
	res, err := tx.Exec(`UPDATE credentials SET quota_exhausted_at = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clearing credential %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("clearing credential %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: credential %d", model.ErrNotFound, id)
	}
	return nil
}

// Select picks the credential to try next. Never-exhausted candidates win
// outright; among exhausted ones the oldest denial wins, since it is the
// most likely to have rolled over. Ties are broken at random so repeated
// uploads spread across equivalent accounts.
func Select(candidates []model.Credential) (model.Credential, error) {
	if len(candidates) == 0 {
		return model.Credential{}, fmt.Errorf("%w: no credentials to choose from", model.ErrNotFound)
	}

	best := []model.Credential{candidates[0]}
	for _, c := range candidates[1:] {
		switch cmp := compare(c, best[0]); {
		case cmp < 0:
			best = best[:1]
			best[0] = c
		case cmp == 0:
			best = append(best, c)
		}
	}
	return best[rand.Intn(len(best))], nil
}

func compare(a, b model.Credential) int {
	switch {
	case a.QuotaExhaustedAt == nil && b.QuotaExhaustedAt == nil:
		return 0
	case a.QuotaExhaustedAt == nil:
		return -1
	case b.QuotaExhaustedAt == nil:
		return 1
	default:
		return a.QuotaExhaustedAt.Compare(*b.QuotaExhaustedAt)
	}
}
