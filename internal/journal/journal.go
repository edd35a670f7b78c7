// Package journal records the CLI operations that mutate the store, so
// an administrator can see what touched the database and when.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dstash/internal/database"
	"dstash/internal/model"
)

// Outcomes recorded by Finish. A row keeps StatusRunning until the
// operation finishes; rows stuck there mark interrupted runs.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Clock abstracts time retrieval so tests are deterministic.
type Clock interface {
	Now() time.Time
}

// Store runs the journal operations inside caller-supplied transactions.
type Store struct {
	clock Clock
}

func NewStore(clock Clock) *Store {
	return &Store{clock: clock}
}

// Begin inserts a running journal entry for the named operation.
func (s *Store) Begin(tx *database.Tx, operation, parameters string) (model.Operation, error) {
	if operation == "" {
		return model.Operation{}, fmt.Errorf("%w: operation name must not be empty", model.ErrInvalidArgument)
	}

	now := s.clock.Now().UTC()
	res, err := tx.Exec(
		`INSERT INTO operations (operation, parameters, started_at, status) VALUES (?, ?, ?, ?)`,
		operation, parameters, now, StatusRunning,
	)
	if err != nil {
		return model.Operation{}, fmt.Errorf("inserting operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Operation{}, fmt.Errorf("reading new operation id: %w", err)
	}

	return model.Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  now,
		Status:     StatusRunning,
	}, nil
}

// Finish stamps the outcome and finish time on a running entry.
func (s *Store) Finish(tx *database.Tx, id int64, status string) error {
	if status != StatusSuccess && status != StatusError {
		return fmt.Errorf("%w: finish status must be %q or %q, got %q",
			model.ErrInvalidArgument, StatusSuccess, StatusError, status)
	}

	res, err := tx.Exec(
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		s.clock.Now().UTC(), status, id,
	)
	if err != nil {
		return fmt.Errorf("finishing operation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: operation %d", model.ErrNotFound, id)
	}
	return nil
}

// ByID loads one journal entry.
func (s *Store) ByID(tx *database.Tx, id int64) (model.Operation, error) {
	var (
		op       model.Operation
		finished sql.NullTime
	)
	err := tx.QueryRow(
		`SELECT id, operation, parameters, started_at, finished_at, status
		 FROM operations WHERE id = ?`, id,
	).Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Operation{}, fmt.Errorf("%w: operation %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Operation{}, fmt.Errorf("loading operation %d: %w", id, err)
	}
	if finished.Valid {
		t := finished.Time
		op.FinishedAt = &t
	}
	return op, nil
}

// Recent lists the newest entries first, at most limit of them.
func (s *Store) Recent(tx *database.Tx, limit int) ([]model.Operation, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := tx.Query(
		`SELECT id, operation, parameters, started_at, finished_at, status
		 FROM operations ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		var (
			op       model.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
