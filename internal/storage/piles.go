package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"dstash/internal/database"
	"dstash/internal/model"
)

// CreatePile registers a local disk storage root on a host. Cells are
// added lazily as content arrives.
func (s *Store) CreatePile(tx *database.Tx, hostname, root string, filesPerCell int64, fullnessCheckRatio float64) (model.Pile, error) {
	if hostname == "" {
		return model.Pile{}, fmt.Errorf("%w: pile hostname must not be empty", model.ErrInvalidArgument)
	}
	if root == "" {
		return model.Pile{}, fmt.Errorf("%w: pile root must not be empty", model.ErrInvalidArgument)
	}
	if filesPerCell < 1 {
		return model.Pile{}, fmt.Errorf("%w: files per cell must be >= 1, got %d", model.ErrInvalidArgument, filesPerCell)
	}
	if fullnessCheckRatio < 0 || fullnessCheckRatio > 1 {
		return model.Pile{}, fmt.Errorf("%w: fullness check ratio must be in [0, 1], got %g", model.ErrInvalidArgument, fullnessCheckRatio)
	}

	res, err := tx.Exec(
		`INSERT INTO piles (hostname, root, files_per_cell, fullness_check_ratio) VALUES (?, ?, ?, ?)`,
		hostname, root, filesPerCell, fullnessCheckRatio,
	)
	if err != nil {
		return model.Pile{}, fmt.Errorf("inserting pile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Pile{}, fmt.Errorf("reading new pile id: %w", err)
	}

	return model.Pile{
		ID:                 id,
		Hostname:           hostname,
		Root:               root,
		FilesPerCell:       filesPerCell,
		FullnessCheckRatio: fullnessCheckRatio,
	}, nil
}

// PileByID loads one pile.
func (s *Store) PileByID(tx *database.Tx, id int64) (model.Pile, error) {
	var p model.Pile
	err := tx.QueryRow(
		`SELECT id, hostname, root, files_per_cell, fullness_check_ratio FROM piles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Hostname, &p.Root, &p.FilesPerCell, &p.FullnessCheckRatio)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Pile{}, fmt.Errorf("%w: pile %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Pile{}, fmt.Errorf("loading pile %d: %w", id, err)
	}
	return p, nil
}

// ListPiles returns every registered pile.
func (s *Store) ListPiles(tx *database.Tx) ([]model.Pile, error) {
	rows, err := tx.Query(`SELECT id, hostname, root, files_per_cell, fullness_check_ratio FROM piles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing piles: %w", err)
	}
	defer rows.Close()

	var piles []model.Pile
	for rows.Next() {
		var p model.Pile
		if err := rows.Scan(&p.ID, &p.Hostname, &p.Root, &p.FilesPerCell, &p.FullnessCheckRatio); err != nil {
			return nil, fmt.Errorf("scanning pile: %w", err)
		}
		piles = append(piles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing piles: %w", err)
	}
	return piles, nil
}

// AddCell appends a fresh cell to the pile.
func (s *Store) AddCell(tx *database.Tx, pileID int64) (model.Cell, error) {
	if _, err := s.PileByID(tx, pileID); err != nil {
		return model.Cell{}, err
	}

	res, err := tx.Exec(`INSERT INTO cells (pile_id) VALUES (?)`, pileID)
	if err != nil {
		return model.Cell{}, fmt.Errorf("inserting cell: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Cell{}, fmt.Errorf("reading new cell id: %w", err)
	}
	return model.Cell{ID: id, PileID: pileID}, nil
}

// CellByID loads one cell.
func (s *Store) CellByID(tx *database.Tx, id int64) (model.Cell, error) {
	var c model.Cell
	err := tx.QueryRow(`SELECT id, pile_id, full FROM cells WHERE id = ?`, id).Scan(&c.ID, &c.PileID, &c.Full)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cell{}, fmt.Errorf("%w: cell %d", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Cell{}, fmt.Errorf("loading cell %d: %w", id, err)
	}
	return c, nil
}

// CellsByPile lists the pile's cells oldest first.
func (s *Store) CellsByPile(tx *database.Tx, pileID int64) ([]model.Cell, error) {
	rows, err := tx.Query(`SELECT id, pile_id, full FROM cells WHERE pile_id = ? ORDER BY id`, pileID)
	if err != nil {
		return nil, fmt.Errorf("listing cells of pile %d: %w", pileID, err)
	}
	defer rows.Close()

	var cells []model.Cell
	for rows.Next() {
		var c model.Cell
		if err := rows.Scan(&c.ID, &c.PileID, &c.Full); err != nil {
			return nil, fmt.Errorf("scanning cell: %w", err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing cells of pile %d: %w", pileID, err)
	}
	return cells, nil
}

// OpenCellFor picks the cell new content should go to: the newest cell
// not yet marked full, or a fresh one when all are full.
func (s *Store) OpenCellFor(tx *database.Tx, pileID int64) (model.Cell, error) {
	var c model.Cell
	err := tx.QueryRow(
		`SELECT id, pile_id, full FROM cells WHERE pile_id = ? AND NOT full ORDER BY id DESC LIMIT 1`,
		pileID,
	).Scan(&c.ID, &c.PileID, &c.Full)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Cell{}, fmt.Errorf("finding open cell of pile %d: %w", pileID, err)
	}
	return s.AddCell(tx, pileID)
}

// MarkCellFull stops OpenCellFor from handing the cell out again.
func (s *Store) MarkCellFull(tx *database.Tx, id int64) error {
	res, err := tx.Exec(`UPDATE cells SET full = TRUE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking cell %d full: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking cell %d full: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: cell %d", model.ErrNotFound, id)
	}
	return nil
}
