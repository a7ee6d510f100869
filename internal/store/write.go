package store

import (
	"context"
	"fmt"
)

// WriteSnapshot stores s and returns its content-addressed id. Uses ON
// CONFLICT(id) DO NOTHING for idempotency: inserted is false when an
// identical snapshot was already stored.
//
// The metadata counts are recomputed from s.State; values set by the caller
// are ignored.
func (s *Store) WriteSnapshot(ctx context.Context, snap Snapshot) (id string, inserted bool, err error) {
	if snap.State.ItemsPerPage <= 0 {
		return "", false, fmt.Errorf("write snapshot: items_per_page must be positive, got %d", snap.State.ItemsPerPage)
	}
	snap = NewSnapshot(snap.Session, snap.Label, snap.Tick, snap.State)

	id, err = SnapshotID(snap)
	if err != nil {
		return "", false, fmt.Errorf("write snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("write snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, session, label, tick, items_per_page, page_count, active_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		snap.Session,
		snap.Label,
		snap.Tick,
		snap.ItemsPerPage,
		snap.PageCount,
		snap.ActiveCount,
	)
	if err != nil {
		return "", false, fmt.Errorf("write snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("write snapshot: rows affected: %w", err)
	}
	if n == 0 {
		return id, false, nil
	}

	for i, words := range snap.State.Pages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_pages (snapshot_id, page_index, bitmap)
			VALUES (?, ?, ?)
		`, id, i, encodeBitmap(words)); err != nil {
			return "", false, fmt.Errorf("write snapshot page %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("write snapshot: commit: %w", err)
	}
	return id, true, nil
}

// DeleteSnapshot removes a snapshot and its pages. Deleting a missing
// snapshot returns ErrNotFound.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete snapshot %s: %w", id, ErrNotFound)
	}
	return nil
}
