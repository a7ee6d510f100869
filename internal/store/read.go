package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/netcore/internal/slots"
)

const selectInfo = `
	SELECT id, session, label, tick, items_per_page, page_count, active_count
	FROM snapshots
`

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (SnapshotInfo, error) {
	var info SnapshotInfo
	err := row.Scan(
		&info.ID,
		&info.Session,
		&info.Label,
		&info.Tick,
		&info.ItemsPerPage,
		&info.PageCount,
		&info.ActiveCount,
	)
	return info, err
}

// ReadSnapshot returns the snapshot with the given id, or ErrNotFound.
func (s *Store) ReadSnapshot(ctx context.Context, id string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectInfo+` WHERE id = ?`, id)
	return s.readSnapshot(ctx, row, "snapshot "+id)
}

// LatestSnapshot returns the snapshot of session with the highest tick, or
// ErrNotFound. Ties break on id.
func (s *Store) LatestSnapshot(ctx context.Context, session string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectInfo+`
		WHERE session = ?
		ORDER BY tick DESC, id COLLATE BINARY ASC
		LIMIT 1
	`, session)
	return s.readSnapshot(ctx, row, "latest snapshot of session "+session)
}

func (s *Store) readSnapshot(ctx context.Context, row *sql.Row, what string) (Snapshot, error) {
	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("read %s: %w", what, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", what, err)
	}

	pages, err := s.readPages(ctx, info)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		SnapshotInfo: info,
		State:        slots.Snapshot{ItemsPerPage: info.ItemsPerPage, Pages: pages},
	}, nil
}

func (s *Store) readPages(ctx context.Context, info SnapshotInfo) ([][]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_index, bitmap
		FROM snapshot_pages
		WHERE snapshot_id = ?
		ORDER BY page_index ASC
	`, info.ID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot pages: %w", err)
	}
	defer rows.Close()

	pages := make([][]uint64, 0, info.PageCount)
	for rows.Next() {
		var (
			index int
			blob  []byte
		)
		if err := rows.Scan(&index, &blob); err != nil {
			return nil, fmt.Errorf("scan snapshot page: %w", err)
		}
		if index != len(pages) {
			return nil, fmt.Errorf("snapshot %s: page %d missing", info.ID, len(pages))
		}
		words, err := decodeBitmap(blob)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s page %d: %w", info.ID, index, err)
		}
		pages = append(pages, words)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot pages: %w", err)
	}
	if len(pages) != info.PageCount {
		return nil, fmt.Errorf("snapshot %s: have %d pages, want %d", info.ID, len(pages), info.PageCount)
	}
	return pages, nil
}

// ListSnapshots returns the metadata of every snapshot ordered by session,
// tick and id. Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	return s.listInfo(ctx, selectInfo+`
		ORDER BY session COLLATE BINARY ASC, tick ASC, id COLLATE BINARY ASC
	`)
}

// ListSession returns the metadata of one session's snapshots ordered by
// tick and id.
func (s *Store) ListSession(ctx context.Context, session string) ([]SnapshotInfo, error) {
	return s.listInfo(ctx, selectInfo+`
		WHERE session = ?
		ORDER BY tick ASC, id COLLATE BINARY ASC
	`, session)
}

func (s *Store) listInfo(ctx context.Context, query string, args ...any) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	infos := []SnapshotInfo{}
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return infos, nil
}
