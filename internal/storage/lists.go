package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tavle/tavle/internal/lexorank"
	"github.com/tavle/tavle/internal/model"
)

// CreateList appends a list to a board. The tail rank is read and the new
// rank computed inside one serializable transaction, so two concurrent
// appends cannot claim the same rank.
func (db *DB) CreateList(ctx context.Context, orgID string, boardID uuid.UUID, title string) (model.List, error) {
	list := model.List{
		ID:        uuid.New(),
		BoardID:   boardID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	list.UpdatedAt = list.CreatedAt

	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.serializableTx(ctx, func(tx pgx.Tx) error {
			if err := boardInOrg(ctx, tx, orgID, boardID); err != nil {
				return err
			}

			var tail *string
			err := tx.QueryRow(ctx,
				`SELECT l.sort_order FROM lists l
				 WHERE l.board_id = $1
				 ORDER BY l.sort_order DESC LIMIT 1`, boardID,
			).Scan(&tail)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("storage: read list tail: %w", err)
			}
			last := ""
			if tail != nil {
				last = *tail
			}
			list.Order = lexorank.NextAfter(last)

			_, err = tx.Exec(ctx,
				`INSERT INTO lists (id, board_id, title, sort_order, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				list.ID, list.BoardID, list.Title, list.Order, list.CreatedAt, list.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("storage: insert list: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return model.List{}, err
	}
	return list, nil
}

// boardInOrg verifies that boardID belongs to a live org identified by
// orgID. Any mismatch is ErrNotFound — the caller cannot distinguish a
// foreign board from a missing one.
func boardInOrg(ctx context.Context, q querier, orgID string, boardID uuid.UUID) error {
	var ok bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM boards b
		     JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		     WHERE b.id = $1 AND b.org_id = $2
		 )`, boardID, orgID,
	).Scan(&ok)
	if err != nil {
		return fmt.Errorf("storage: verify board ownership: %w", err)
	}
	if !ok {
		return fmt.Errorf("storage: board not in org: %w", ErrNotFound)
	}
	return nil
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetList retrieves a list, verifying the chain List → Board → Org.
func (db *DB) GetList(ctx context.Context, orgID string, listID uuid.UUID) (model.List, error) {
	var l model.List
	err := db.pool.QueryRow(ctx,
		`SELECT l.id, l.board_id, l.title, l.sort_order, l.created_at, l.updated_at
		 FROM lists l
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE l.id = $1 AND b.org_id = $2`,
		listID, orgID,
	).Scan(&l.ID, &l.BoardID, &l.Title, &l.Order, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.List{}, fmt.Errorf("storage: get list: %w", ErrNotFound)
		}
		return model.List{}, fmt.Errorf("storage: get list: %w", err)
	}
	return l, nil
}

// ListLists returns a board's lists in display order.
func (db *DB) ListLists(ctx context.Context, orgID string, boardID uuid.UUID) ([]model.List, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT l.id, l.board_id, l.title, l.sort_order, l.created_at, l.updated_at
		 FROM lists l
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE l.board_id = $1 AND b.org_id = $2
		 ORDER BY l.sort_order`, boardID, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list lists: %w", err)
	}
	defer rows.Close()

	var out []model.List
	for rows.Next() {
		var l model.List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Order, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan list: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list lists: %w", err)
	}
	return out, nil
}

// UpdateList renames a list within the org.
func (db *DB) UpdateList(ctx context.Context, orgID string, listID uuid.UUID, title string) (model.List, error) {
	var l model.List
	err := db.pool.QueryRow(ctx,
		`UPDATE lists l SET title = $1, updated_at = now()
		 FROM boards b
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE l.id = $2 AND l.board_id = b.id AND b.org_id = $3
		 RETURNING l.id, l.board_id, l.title, l.sort_order, l.created_at, l.updated_at`,
		title, listID, orgID,
	).Scan(&l.ID, &l.BoardID, &l.Title, &l.Order, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.List{}, fmt.Errorf("storage: update list: %w", ErrNotFound)
		}
		return model.List{}, fmt.Errorf("storage: update list: %w", err)
	}
	return l, nil
}

// DeleteList removes a list and its cards.
func (db *DB) DeleteList(ctx context.Context, orgID string, listID uuid.UUID) (model.List, error) {
	var l model.List
	err := db.pool.QueryRow(ctx,
		`DELETE FROM lists l
		 USING boards b
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE l.id = $1 AND l.board_id = b.id AND b.org_id = $2
		 RETURNING l.id, l.board_id, l.title, l.sort_order, l.created_at, l.updated_at`,
		listID, orgID,
	).Scan(&l.ID, &l.BoardID, &l.Title, &l.Order, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.List{}, fmt.Errorf("storage: delete list: %w", ErrNotFound)
		}
		return model.List{}, fmt.Errorf("storage: delete list: %w", err)
	}
	return l, nil
}

// ReorderLists replaces the rank of every listed list atomically. If the
// supplied set contains ids that do not belong to the board, nothing is
// written and ErrForeignItems is returned.
func (db *DB) ReorderLists(ctx context.Context, orgID string, boardID uuid.UUID, items []model.ListOrderItem) error {
	return WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.serializableTx(ctx, func(tx pgx.Tx) error {
			if err := boardInOrg(ctx, tx, orgID, boardID); err != nil {
				return err
			}

			owned, err := listIDsOfBoard(ctx, tx, boardID)
			if err != nil {
				return err
			}
			for _, it := range items {
				if !owned[it.ID] {
					return fmt.Errorf("storage: reorder lists: %w", ErrForeignItems)
				}
			}

			for _, it := range items {
				if _, err := tx.Exec(ctx,
					`UPDATE lists SET sort_order = $1, updated_at = now() WHERE id = $2`,
					it.Order, it.ID,
				); err != nil {
					return fmt.Errorf("storage: reorder list %s: %w", it.ID, err)
				}
			}
			return nil
		})
	})
}

func listIDsOfBoard(ctx context.Context, tx pgx.Tx, boardID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM lists WHERE board_id = $1`, boardID)
	if err != nil {
		return nil, fmt.Errorf("storage: load board list ids: %w", err)
	}
	defer rows.Close()

	owned := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan list id: %w", err)
		}
		owned[id] = true
	}
	return owned, rows.Err()
}
