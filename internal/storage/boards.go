package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tavle/tavle/internal/model"
)

// CreateBoard inserts a board for the org, enforcing the plan's board cap
// inside a serializable transaction so two concurrent creates cannot both
// squeeze under the limit.
func (db *DB) CreateBoard(ctx context.Context, orgID string, title string, imageURL *string) (model.Board, error) {
	board := model.Board{
		ID:        uuid.New(),
		OrgID:     orgID,
		Title:     title,
		ImageURL:  imageURL,
		CreatedAt: time.Now().UTC(),
	}
	board.UpdatedAt = board.CreatedAt

	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.serializableTx(ctx, func(tx pgx.Tx) error {
			var plan model.Plan
			if err := tx.QueryRow(ctx,
				`SELECT plan FROM organizations WHERE id = $1 AND deleted_at IS NULL`, orgID,
			).Scan(&plan); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("storage: create board: %w", ErrNotFound)
				}
				return fmt.Errorf("storage: create board: %w", err)
			}

			limits := model.LimitsFor(plan)
			if limits.Boards != model.Unlimited {
				var count int
				if err := tx.QueryRow(ctx,
					`SELECT count(*) FROM boards WHERE org_id = $1`, orgID,
				).Scan(&count); err != nil {
					return fmt.Errorf("storage: count boards: %w", err)
				}
				if count >= limits.Boards {
					return fmt.Errorf("storage: create board: %w", ErrLimitExceeded)
				}
			}

			_, err := tx.Exec(ctx,
				`INSERT INTO boards (id, org_id, title, image_url, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				board.ID, board.OrgID, board.Title, board.ImageURL, board.CreatedAt, board.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("storage: insert board: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return model.Board{}, err
	}
	return board, nil
}

// GetBoard retrieves a board scoped to the caller's org. A board owned by
// another org is reported as not found.
func (db *DB) GetBoard(ctx context.Context, orgID string, boardID uuid.UUID) (model.Board, error) {
	var b model.Board
	err := db.pool.QueryRow(ctx,
		`SELECT b.id, b.org_id, b.title, b.image_url, b.created_at, b.updated_at
		 FROM boards b
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE b.id = $1 AND b.org_id = $2`,
		boardID, orgID,
	).Scan(&b.ID, &b.OrgID, &b.Title, &b.ImageURL, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Board{}, fmt.Errorf("storage: get board: %w", ErrNotFound)
		}
		return model.Board{}, fmt.Errorf("storage: get board: %w", err)
	}
	return b, nil
}

// ListBoards returns all boards of the org, newest first.
func (db *DB) ListBoards(ctx context.Context, orgID string) ([]model.Board, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT b.id, b.org_id, b.title, b.image_url, b.created_at, b.updated_at
		 FROM boards b
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE b.org_id = $1
		 ORDER BY b.created_at DESC`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list boards: %w", err)
	}
	defer rows.Close()

	var out []model.Board
	for rows.Next() {
		var b model.Board
		if err := rows.Scan(&b.ID, &b.OrgID, &b.Title, &b.ImageURL, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan board: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list boards: %w", err)
	}
	return out, nil
}

// UpdateBoard renames a board within the org.
func (db *DB) UpdateBoard(ctx context.Context, orgID string, boardID uuid.UUID, title string) (model.Board, error) {
	var b model.Board
	err := db.pool.QueryRow(ctx,
		`UPDATE boards SET title = $1, updated_at = now()
		 WHERE id = $2 AND org_id = $3
		 RETURNING id, org_id, title, image_url, created_at, updated_at`,
		title, boardID, orgID,
	).Scan(&b.ID, &b.OrgID, &b.Title, &b.ImageURL, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Board{}, fmt.Errorf("storage: update board: %w", ErrNotFound)
		}
		return model.Board{}, fmt.Errorf("storage: update board: %w", err)
	}
	return b, nil
}

// DeleteBoard removes a board and, via cascading foreign keys, its lists,
// cards, checklists and comments.
func (db *DB) DeleteBoard(ctx context.Context, orgID string, boardID uuid.UUID) (model.Board, error) {
	var b model.Board
	err := db.pool.QueryRow(ctx,
		`DELETE FROM boards WHERE id = $1 AND org_id = $2
		 RETURNING id, org_id, title, image_url, created_at, updated_at`,
		boardID, orgID,
	).Scan(&b.ID, &b.OrgID, &b.Title, &b.ImageURL, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Board{}, fmt.Errorf("storage: delete board: %w", ErrNotFound)
		}
		return model.Board{}, fmt.Errorf("storage: delete board: %w", err)
	}
	return b, nil
}
