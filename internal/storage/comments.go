package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tavle/tavle/internal/model"
)

const commentColumns = `id, card_id, author_user_id, text, parent_id, is_draft, created_at, updated_at`

// prefixed qualifies each column of a comma-separated list with a table
// alias, for queries that join the comments table.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanComment(row pgx.Row) (model.Comment, error) {
	var c model.Comment
	err := row.Scan(&c.ID, &c.CardID, &c.AuthorUserID, &c.Text, &c.ParentID,
		&c.IsDraft, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateComment adds a comment to a card. A reply's parent must be a
// comment on the same card; a parent elsewhere is ErrNotFound.
func (db *DB) CreateComment(ctx context.Context, orgID string, authorID, cardID uuid.UUID, text string, parentID *uuid.UUID, isDraft bool) (model.Comment, error) {
	if _, err := db.GetCard(ctx, orgID, cardID); err != nil {
		return model.Comment{}, err
	}
	if parentID != nil {
		var sameCard bool
		err := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM comments WHERE id = $1 AND card_id = $2)`,
			*parentID, cardID,
		).Scan(&sameCard)
		if err != nil {
			return model.Comment{}, fmt.Errorf("storage: verify parent comment: %w", err)
		}
		if !sameCard {
			return model.Comment{}, fmt.Errorf("storage: create comment: %w", ErrNotFound)
		}
	}

	c := model.Comment{
		ID:           uuid.New(),
		CardID:       cardID,
		AuthorUserID: authorID,
		Text:         text,
		ParentID:     parentID,
		IsDraft:      isDraft,
		CreatedAt:    time.Now().UTC(),
	}
	c.UpdatedAt = c.CreatedAt

	_, err := db.pool.Exec(ctx,
		`INSERT INTO comments (id, card_id, author_user_id, text, parent_id, is_draft, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.CardID, c.AuthorUserID, c.Text, c.ParentID, c.IsDraft, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return model.Comment{}, fmt.Errorf("storage: create comment: %w", err)
	}
	return c, nil
}

// GetComment retrieves a comment through the card's ownership chain.
func (db *DB) GetComment(ctx context.Context, orgID string, commentID uuid.UUID) (model.Comment, error) {
	c, err := scanComment(db.pool.QueryRow(ctx,
		`SELECT `+prefixed("cm", commentColumns)+`
		 FROM comments cm
		 JOIN cards c ON c.id = cm.card_id
		 JOIN lists l ON l.id = c.list_id
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE cm.id = $1 AND b.org_id = $2`,
		commentID, orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Comment{}, fmt.Errorf("storage: get comment: %w", ErrNotFound)
		}
		return model.Comment{}, fmt.Errorf("storage: get comment: %w", err)
	}
	return c, nil
}

// ListComments returns a card's comments oldest first. Drafts by other
// authors are filtered out; a draft is visible only to whoever wrote it.
func (db *DB) ListComments(ctx context.Context, orgID string, viewerID uuid.UUID, cardID uuid.UUID) ([]model.Comment, error) {
	if _, err := db.GetCard(ctx, orgID, cardID); err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE card_id = $1 AND (NOT is_draft OR author_user_id = $2)
		 ORDER BY created_at`,
		cardID, viewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list comments: %w", err)
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list comments: %w", err)
	}
	return out, nil
}

// UpdateComment edits a comment's text. Only the author may edit; a
// comment owned by someone else is reported as ErrNotFound, the same
// answer a nonexistent comment gets.
func (db *DB) UpdateComment(ctx context.Context, orgID string, authorID, commentID uuid.UUID, text string) (model.Comment, error) {
	c, err := scanComment(db.pool.QueryRow(ctx,
		`UPDATE comments cm SET text = $1, updated_at = now()
		 FROM cards c
		 JOIN lists l ON l.id = c.list_id
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE cm.id = $2 AND cm.card_id = c.id AND cm.author_user_id = $3 AND b.org_id = $4
		 RETURNING `+prefixed("cm", commentColumns),
		text, commentID, authorID, orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Comment{}, fmt.Errorf("storage: update comment: %w", ErrNotFound)
		}
		return model.Comment{}, fmt.Errorf("storage: update comment: %w", err)
	}
	return c, nil
}

// DeleteComment removes a comment; replies and reactions cascade.
// authorOnly restricts the delete to the author's own comments, used for
// non-admin callers.
func (db *DB) DeleteComment(ctx context.Context, orgID string, callerID, commentID uuid.UUID, authorOnly bool) (model.Comment, error) {
	q := `DELETE FROM comments cm
	 USING cards c, lists l, boards b, organizations o
	 WHERE cm.id = $1 AND cm.card_id = c.id AND c.list_id = l.id
	   AND l.board_id = b.id AND b.org_id = o.id AND o.deleted_at IS NULL
	   AND b.org_id = $2`
	args := []any{commentID, orgID}
	if authorOnly {
		q += ` AND cm.author_user_id = $3`
		args = append(args, callerID)
	}
	q += ` RETURNING ` + prefixed("cm", commentColumns)

	c, err := scanComment(db.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Comment{}, fmt.Errorf("storage: delete comment: %w", ErrNotFound)
		}
		return model.Comment{}, fmt.Errorf("storage: delete comment: %w", err)
	}
	return c, nil
}
