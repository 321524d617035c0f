package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/model"
)

// AddReaction records an emoji reaction on a comment. Each (comment,
// user, emoji) triple exists at most once; a repeat is ErrConflict.
func (db *DB) AddReaction(ctx context.Context, orgID string, userID, commentID uuid.UUID, emoji string) (model.Reaction, error) {
	if _, err := db.GetComment(ctx, orgID, commentID); err != nil {
		return model.Reaction{}, err
	}

	r := model.Reaction{
		ID:        uuid.New(),
		CommentID: commentID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO reactions (id, comment_id, user_id, emoji, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.CommentID, r.UserID, r.Emoji, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Reaction{}, fmt.Errorf("storage: add reaction: %w", ErrConflict)
		}
		return model.Reaction{}, fmt.Errorf("storage: add reaction: %w", err)
	}
	return r, nil
}

// RemoveReaction deletes a user's own reaction. Absent is ErrNotFound.
func (db *DB) RemoveReaction(ctx context.Context, orgID string, userID, commentID uuid.UUID, emoji string) error {
	if _, err := db.GetComment(ctx, orgID, commentID); err != nil {
		return err
	}
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM reactions WHERE comment_id = $1 AND user_id = $2 AND emoji = $3`,
		commentID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("storage: remove reaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: remove reaction: %w", ErrNotFound)
	}
	return nil
}

// ListReactions returns a comment's reactions oldest first.
func (db *DB) ListReactions(ctx context.Context, orgID string, commentID uuid.UUID) ([]model.Reaction, error) {
	if _, err := db.GetComment(ctx, orgID, commentID); err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, comment_id, user_id, emoji, created_at
		 FROM reactions WHERE comment_id = $1 ORDER BY created_at`, commentID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list reactions: %w", err)
	}
	defer rows.Close()

	var out []model.Reaction
	for rows.Next() {
		var r model.Reaction
		if err := rows.Scan(&r.ID, &r.CommentID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan reaction: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list reactions: %w", err)
	}
	return out, nil
}
