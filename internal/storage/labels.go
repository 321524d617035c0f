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

// CreateLabel creates an org-scoped label. Labels are unique on
// (org, name); a duplicate name yields ErrConflict.
func (db *DB) CreateLabel(ctx context.Context, orgID, name, color string) (model.Label, error) {
	l := model.Label{ID: uuid.New(), OrgID: orgID, Name: name, Color: color}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO labels (id, org_id, name, color, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.OrgID, l.Name, l.Color, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Label{}, fmt.Errorf("storage: create label: %w", ErrConflict)
		}
		return model.Label{}, fmt.Errorf("storage: create label: %w", err)
	}
	return l, nil
}

// GetLabel retrieves an org's label by id.
func (db *DB) GetLabel(ctx context.Context, orgID string, labelID uuid.UUID) (model.Label, error) {
	var l model.Label
	err := db.pool.QueryRow(ctx,
		`SELECT id, org_id, name, color FROM labels WHERE id = $1 AND org_id = $2`,
		labelID, orgID,
	).Scan(&l.ID, &l.OrgID, &l.Name, &l.Color)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Label{}, fmt.Errorf("storage: get label: %w", ErrNotFound)
		}
		return model.Label{}, fmt.Errorf("storage: get label: %w", err)
	}
	return l, nil
}

// ListLabels returns all labels of an organization, sorted by name.
func (db *DB) ListLabels(ctx context.Context, orgID string) ([]model.Label, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, org_id, name, color FROM labels WHERE org_id = $1 ORDER BY name`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list labels: %w", err)
	}
	defer rows.Close()

	var out []model.Label
	for rows.Next() {
		var l model.Label
		if err := rows.Scan(&l.ID, &l.OrgID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("storage: scan label: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list labels: %w", err)
	}
	return out, nil
}

// DeleteLabel removes a label; card assignments cascade.
func (db *DB) DeleteLabel(ctx context.Context, orgID string, labelID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM labels WHERE id = $1 AND org_id = $2`, labelID, orgID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete label: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: delete label: %w", ErrNotFound)
	}
	return nil
}

// AssignLabel attaches a label to a card. Both sides are verified against
// the caller's org before the write; a repeated assignment is ErrConflict.
func (db *DB) AssignLabel(ctx context.Context, orgID string, cardID, labelID uuid.UUID) (model.Label, error) {
	l, err := db.GetLabel(ctx, orgID, labelID)
	if err != nil {
		return model.Label{}, err
	}
	if _, err := db.GetCard(ctx, orgID, cardID); err != nil {
		return model.Label{}, err
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO card_labels (card_id, label_id, created_at) VALUES ($1, $2, $3)`,
		cardID, labelID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Label{}, fmt.Errorf("storage: assign label: %w", ErrConflict)
		}
		return model.Label{}, fmt.Errorf("storage: assign label: %w", err)
	}
	return l, nil
}

// UnassignLabel detaches a label from a card. Missing assignment is
// ErrNotFound.
func (db *DB) UnassignLabel(ctx context.Context, orgID string, cardID, labelID uuid.UUID) error {
	if _, err := db.GetCard(ctx, orgID, cardID); err != nil {
		return err
	}
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM card_labels WHERE card_id = $1 AND label_id = $2`,
		cardID, labelID,
	)
	if err != nil {
		return fmt.Errorf("storage: unassign label: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: unassign label: %w", ErrNotFound)
	}
	return nil
}

// ListCardLabels returns the labels attached to a card.
func (db *DB) ListCardLabels(ctx context.Context, orgID string, cardID uuid.UUID) ([]model.Label, error) {
	if _, err := db.GetCard(ctx, orgID, cardID); err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx,
		`SELECT lb.id, lb.org_id, lb.name, lb.color
		 FROM card_labels cl
		 JOIN labels lb ON lb.id = cl.label_id
		 WHERE cl.card_id = $1
		 ORDER BY lb.name`, cardID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list card labels: %w", err)
	}
	defer rows.Close()

	var out []model.Label
	for rows.Next() {
		var l model.Label
		if err := rows.Scan(&l.ID, &l.OrgID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("storage: scan card label: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list card labels: %w", err)
	}
	return out, nil
}
