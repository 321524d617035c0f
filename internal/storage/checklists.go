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

// CreateChecklist attaches a new empty checklist to a card.
func (db *DB) CreateChecklist(ctx context.Context, orgID string, cardID uuid.UUID, title string) (model.Checklist, error) {
	if _, err := db.GetCard(ctx, orgID, cardID); err != nil {
		return model.Checklist{}, err
	}
	cl := model.Checklist{ID: uuid.New(), CardID: cardID, Title: title, CreatedAt: time.Now().UTC()}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO checklists (id, card_id, title, created_at) VALUES ($1, $2, $3, $4)`,
		cl.ID, cl.CardID, cl.Title, cl.CreatedAt,
	)
	if err != nil {
		return model.Checklist{}, fmt.Errorf("storage: create checklist: %w", err)
	}
	return cl, nil
}

// GetChecklist retrieves a checklist through its card's ownership chain.
func (db *DB) GetChecklist(ctx context.Context, orgID string, checklistID uuid.UUID) (model.Checklist, error) {
	var cl model.Checklist
	err := db.pool.QueryRow(ctx,
		`SELECT ch.id, ch.card_id, ch.title, ch.created_at
		 FROM checklists ch
		 JOIN cards c ON c.id = ch.card_id
		 JOIN lists l ON l.id = c.list_id
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE ch.id = $1 AND b.org_id = $2`,
		checklistID, orgID,
	).Scan(&cl.ID, &cl.CardID, &cl.Title, &cl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Checklist{}, fmt.Errorf("storage: get checklist: %w", ErrNotFound)
		}
		return model.Checklist{}, fmt.Errorf("storage: get checklist: %w", err)
	}
	return cl, nil
}

// ListChecklists returns a card's checklists with their items.
func (db *DB) ListChecklists(ctx context.Context, orgID string, cardID uuid.UUID) ([]model.Checklist, map[uuid.UUID][]model.ChecklistItem, error) {
	if _, err := db.GetCard(ctx, orgID, cardID); err != nil {
		return nil, nil, err
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, card_id, title, created_at FROM checklists
		 WHERE card_id = $1 ORDER BY created_at`, cardID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: list checklists: %w", err)
	}
	var lists []model.Checklist
	for rows.Next() {
		var cl model.Checklist
		if err := rows.Scan(&cl.ID, &cl.CardID, &cl.Title, &cl.CreatedAt); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("storage: scan checklist: %w", err)
		}
		lists = append(lists, cl)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("storage: list checklists: %w", err)
	}

	items := make(map[uuid.UUID][]model.ChecklistItem)
	irows, err := db.pool.Query(ctx,
		`SELECT i.id, i.checklist_id, i.text, i.is_complete, i.position
		 FROM checklist_items i
		 JOIN checklists ch ON ch.id = i.checklist_id
		 WHERE ch.card_id = $1
		 ORDER BY i.position`, cardID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: list checklist items: %w", err)
	}
	defer irows.Close()
	for irows.Next() {
		var it model.ChecklistItem
		if err := irows.Scan(&it.ID, &it.ChecklistID, &it.Text, &it.IsComplete, &it.Position); err != nil {
			return nil, nil, fmt.Errorf("storage: scan checklist item: %w", err)
		}
		items[it.ChecklistID] = append(items[it.ChecklistID], it)
	}
	if err := irows.Err(); err != nil {
		return nil, nil, fmt.Errorf("storage: list checklist items: %w", err)
	}
	return lists, items, nil
}

// DeleteChecklist removes a checklist and its items.
func (db *DB) DeleteChecklist(ctx context.Context, orgID string, checklistID uuid.UUID) error {
	if _, err := db.GetChecklist(ctx, orgID, checklistID); err != nil {
		return err
	}
	if _, err := db.pool.Exec(ctx, `DELETE FROM checklists WHERE id = $1`, checklistID); err != nil {
		return fmt.Errorf("storage: delete checklist: %w", err)
	}
	return nil
}

// AddChecklistItem appends an item to a checklist.
func (db *DB) AddChecklistItem(ctx context.Context, orgID string, checklistID uuid.UUID, text string) (model.ChecklistItem, error) {
	if _, err := db.GetChecklist(ctx, orgID, checklistID); err != nil {
		return model.ChecklistItem{}, err
	}
	it := model.ChecklistItem{ID: uuid.New(), ChecklistID: checklistID, Text: text}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO checklist_items (id, checklist_id, text, is_complete, position)
		 VALUES ($1, $2, $3, false,
		     COALESCE((SELECT max(position) + 1 FROM checklist_items WHERE checklist_id = $2), 0))
		 RETURNING position`,
		it.ID, it.ChecklistID, it.Text,
	).Scan(&it.Position)
	if err != nil {
		return model.ChecklistItem{}, fmt.Errorf("storage: add checklist item: %w", err)
	}
	return it, nil
}

// SetChecklistItemComplete toggles one item's completion and reports
// whether that flip drove the whole checklist to complete. The item write
// and the all-complete read share a serializable transaction so two
// concurrent final ticks cannot both observe completion.
func (db *DB) SetChecklistItemComplete(ctx context.Context, orgID string, itemID uuid.UUID, complete bool) (item model.ChecklistItem, checklistCompleted bool, err error) {
	err = WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		checklistCompleted = false
		return db.serializableTx(ctx, func(tx pgx.Tx) error {
			var wasComplete bool
			err := tx.QueryRow(ctx,
				`SELECT i.id, i.checklist_id, i.text, i.is_complete, i.position
				 FROM checklist_items i
				 JOIN checklists ch ON ch.id = i.checklist_id
				 JOIN cards c ON c.id = ch.card_id
				 JOIN lists l ON l.id = c.list_id
				 JOIN boards b ON b.id = l.board_id
				 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
				 WHERE i.id = $1 AND b.org_id = $2
				 FOR UPDATE OF i`,
				itemID, orgID,
			).Scan(&item.ID, &item.ChecklistID, &item.Text, &wasComplete, &item.Position)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("storage: checklist item: %w", ErrNotFound)
				}
				return fmt.Errorf("storage: checklist item: %w", err)
			}

			if _, err := tx.Exec(ctx,
				`UPDATE checklist_items SET is_complete = $1 WHERE id = $2`,
				complete, itemID,
			); err != nil {
				return fmt.Errorf("storage: set checklist item: %w", err)
			}
			item.IsComplete = complete

			// Completion fires only on the transition into all-complete.
			if complete && !wasComplete {
				var remaining int
				if err := tx.QueryRow(ctx,
					`SELECT count(*) FROM checklist_items
					 WHERE checklist_id = $1 AND NOT is_complete`,
					item.ChecklistID,
				).Scan(&remaining); err != nil {
					return fmt.Errorf("storage: count incomplete items: %w", err)
				}
				checklistCompleted = remaining == 0
			}
			return nil
		})
	})
	if err != nil {
		return model.ChecklistItem{}, false, err
	}
	return item, checklistCompleted, nil
}

// CompleteChecklist marks every item of a checklist complete, for the
// COMPLETE_CHECKLIST automation action. Returns true when the call
// flipped at least one item, i.e. the checklist was not already complete.
func (db *DB) CompleteChecklist(ctx context.Context, orgID string, checklistID uuid.UUID) (bool, error) {
	if _, err := db.GetChecklist(ctx, orgID, checklistID); err != nil {
		return false, err
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE checklist_items SET is_complete = true
		 WHERE checklist_id = $1 AND NOT is_complete`, checklistID,
	)
	if err != nil {
		return false, fmt.Errorf("storage: complete checklist: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
