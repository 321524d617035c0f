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

const cardColumns = `c.id, c.list_id, c.title, c.description, c.priority, c.due_date,
	 c.assignee_user_id, c.sort_order, c.created_at, c.updated_at`

func scanCard(row pgx.Row) (model.Card, error) {
	var c model.Card
	err := row.Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Priority, &c.DueDate,
		&c.AssigneeUserID, &c.Order, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetCard retrieves a card, verifying the full chain
// Card → List → Board → Organization against the caller's org.
func (db *DB) GetCard(ctx context.Context, orgID string, cardID uuid.UUID) (model.Card, error) {
	c, err := scanCard(db.pool.QueryRow(ctx,
		`SELECT `+cardColumns+`
		 FROM cards c
		 JOIN lists l ON l.id = c.list_id
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE c.id = $1 AND b.org_id = $2`,
		cardID, orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Card{}, fmt.Errorf("storage: get card: %w", ErrNotFound)
		}
		return model.Card{}, fmt.Errorf("storage: get card: %w", err)
	}
	return c, nil
}

// CardBoardID resolves the board a card sits on, org-scoped. Handlers use
// it to build event envelopes without trusting client-supplied board ids.
func (db *DB) CardBoardID(ctx context.Context, orgID string, cardID uuid.UUID) (uuid.UUID, error) {
	var boardID uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT b.id
		 FROM cards c
		 JOIN lists l ON l.id = c.list_id
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE c.id = $1 AND b.org_id = $2`,
		cardID, orgID,
	).Scan(&boardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("storage: card board: %w", ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("storage: card board: %w", err)
	}
	return boardID, nil
}

// ListCards returns a list's cards in display order.
func (db *DB) ListCards(ctx context.Context, orgID string, listID uuid.UUID) ([]model.Card, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+cardColumns+`
		 FROM cards c
		 JOIN lists l ON l.id = c.list_id
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE c.list_id = $1 AND b.org_id = $2
		 ORDER BY c.sort_order`, listID, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list cards: %w", err)
	}
	defer rows.Close()

	var out []model.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan card: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list cards: %w", err)
	}
	return out, nil
}

// CreateCard appends a card to a list. The plan's per-board card cap and
// the tail rank are both read inside one serializable transaction.
func (db *DB) CreateCard(ctx context.Context, orgID string, listID uuid.UUID, title string) (model.Card, error) {
	card := model.Card{
		ID:        uuid.New(),
		ListID:    listID,
		Title:     title,
		Priority:  model.PriorityMedium,
		CreatedAt: time.Now().UTC(),
	}
	card.UpdatedAt = card.CreatedAt

	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.serializableTx(ctx, func(tx pgx.Tx) error {
			var boardID uuid.UUID
			var plan model.Plan
			err := tx.QueryRow(ctx,
				`SELECT b.id, o.plan
				 FROM lists l
				 JOIN boards b ON b.id = l.board_id
				 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
				 WHERE l.id = $1 AND b.org_id = $2`,
				listID, orgID,
			).Scan(&boardID, &plan)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("storage: create card: %w", ErrNotFound)
				}
				return fmt.Errorf("storage: create card: %w", err)
			}

			limits := model.LimitsFor(plan)
			if limits.CardsPerBoard != model.Unlimited {
				var count int
				if err := tx.QueryRow(ctx,
					`SELECT count(*) FROM cards c
					 JOIN lists l ON l.id = c.list_id
					 WHERE l.board_id = $1`, boardID,
				).Scan(&count); err != nil {
					return fmt.Errorf("storage: count board cards: %w", err)
				}
				if count >= limits.CardsPerBoard {
					return fmt.Errorf("storage: create card: %w", ErrLimitExceeded)
				}
			}

			last, err := listTail(ctx, tx, listID)
			if err != nil {
				return fmt.Errorf("storage: read card tail: %w", err)
			}
			card.Order = lexorank.NextAfter(last)
			if lexorank.IsOverflow(card.Order) {
				if err := rebalanceListTx(ctx, tx, listID); err != nil {
					return err
				}
				last, err = listTail(ctx, tx, listID)
				if err != nil {
					return fmt.Errorf("storage: read card tail: %w", err)
				}
				card.Order = lexorank.NextAfter(last)
			}

			_, err = tx.Exec(ctx,
				`INSERT INTO cards (id, list_id, title, description, priority, due_date,
				     assignee_user_id, sort_order, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				card.ID, card.ListID, card.Title, card.Description, card.Priority,
				card.DueDate, card.AssigneeUserID, card.Order, card.CreatedAt, card.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("storage: insert card: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return model.Card{}, err
	}
	return card, nil
}

// CardPatch is the set of card fields an update may touch. Nil leaves a
// field unchanged; the Clear flags null dueDate / assignee explicitly.
type CardPatch struct {
	Title          *string
	Description    *string
	Priority       *model.Priority
	DueDate        *time.Time
	ClearDueDate   bool
	AssigneeUserID *uuid.UUID
	ClearAssignee  bool
}

// UpdateCard patches a card and returns (before, after) snapshots so the
// caller can derive events (priority change, assignment) from canonical
// server-side state.
func (db *DB) UpdateCard(ctx context.Context, orgID string, cardID uuid.UUID, patch CardPatch) (before, after model.Card, err error) {
	err = db.serializableTx(ctx, func(tx pgx.Tx) error {
		before, err = scanCard(tx.QueryRow(ctx,
			`SELECT `+cardColumns+`
			 FROM cards c
			 JOIN lists l ON l.id = c.list_id
			 JOIN boards b ON b.id = l.board_id
			 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
			 WHERE c.id = $1 AND b.org_id = $2
			 FOR UPDATE OF c`,
			cardID, orgID,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("storage: update card: %w", ErrNotFound)
			}
			return fmt.Errorf("storage: update card: %w", err)
		}

		after = before
		if patch.Title != nil {
			after.Title = *patch.Title
		}
		if patch.Description != nil {
			after.Description = *patch.Description
		}
		if patch.Priority != nil {
			after.Priority = *patch.Priority
		}
		if patch.ClearDueDate {
			after.DueDate = nil
		} else if patch.DueDate != nil {
			after.DueDate = patch.DueDate
		}
		if patch.ClearAssignee {
			after.AssigneeUserID = nil
		} else if patch.AssigneeUserID != nil {
			after.AssigneeUserID = patch.AssigneeUserID
		}
		after.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx,
			`UPDATE cards SET title = $1, description = $2, priority = $3, due_date = $4,
			     assignee_user_id = $5, updated_at = $6
			 WHERE id = $7`,
			after.Title, after.Description, after.Priority, after.DueDate,
			after.AssigneeUserID, after.UpdatedAt, cardID,
		)
		if err != nil {
			return fmt.Errorf("storage: update card: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Card{}, model.Card{}, err
	}
	return before, after, nil
}

// DeleteCard removes a card after verifying its ownership chain.
func (db *DB) DeleteCard(ctx context.Context, orgID string, cardID uuid.UUID) (model.Card, error) {
	c, err := scanCard(db.pool.QueryRow(ctx,
		`DELETE FROM cards c
		 USING lists l, boards b, organizations o
		 WHERE c.id = $1 AND l.id = c.list_id AND b.id = l.board_id
		   AND o.id = b.org_id AND o.deleted_at IS NULL AND b.org_id = $2
		 RETURNING `+cardColumns,
		cardID, orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Card{}, fmt.Errorf("storage: delete card: %w", ErrNotFound)
		}
		return model.Card{}, fmt.Errorf("storage: delete card: %w", err)
	}
	return c, nil
}

// CardMove records a cross-list move detected during a reorder. Title is
// the canonical stored title at move time, never the client's copy.
type CardMove struct {
	CardID     uuid.UUID
	FromListID uuid.UUID
	ToListID   uuid.UUID
	Title      string
}

// ReorderCards applies a bulk reorder atomically. The pre-reorder list of
// each card is read in the same transaction that writes the new order, so
// concurrent moves serialize. Foreign ids (cards or target lists outside
// the board) fail the whole batch with ErrForeignItems: no partial write.
// Returned moves are the cards whose list actually changed.
func (db *DB) ReorderCards(ctx context.Context, orgID string, boardID uuid.UUID, items []model.CardOrderItem) ([]CardMove, error) {
	var moves []CardMove

	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		moves = moves[:0]
		return db.serializableTx(ctx, func(tx pgx.Tx) error {
			if err := boardInOrg(ctx, tx, orgID, boardID); err != nil {
				return err
			}

			lists, err := listIDsOfBoard(ctx, tx, boardID)
			if err != nil {
				return err
			}

			// Pre-reorder snapshot of every card on the board.
			type snapshot struct {
				listID uuid.UUID
				title  string
			}
			rows, err := tx.Query(ctx,
				`SELECT c.id, c.list_id, c.title FROM cards c
				 JOIN lists l ON l.id = c.list_id
				 WHERE l.board_id = $1
				 FOR UPDATE OF c`, boardID,
			)
			if err != nil {
				return fmt.Errorf("storage: snapshot board cards: %w", err)
			}
			current := make(map[uuid.UUID]snapshot)
			for rows.Next() {
				var id uuid.UUID
				var s snapshot
				if err := rows.Scan(&id, &s.listID, &s.title); err != nil {
					rows.Close()
					return fmt.Errorf("storage: scan card snapshot: %w", err)
				}
				current[id] = s
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return fmt.Errorf("storage: snapshot board cards: %w", err)
			}

			// Reject ids that are not the board's own before writing anything.
			for _, it := range items {
				if _, ok := current[it.ID]; !ok {
					return fmt.Errorf("storage: reorder cards: %w", ErrForeignItems)
				}
				if !lists[it.ListID] {
					return fmt.Errorf("storage: reorder cards: %w", ErrForeignItems)
				}
			}

			overflowed := make(map[uuid.UUID]bool)
			for _, it := range items {
				prev := current[it.ID]
				if _, err := tx.Exec(ctx,
					`UPDATE cards SET list_id = $1, sort_order = $2, updated_at = now()
					 WHERE id = $3`,
					it.ListID, it.Order, it.ID,
				); err != nil {
					return fmt.Errorf("storage: reorder card %s: %w", it.ID, err)
				}
				if lexorank.IsOverflow(it.Order) {
					overflowed[it.ListID] = true
				}
				if prev.listID != it.ListID {
					moves = append(moves, CardMove{
						CardID:     it.ID,
						FromListID: prev.listID,
						ToListID:   it.ListID,
						Title:      prev.title,
					})
				}
			}

			// A rank at the length ceiling means the list's rank space is
			// exhausted; rewrite the whole list with fresh short ranks.
			for listID := range overflowed {
				if err := rebalanceListTx(ctx, tx, listID); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return moves, nil
}

// MoveCardToTail moves a card to the end of another list on the same
// board, computing the destination rank from the tail inside the
// transaction. Used by the MOVE_CARD automation action.
func (db *DB) MoveCardToTail(ctx context.Context, orgID string, cardID, toListID uuid.UUID) (CardMove, error) {
	var move CardMove

	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		return db.serializableTx(ctx, func(tx pgx.Tx) error {
			var fromListID, boardID uuid.UUID
			var title string
			err := tx.QueryRow(ctx,
				`SELECT c.list_id, b.id, c.title
				 FROM cards c
				 JOIN lists l ON l.id = c.list_id
				 JOIN boards b ON b.id = l.board_id
				 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
				 WHERE c.id = $1 AND b.org_id = $2
				 FOR UPDATE OF c`,
				cardID, orgID,
			).Scan(&fromListID, &boardID, &title)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("storage: move card: %w", ErrNotFound)
				}
				return fmt.Errorf("storage: move card: %w", err)
			}

			// Destination must be on the same board.
			var sameBoard bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM lists WHERE id = $1 AND board_id = $2)`,
				toListID, boardID,
			).Scan(&sameBoard); err != nil {
				return fmt.Errorf("storage: verify destination list: %w", err)
			}
			if !sameBoard {
				return fmt.Errorf("storage: move card: %w", ErrNotFound)
			}

			tail, err := listTail(ctx, tx, toListID)
			if err != nil {
				return fmt.Errorf("storage: read destination tail: %w", err)
			}
			order := "n" // Empty destination list.
			if tail != "" {
				order = lexorank.NextAfter(tail)
			}
			if lexorank.IsOverflow(order) {
				if err := rebalanceListTx(ctx, tx, toListID); err != nil {
					return err
				}
				tail, err = listTail(ctx, tx, toListID)
				if err != nil {
					return fmt.Errorf("storage: read destination tail: %w", err)
				}
				order = lexorank.NextAfter(tail)
			}

			if _, err := tx.Exec(ctx,
				`UPDATE cards SET list_id = $1, sort_order = $2, updated_at = now() WHERE id = $3`,
				toListID, order, cardID,
			); err != nil {
				return fmt.Errorf("storage: move card: %w", err)
			}

			move = CardMove{CardID: cardID, FromListID: fromListID, ToListID: toListID, Title: title}
			return nil
		})
	})
	if err != nil {
		return CardMove{}, err
	}
	return move, nil
}

// CardsDueBetween returns cards whose due date falls in [from, to), for the
// due-date scanner. Results carry the owning board and org for the event
// envelope.
type DueCard struct {
	Card    model.Card
	BoardID uuid.UUID
	OrgID   string
}

func (db *DB) CardsDueBetween(ctx context.Context, from, to time.Time) ([]DueCard, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+cardColumns+`, b.id, b.org_id
		 FROM cards c
		 JOIN lists l ON l.id = c.list_id
		 JOIN boards b ON b.id = l.board_id
		 JOIN organizations o ON o.id = b.org_id AND o.deleted_at IS NULL
		 WHERE c.due_date >= $1 AND c.due_date < $2`, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cards due between: %w", err)
	}
	defer rows.Close()

	var out []DueCard
	for rows.Next() {
		var d DueCard
		if err := rows.Scan(&d.Card.ID, &d.Card.ListID, &d.Card.Title, &d.Card.Description,
			&d.Card.Priority, &d.Card.DueDate, &d.Card.AssigneeUserID, &d.Card.Order,
			&d.Card.CreatedAt, &d.Card.UpdatedAt, &d.BoardID, &d.OrgID); err != nil {
			return nil, fmt.Errorf("storage: scan due card: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: cards due between: %w", err)
	}
	return out, nil
}

// listTail reads a list's highest rank inside the caller's transaction.
// Empty string means the list has no cards.
func listTail(ctx context.Context, tx pgx.Tx, listID uuid.UUID) (string, error) {
	var tail string
	err := tx.QueryRow(ctx,
		`SELECT sort_order FROM cards WHERE list_id = $1
		 ORDER BY sort_order DESC LIMIT 1`, listID,
	).Scan(&tail)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tail, nil
}

// rebalanceListTx rewrites every rank in a list with fresh single-step
// values, preserving relative order. Runs inside the caller's
// transaction when a rank hits the length ceiling, so fallback ranks do
// not accumulate forever.
func rebalanceListTx(ctx context.Context, tx pgx.Tx, listID uuid.UUID) error {
	rows, err := tx.Query(ctx,
		`SELECT id, sort_order FROM cards WHERE list_id = $1
		 ORDER BY sort_order FOR UPDATE`, listID,
	)
	if err != nil {
		return fmt.Errorf("storage: rebalance list: %w", err)
	}
	var items []lexorank.Ranked
	for rows.Next() {
		var it lexorank.Ranked
		if err := rows.Scan(&it.ID, &it.Order); err != nil {
			rows.Close()
			return fmt.Errorf("storage: rebalance scan: %w", err)
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("storage: rebalance list: %w", err)
	}

	for _, it := range lexorank.Rebalance(items) {
		if _, err := tx.Exec(ctx,
			`UPDATE cards SET sort_order = $1, updated_at = now() WHERE id = $2`,
			it.Order, it.ID,
		); err != nil {
			return fmt.Errorf("storage: rebalance card %s: %w", it.ID, err)
		}
	}
	return nil
}
