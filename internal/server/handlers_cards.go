package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/tenant"
)

// HandleCreateCard handles POST /v1/boards/{board_id}/cards.
func (h *Handlers) HandleCreateCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	var req model.CreateCardRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID

	res := action.Run(r.Context(), h.pipe, tc, "create-card", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.CreateCardRequest) (model.Card, error) {
			return h.db.CreateCard(ctx, tc.OrgID, in.ListID, in.Title)
		})
	if res.Data != nil {
		card := *res.Data
		h.audit(r, tc, "card", card.ID.String(), card.Title, model.AuditCreate)
		h.emit(r.Context(), model.Event{
			Type:    model.TriggerCardCreated,
			OrgID:   tc.OrgID,
			BoardID: boardID,
			CardID:  card.ID,
			Context: model.EventContext{CardTitle: card.Title},
		})
	}
	writeResult(w, res)
}

// HandleListCards handles GET /v1/lists/{list_id}/cards.
func (h *Handlers) HandleListCards(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	listID, ok := pathID(w, r, "list_id")
	if !ok {
		return
	}
	cards, err := h.db.ListCards(r.Context(), tc.OrgID, listID)
	if err != nil {
		h.logger.Error("list cards failed", "org_id", tc.OrgID, "list_id", listID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, cards)
}

// HandleGetCard handles GET /v1/cards/{card_id}.
func (h *Handlers) HandleGetCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "card_id")
	if !ok {
		return
	}
	card, err := h.db.GetCard(r.Context(), tc.OrgID, cardID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not found")
			return
		}
		h.logger.Error("get card failed", "org_id", tc.OrgID, "card_id", cardID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, card)
}

// cardUpdate is the outcome of an update action: the stored card after
// the patch, plus the pre-image needed for event derivation.
type cardUpdate struct {
	before model.Card
	after  model.Card
}

// HandleUpdateCard handles PATCH /v1/boards/{board_id}/cards/{card_id}.
func (h *Handlers) HandleUpdateCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "card_id")
	if !ok {
		return
	}
	var req model.UpdateCardRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID
	req.ID = cardID

	var upd cardUpdate
	res := action.Run(r.Context(), h.pipe, tc, "update-card", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.UpdateCardRequest) (model.Card, error) {
			patch := storage.CardPatch{
				Title:          in.Title,
				Description:    in.Description,
				Priority:       in.Priority,
				DueDate:        in.DueDate,
				ClearDueDate:   in.ClearDueDate,
				AssigneeUserID: in.AssigneeUserID,
				ClearAssignee:  in.ClearAssignee,
			}
			before, after, err := h.db.UpdateCard(ctx, tc.OrgID, in.ID, patch)
			if err != nil {
				return model.Card{}, err
			}
			upd = cardUpdate{before: before, after: after}
			return after, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "card", upd.after.ID.String(), upd.after.Title, model.AuditUpdate)
		h.emitCardDiff(r.Context(), tc.OrgID, boardID, upd)
	}
	writeResult(w, res)
}

// emitCardDiff derives lifecycle events from a card update's pre and post
// images. Each changed dimension emits its own event; an assignment event
// fires only when the assignee was set, never when cleared.
func (h *Handlers) emitCardDiff(ctx context.Context, orgID string, boardID uuid.UUID, upd cardUpdate) {
	base := model.Event{
		OrgID:   orgID,
		BoardID: boardID,
		CardID:  upd.after.ID,
		Context: model.EventContext{CardTitle: upd.after.Title},
	}

	// A changed deadline re-arms the scanner so the new date can fire
	// its own due-soon/overdue events.
	if h.dueDates != nil && !equalTime(upd.before.DueDate, upd.after.DueDate) {
		h.dueDates.Forget(upd.after.ID)
	}

	if upd.before.Title != upd.after.Title {
		ev := base
		ev.Type = model.TriggerCardTitleContains
		h.emit(ctx, ev)
	}
	if upd.before.Priority != upd.after.Priority {
		ev := base
		ev.Type = model.TriggerPriorityChanged
		ev.Context.Priority = upd.after.Priority
		h.emit(ctx, ev)
	}
	if upd.after.AssigneeUserID != nil &&
		(upd.before.AssigneeUserID == nil || *upd.before.AssigneeUserID != *upd.after.AssigneeUserID) {
		ev := base
		ev.Type = model.TriggerMemberAssigned
		ev.Context.AssigneeID = upd.after.AssigneeUserID
		h.emit(ctx, ev)
	}
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// HandleDeleteCard handles DELETE /v1/boards/{board_id}/cards/{card_id}.
func (h *Handlers) HandleDeleteCard(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "card_id")
	if !ok {
		return
	}
	req := model.DeleteCardRequest{ID: cardID, BoardID: boardID}

	res := action.Run(r.Context(), h.pipe, tc, "delete-card", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.DeleteCardRequest) (model.Card, error) {
			return h.db.DeleteCard(ctx, tc.OrgID, in.ID)
		})
	if res.Data != nil {
		card := *res.Data
		h.audit(r, tc, "card", card.ID.String(), card.Title, model.AuditDelete)
		if h.dueDates != nil {
			h.dueDates.Forget(card.ID)
		}
		h.emit(r.Context(), model.Event{
			Type:    model.TriggerCardDeleted,
			OrgID:   tc.OrgID,
			BoardID: boardID,
			CardID:  card.ID,
			Context: model.EventContext{CardTitle: card.Title},
		})
	}
	writeResult(w, res)
}

// HandleReorderCards handles POST /v1/boards/{board_id}/cards/reorder.
// Cross-list moves detected against the pre-write snapshot each emit one
// CARD_MOVED event carrying the stored title, never the client-sent one.
func (h *Handlers) HandleReorderCards(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	var req model.ReorderCardsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID

	var moves []storage.CardMove
	type reorderOutcome struct {
		Updated int `json:"updated"`
		Moved   int `json:"moved"`
	}
	res := action.Run(r.Context(), h.pipe, tc, "update-card-order", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.ReorderCardsRequest) (reorderOutcome, error) {
			var err error
			moves, err = h.db.ReorderCards(ctx, tc.OrgID, in.BoardID, in.Items)
			if err != nil {
				return reorderOutcome{}, err
			}
			return reorderOutcome{Updated: len(in.Items), Moved: len(moves)}, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "board", boardID.String(), "", model.AuditUpdate)
		for _, mv := range moves {
			from, to := mv.FromListID, mv.ToListID
			h.emit(r.Context(), model.Event{
				Type:    model.TriggerCardMoved,
				OrgID:   tc.OrgID,
				BoardID: boardID,
				CardID:  mv.CardID,
				Context: model.EventContext{
					FromListID: &from,
					ToListID:   &to,
					CardTitle:  mv.Title,
				},
			})
		}
	}
	writeResult(w, res)
}
