package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/tenant"
)

// HandleCreateChecklist handles POST /v1/boards/{board_id}/cards/{card_id}/checklists.
func (h *Handlers) HandleCreateChecklist(w http.ResponseWriter, r *http.Request) {
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
	var req model.CreateChecklistRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID
	req.CardID = cardID

	res := action.Run(r.Context(), h.pipe, tc, "create-checklist", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.CreateChecklistRequest) (model.Checklist, error) {
			return h.db.CreateChecklist(ctx, tc.OrgID, in.CardID, in.Title)
		})
	if res.Data != nil {
		h.audit(r, tc, "checklist", res.Data.ID.String(), res.Data.Title, model.AuditCreate)
	}
	writeResult(w, res)
}

// checklistView pairs a checklist with its items for read responses.
type checklistView struct {
	Checklist model.Checklist       `json:"checklist"`
	Items     []model.ChecklistItem `json:"items"`
}

// HandleListChecklists handles GET /v1/cards/{card_id}/checklists.
func (h *Handlers) HandleListChecklists(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "card_id")
	if !ok {
		return
	}
	lists, items, err := h.db.ListChecklists(r.Context(), tc.OrgID, cardID)
	if err != nil {
		h.logger.Error("list checklists failed", "org_id", tc.OrgID, "card_id", cardID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]checklistView, 0, len(lists))
	for _, cl := range lists {
		its := items[cl.ID]
		if its == nil {
			its = []model.ChecklistItem{}
		}
		views = append(views, checklistView{Checklist: cl, Items: its})
	}
	writeJSON(w, r, http.StatusOK, views)
}

// HandleDeleteChecklist handles DELETE /v1/boards/{board_id}/checklists/{checklist_id}.
func (h *Handlers) HandleDeleteChecklist(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	if _, ok := pathID(w, r, "board_id"); !ok {
		return
	}
	checklistID, ok := pathID(w, r, "checklist_id")
	if !ok {
		return
	}

	type deleted struct {
		ID string `json:"id"`
	}
	res := action.Run(r.Context(), h.pipe, tc, "delete-checklist", model.RoleMember, checklistID,
		func(ctx context.Context, tc tenant.Context, in uuid.UUID) (deleted, error) {
			if err := h.db.DeleteChecklist(ctx, tc.OrgID, in); err != nil {
				return deleted{}, err
			}
			return deleted{ID: in.String()}, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "checklist", checklistID.String(), "", model.AuditDelete)
	}
	writeResult(w, res)
}

// HandleAddChecklistItem handles POST /v1/boards/{board_id}/checklists/{checklist_id}/items.
func (h *Handlers) HandleAddChecklistItem(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	checklistID, ok := pathID(w, r, "checklist_id")
	if !ok {
		return
	}
	var req model.AddChecklistItemRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID
	req.ChecklistID = checklistID

	res := action.Run(r.Context(), h.pipe, tc, "add-checklist-item", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.AddChecklistItemRequest) (model.ChecklistItem, error) {
			return h.db.AddChecklistItem(ctx, tc.OrgID, in.ChecklistID, in.Text)
		})
	if res.Data != nil {
		h.audit(r, tc, "checklist", checklistID.String(), "", model.AuditUpdate)
	}
	writeResult(w, res)
}

// HandleToggleChecklistItem handles PATCH /v1/boards/{board_id}/checklist-items/{item_id}.
// Completing the final open item of a checklist emits CHECKLIST_COMPLETED.
func (h *Handlers) HandleToggleChecklistItem(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}
	var req model.ToggleChecklistItemRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID
	req.ItemID = itemID

	var completedCard *uuid.UUID
	var completedChecklist uuid.UUID
	res := action.Run(r.Context(), h.pipe, tc, "toggle-checklist-item", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.ToggleChecklistItemRequest) (model.ChecklistItem, error) {
			item, completed, err := h.db.SetChecklistItemComplete(ctx, tc.OrgID, in.ItemID, in.Complete)
			if err != nil {
				return model.ChecklistItem{}, err
			}
			if completed {
				cl, err := h.db.GetChecklist(ctx, tc.OrgID, item.ChecklistID)
				if err == nil {
					completedCard = &cl.CardID
					completedChecklist = cl.ID
				}
			}
			return item, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "checklist", res.Data.ChecklistID.String(), "", model.AuditUpdate)
		if completedCard != nil {
			h.emit(r.Context(), model.Event{
				Type:    model.TriggerChecklistCompleted,
				OrgID:   tc.OrgID,
				BoardID: boardID,
				CardID:  *completedCard,
				Context: model.EventContext{ChecklistID: &completedChecklist},
			})
		}
	}
	writeResult(w, res)
}
