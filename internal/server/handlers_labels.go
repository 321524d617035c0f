package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/tenant"
)

// HandleCreateLabel handles POST /v1/labels.
func (h *Handlers) HandleCreateLabel(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	var req model.CreateLabelRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	res := action.Run(r.Context(), h.pipe, tc, "create-label", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.CreateLabelRequest) (model.Label, error) {
			return h.db.CreateLabel(ctx, tc.OrgID, in.Name, in.Color)
		})
	if res.Data != nil {
		h.audit(r, tc, "label", res.Data.ID.String(), res.Data.Name, model.AuditCreate)
	}
	writeResult(w, res)
}

// HandleListLabels handles GET /v1/labels.
func (h *Handlers) HandleListLabels(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	labels, err := h.db.ListLabels(r.Context(), tc.OrgID)
	if err != nil {
		h.logger.Error("list labels failed", "org_id", tc.OrgID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, labels)
}

// HandleDeleteLabel handles DELETE /v1/labels/{label_id}.
func (h *Handlers) HandleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	labelID, ok := pathID(w, r, "label_id")
	if !ok {
		return
	}

	type deleted struct {
		ID string `json:"id"`
	}
	res := action.Run(r.Context(), h.pipe, tc, "delete-label", model.RoleAdmin, labelID,
		func(ctx context.Context, tc tenant.Context, in uuid.UUID) (deleted, error) {
			if err := h.db.DeleteLabel(ctx, tc.OrgID, in); err != nil {
				return deleted{}, err
			}
			return deleted{ID: in.String()}, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "label", labelID.String(), "", model.AuditDelete)
	}
	writeResult(w, res)
}

// HandleAssignLabel handles POST /v1/boards/{board_id}/cards/{card_id}/labels.
func (h *Handlers) HandleAssignLabel(w http.ResponseWriter, r *http.Request) {
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
	var req model.AssignLabelRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID
	req.CardID = cardID

	res := action.Run(r.Context(), h.pipe, tc, "assign-label", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.AssignLabelRequest) (model.Label, error) {
			return h.db.AssignLabel(ctx, tc.OrgID, in.CardID, in.LabelID)
		})
	if res.Data != nil {
		label := *res.Data
		h.audit(r, tc, "card", cardID.String(), "", model.AuditUpdate)
		h.emit(r.Context(), model.Event{
			Type:    model.TriggerLabelAdded,
			OrgID:   tc.OrgID,
			BoardID: boardID,
			CardID:  cardID,
			Context: model.EventContext{LabelID: &label.ID},
		})
	}
	writeResult(w, res)
}

// HandleUnassignLabel handles DELETE /v1/boards/{board_id}/cards/{card_id}/labels/{label_id}.
func (h *Handlers) HandleUnassignLabel(w http.ResponseWriter, r *http.Request) {
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
	labelID, ok := pathID(w, r, "label_id")
	if !ok {
		return
	}
	req := model.UnassignLabelRequest{CardID: cardID, BoardID: boardID, LabelID: labelID}

	type removed struct {
		CardID  string `json:"cardId"`
		LabelID string `json:"labelId"`
	}
	res := action.Run(r.Context(), h.pipe, tc, "unassign-label", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.UnassignLabelRequest) (removed, error) {
			if err := h.db.UnassignLabel(ctx, tc.OrgID, in.CardID, in.LabelID); err != nil {
				return removed{}, err
			}
			return removed{CardID: in.CardID.String(), LabelID: in.LabelID.String()}, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "card", cardID.String(), "", model.AuditUpdate)
	}
	writeResult(w, res)
}

// HandleListCardLabels handles GET /v1/cards/{card_id}/labels.
func (h *Handlers) HandleListCardLabels(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "card_id")
	if !ok {
		return
	}
	labels, err := h.db.ListCardLabels(r.Context(), tc.OrgID, cardID)
	if err != nil {
		h.logger.Error("list card labels failed", "org_id", tc.OrgID, "card_id", cardID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, labels)
}
