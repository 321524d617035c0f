package server

import (
	"context"
	"net/http"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/tenant"
)

// HandleCreateList handles POST /v1/boards/{board_id}/lists.
func (h *Handlers) HandleCreateList(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	var req model.CreateListRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID

	res := action.Run(r.Context(), h.pipe, tc, "create-list", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.CreateListRequest) (model.List, error) {
			return h.db.CreateList(ctx, tc.OrgID, in.BoardID, in.Title)
		})
	if res.Data != nil {
		h.audit(r, tc, "list", res.Data.ID.String(), res.Data.Title, model.AuditCreate)
	}
	writeResult(w, res)
}

// HandleListLists handles GET /v1/boards/{board_id}/lists.
func (h *Handlers) HandleListLists(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	lists, err := h.db.ListLists(r.Context(), tc.OrgID, boardID)
	if err != nil {
		h.logger.Error("list lists failed", "org_id", tc.OrgID, "board_id", boardID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, lists)
}

// HandleUpdateList handles PATCH /v1/boards/{board_id}/lists/{list_id}.
func (h *Handlers) HandleUpdateList(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	listID, ok := pathID(w, r, "list_id")
	if !ok {
		return
	}
	var req model.UpdateListRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID
	req.ListID = listID

	res := action.Run(r.Context(), h.pipe, tc, "update-list", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.UpdateListRequest) (model.List, error) {
			return h.db.UpdateList(ctx, tc.OrgID, in.ListID, in.Title)
		})
	if res.Data != nil {
		h.audit(r, tc, "list", res.Data.ID.String(), res.Data.Title, model.AuditUpdate)
	}
	writeResult(w, res)
}

// HandleDeleteList handles DELETE /v1/boards/{board_id}/lists/{list_id}.
func (h *Handlers) HandleDeleteList(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	listID, ok := pathID(w, r, "list_id")
	if !ok {
		return
	}
	req := model.DeleteListRequest{ListID: listID, BoardID: boardID}

	res := action.Run(r.Context(), h.pipe, tc, "delete-list", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.DeleteListRequest) (model.List, error) {
			return h.db.DeleteList(ctx, tc.OrgID, in.ListID)
		})
	if res.Data != nil {
		h.audit(r, tc, "list", res.Data.ID.String(), res.Data.Title, model.AuditDelete)
	}
	writeResult(w, res)
}

// HandleReorderLists handles POST /v1/boards/{board_id}/lists/reorder.
func (h *Handlers) HandleReorderLists(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	var req model.ReorderListsRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID

	type reorderOutcome struct {
		Updated int `json:"updated"`
	}
	res := action.Run(r.Context(), h.pipe, tc, "update-list-order", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.ReorderListsRequest) (reorderOutcome, error) {
			if err := h.db.ReorderLists(ctx, tc.OrgID, in.BoardID, in.Items); err != nil {
				return reorderOutcome{}, err
			}
			return reorderOutcome{Updated: len(in.Items)}, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "board", boardID.String(), "", model.AuditUpdate)
	}
	writeResult(w, res)
}
