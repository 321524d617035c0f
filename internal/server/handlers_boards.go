package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
	"github.com/tavle/tavle/internal/tenant"
)

// HandleCreateBoard handles POST /v1/boards.
func (h *Handlers) HandleCreateBoard(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	var req model.CreateBoardRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	res := action.Run(r.Context(), h.pipe, tc, "create-board", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.CreateBoardRequest) (model.Board, error) {
			return h.db.CreateBoard(ctx, tc.OrgID, in.Title, in.ImageURL)
		})
	if res.Data != nil {
		h.audit(r, tc, "board", res.Data.ID.String(), res.Data.Title, model.AuditCreate)
	}
	writeResult(w, res)
}

// HandleListBoards handles GET /v1/boards.
func (h *Handlers) HandleListBoards(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boards, err := h.db.ListBoards(r.Context(), tc.OrgID)
	if err != nil {
		h.logger.Error("list boards failed", "org_id", tc.OrgID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, boards)
}

// HandleGetBoard handles GET /v1/boards/{board_id}.
func (h *Handlers) HandleGetBoard(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	board, err := h.db.GetBoard(r.Context(), tc.OrgID, boardID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not found")
			return
		}
		h.logger.Error("get board failed", "org_id", tc.OrgID, "board_id", boardID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, board)
}

// HandleUpdateBoard handles PATCH /v1/boards/{board_id}.
func (h *Handlers) HandleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	var req model.UpdateBoardRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.BoardID = boardID

	res := action.Run(r.Context(), h.pipe, tc, "update-board", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in model.UpdateBoardRequest) (model.Board, error) {
			return h.db.UpdateBoard(ctx, tc.OrgID, in.BoardID, in.Title)
		})
	if res.Data != nil {
		h.audit(r, tc, "board", res.Data.ID.String(), res.Data.Title, model.AuditUpdate)
	}
	writeResult(w, res)
}

// HandleDeleteBoard handles DELETE /v1/boards/{board_id}.
func (h *Handlers) HandleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	boardID, ok := pathID(w, r, "board_id")
	if !ok {
		return
	}
	req := model.DeleteBoardRequest{BoardID: boardID}

	res := action.Run(r.Context(), h.pipe, tc, "delete-board", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in model.DeleteBoardRequest) (model.Board, error) {
			return h.db.DeleteBoard(ctx, tc.OrgID, in.BoardID)
		})
	if res.Data != nil {
		h.audit(r, tc, "board", res.Data.ID.String(), res.Data.Title, model.AuditDelete)
	}
	writeResult(w, res)
}
