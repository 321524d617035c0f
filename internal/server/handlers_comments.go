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

// HandleCreateComment handles POST /v1/cards/{card_id}/comments.
func (h *Handlers) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "card_id")
	if !ok {
		return
	}
	var req model.CreateCommentRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.CardID = cardID

	res := action.Run(r.Context(), h.pipe, tc, "create-comment", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.CreateCommentRequest) (model.Comment, error) {
			return h.db.CreateComment(ctx, tc.OrgID, tc.UserID, in.CardID, in.Text, in.ParentID, in.IsDraft)
		})
	if res.Data != nil {
		h.audit(r, tc, "comment", res.Data.ID.String(), "", model.AuditCreate)
	}
	writeResult(w, res)
}

// HandleListComments handles GET /v1/cards/{card_id}/comments.
func (h *Handlers) HandleListComments(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	cardID, ok := pathID(w, r, "card_id")
	if !ok {
		return
	}
	comments, err := h.db.ListComments(r.Context(), tc.OrgID, tc.UserID, cardID)
	if err != nil {
		h.logger.Error("list comments failed", "org_id", tc.OrgID, "card_id", cardID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, comments)
}

// HandleUpdateComment handles PATCH /v1/comments/{comment_id}.
// Only the author may edit; a mismatch reads as a missing comment.
func (h *Handlers) HandleUpdateComment(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "comment_id")
	if !ok {
		return
	}
	var req model.UpdateCommentRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.ID = commentID

	res := action.Run(r.Context(), h.pipe, tc, "update-comment", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.UpdateCommentRequest) (model.Comment, error) {
			return h.db.UpdateComment(ctx, tc.OrgID, tc.UserID, in.ID, in.Text)
		})
	if res.Data != nil {
		h.audit(r, tc, "comment", res.Data.ID.String(), "", model.AuditUpdate)
	}
	writeResult(w, res)
}

// HandleDeleteComment handles DELETE /v1/comments/{comment_id}.
// Members may delete their own comments; admins may delete any.
func (h *Handlers) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "comment_id")
	if !ok {
		return
	}
	req := model.DeleteCommentRequest{ID: commentID}

	res := action.Run(r.Context(), h.pipe, tc, "delete-comment", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.DeleteCommentRequest) (model.Comment, error) {
			authorOnly := model.RoleRank(tc.Role) < model.RoleRank(model.RoleAdmin)
			return h.db.DeleteComment(ctx, tc.OrgID, tc.UserID, in.ID, authorOnly)
		})
	if res.Data != nil {
		h.audit(r, tc, "comment", res.Data.ID.String(), "", model.AuditDelete)
	}
	writeResult(w, res)
}

// HandleAddReaction handles POST /v1/comments/{comment_id}/reactions.
func (h *Handlers) HandleAddReaction(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "comment_id")
	if !ok {
		return
	}
	var req model.AddReactionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.CommentID = commentID

	res := action.Run(r.Context(), h.pipe, tc, "add-reaction", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.AddReactionRequest) (model.Reaction, error) {
			reaction, err := h.db.AddReaction(ctx, tc.OrgID, tc.UserID, in.CommentID, in.Emoji)
			if errors.Is(err, storage.ErrConflict) {
				return model.Reaction{}, action.Failf("Already reacted")
			}
			return reaction, err
		})
	writeResult(w, res)
}

// HandleRemoveReaction handles DELETE /v1/comments/{comment_id}/reactions.
// The emoji travels in the body: emoji bytes do not belong in a URL path.
func (h *Handlers) HandleRemoveReaction(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "comment_id")
	if !ok {
		return
	}
	var req model.RemoveReactionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.CommentID = commentID

	type removed struct {
		CommentID string `json:"commentId"`
		Emoji     string `json:"emoji"`
	}
	res := action.Run(r.Context(), h.pipe, tc, "remove-reaction", model.RoleMember, req,
		func(ctx context.Context, tc tenant.Context, in model.RemoveReactionRequest) (removed, error) {
			if err := h.db.RemoveReaction(ctx, tc.OrgID, tc.UserID, in.CommentID, in.Emoji); err != nil {
				return removed{}, err
			}
			return removed{CommentID: in.CommentID.String(), Emoji: in.Emoji}, nil
		})
	writeResult(w, res)
}

// HandleListReactions handles GET /v1/comments/{comment_id}/reactions.
func (h *Handlers) HandleListReactions(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "comment_id")
	if !ok {
		return
	}
	reactions, err := h.db.ListReactions(r.Context(), tc.OrgID, commentID)
	if err != nil {
		h.logger.Error("list reactions failed", "org_id", tc.OrgID, "comment_id", commentID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, reactions)
}
