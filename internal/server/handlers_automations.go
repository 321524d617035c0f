package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/tenant"
)

// HandleCreateAutomation handles POST /v1/automations.
func (h *Handlers) HandleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	var req model.CreateAutomationRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	res := action.Run(r.Context(), h.pipe, tc, "create-automation", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in model.CreateAutomationRequest) (model.Automation, error) {
			return h.db.CreateAutomation(ctx, model.Automation{
				OrgID:      tc.OrgID,
				BoardID:    in.BoardID,
				Name:       in.Name,
				IsEnabled:  true,
				Trigger:    in.Trigger,
				Conditions: in.Conditions,
				Actions:    in.Actions,
			})
		})
	if res.Data != nil {
		h.audit(r, tc, "automation", res.Data.ID.String(), res.Data.Name, model.AuditCreate)
	}
	writeResult(w, res)
}

// HandleListAutomations handles GET /v1/automations.
func (h *Handlers) HandleListAutomations(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	automations, err := h.db.ListAutomations(r.Context(), tc.OrgID)
	if err != nil {
		h.logger.Error("list automations failed", "org_id", tc.OrgID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, automations)
}

// HandleUpdateAutomation handles PATCH /v1/automations/{automation_id}.
// Nil fields keep the stored value; an isEnabled-only patch is a toggle.
func (h *Handlers) HandleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	automationID, ok := pathID(w, r, "automation_id")
	if !ok {
		return
	}
	var req model.UpdateAutomationRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.ID = automationID

	res := action.Run(r.Context(), h.pipe, tc, "update-automation", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in model.UpdateAutomationRequest) (model.Automation, error) {
			existing, err := h.db.GetAutomation(ctx, tc.OrgID, in.ID)
			if err != nil {
				return model.Automation{}, err
			}
			if in.Name != nil {
				existing.Name = *in.Name
			}
			if in.IsEnabled != nil {
				existing.IsEnabled = *in.IsEnabled
			}
			if in.Trigger != nil {
				existing.Trigger = *in.Trigger
			}
			if in.Conditions != nil {
				existing.Conditions = *in.Conditions
			}
			if in.Actions != nil {
				existing.Actions = *in.Actions
			}
			return h.db.UpdateAutomation(ctx, existing)
		})
	if res.Data != nil {
		h.audit(r, tc, "automation", res.Data.ID.String(), res.Data.Name, model.AuditUpdate)
	}
	writeResult(w, res)
}

// HandleDeleteAutomation handles DELETE /v1/automations/{automation_id}.
func (h *Handlers) HandleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	automationID, ok := pathID(w, r, "automation_id")
	if !ok {
		return
	}
	req := model.DeleteAutomationRequest{ID: automationID}

	type deleted struct {
		ID string `json:"id"`
	}
	res := action.Run(r.Context(), h.pipe, tc, "delete-automation", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in model.DeleteAutomationRequest) (deleted, error) {
			if err := h.db.DeleteAutomation(ctx, tc.OrgID, in.ID); err != nil {
				return deleted{}, err
			}
			return deleted{ID: in.ID.String()}, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "automation", automationID.String(), "", model.AuditDelete)
	}
	writeResult(w, res)
}

// HandleListAutomationLogs handles GET /v1/automations/{automation_id}/logs.
func (h *Handlers) HandleListAutomationLogs(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	automationID, ok := pathID(w, r, "automation_id")
	if !ok {
		return
	}
	logs, err := h.db.ListAutomationLogs(r.Context(), tc.OrgID, automationID, queryLimit(r))
	if err != nil {
		h.logger.Error("list automation logs failed",
			"org_id", tc.OrgID, "automation_id", automationID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, logs)
}

// queryLimit parses the optional ?limit= query parameter. Zero lets the
// storage layer apply its default clamp.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
