package server

import (
	"context"
	"net/http"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/tenant"
	"github.com/tavle/tavle/internal/webhook"
)

// HandleCreateWebhook handles POST /v1/webhooks. The target URL is vetted
// against the private-network guard before anything is stored.
func (h *Handlers) HandleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	var req model.CreateWebhookRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	res := action.Run(r.Context(), h.pipe, tc, "create-webhook", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in model.CreateWebhookRequest) (model.Webhook, error) {
			if err := webhook.ValidateURL(in.URL, h.webhookRequireTLS); err != nil {
				return model.Webhook{}, action.Failf("Webhook URL is not allowed.")
			}
			return h.db.CreateWebhook(ctx, model.Webhook{
				OrgID:     tc.OrgID,
				URL:       in.URL,
				Secret:    in.Secret,
				Events:    in.Events,
				IsEnabled: true,
			})
		})
	if res.Data != nil {
		h.audit(r, tc, "webhook", res.Data.ID.String(), res.Data.URL, model.AuditCreate)
	}
	writeResult(w, res)
}

// HandleListWebhooks handles GET /v1/webhooks.
func (h *Handlers) HandleListWebhooks(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	hooks, err := h.db.ListWebhooks(r.Context(), tc.OrgID)
	if err != nil {
		h.logger.Error("list webhooks failed", "org_id", tc.OrgID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, hooks)
}

// HandleUpdateWebhook handles PATCH /v1/webhooks/{webhook_id}. A changed
// URL goes through the same guard as registration.
func (h *Handlers) HandleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	webhookID, ok := pathID(w, r, "webhook_id")
	if !ok {
		return
	}
	var req model.UpdateWebhookRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.ID = webhookID

	res := action.Run(r.Context(), h.pipe, tc, "update-webhook", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in model.UpdateWebhookRequest) (model.Webhook, error) {
			existing, err := h.db.GetWebhook(ctx, tc.OrgID, in.ID)
			if err != nil {
				return model.Webhook{}, err
			}
			if in.URL != nil {
				if err := webhook.ValidateURL(*in.URL, h.webhookRequireTLS); err != nil {
					return model.Webhook{}, action.Failf("Webhook URL is not allowed.")
				}
				existing.URL = *in.URL
			}
			if in.Events != nil {
				existing.Events = *in.Events
			}
			if in.IsEnabled != nil {
				existing.IsEnabled = *in.IsEnabled
			}
			existing.Secret = "" // Keep the stored secret.
			return h.db.UpdateWebhook(ctx, existing)
		})
	if res.Data != nil {
		h.audit(r, tc, "webhook", res.Data.ID.String(), res.Data.URL, model.AuditUpdate)
	}
	writeResult(w, res)
}

// HandleDeleteWebhook handles DELETE /v1/webhooks/{webhook_id}.
func (h *Handlers) HandleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	webhookID, ok := pathID(w, r, "webhook_id")
	if !ok {
		return
	}
	req := model.DeleteWebhookRequest{ID: webhookID}

	type deleted struct {
		ID string `json:"id"`
	}
	res := action.Run(r.Context(), h.pipe, tc, "delete-webhook", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in model.DeleteWebhookRequest) (deleted, error) {
			if err := h.db.DeleteWebhook(ctx, tc.OrgID, in.ID); err != nil {
				return deleted{}, err
			}
			return deleted{ID: in.ID.String()}, nil
		})
	if res.Data != nil {
		h.audit(r, tc, "webhook", webhookID.String(), "", model.AuditDelete)
	}
	writeResult(w, res)
}

// HandleListWebhookDeliveries handles GET /v1/webhooks/{webhook_id}/deliveries.
func (h *Handlers) HandleListWebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	webhookID, ok := pathID(w, r, "webhook_id")
	if !ok {
		return
	}
	deliveries, err := h.db.ListWebhookDeliveries(r.Context(), tc.OrgID, webhookID, queryLimit(r))
	if err != nil {
		h.logger.Error("list webhook deliveries failed",
			"org_id", tc.OrgID, "webhook_id", webhookID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, deliveries)
}
