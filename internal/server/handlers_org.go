package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/action"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/tenant"
)

// HandleListMembers handles GET /v1/members.
func (h *Handlers) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	members, err := h.db.ListMemberships(r.Context(), tc.OrgID)
	if err != nil {
		h.logger.Error("list members failed", "org_id", tc.OrgID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, members)
}

// updateMemberRequest patches a membership's role or active flag.
type updateMemberRequest struct {
	UserID   uuid.UUID   `json:"userId"`
	Role     *model.Role `json:"role,omitempty"`
	IsActive *bool       `json:"isActive,omitempty"`
}

func (r updateMemberRequest) Validate() model.FieldErrors {
	fe := model.FieldErrors{}
	if r.UserID == uuid.Nil {
		fe["userId"] = "Required"
	}
	if r.Role == nil && r.IsActive == nil {
		fe["role"] = "Nothing to update"
	}
	if r.Role != nil {
		switch *r.Role {
		case model.RoleGuest, model.RoleMember, model.RoleAdmin, model.RoleOwner:
		default:
			fe["role"] = "Unknown role"
		}
	}
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// HandleUpdateMember handles PATCH /v1/members/{user_id}. Role and
// activation changes are local-only and never synced back to the
// identity provider.
func (h *Handlers) HandleUpdateMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	var req updateMemberRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.UserID = userID

	res := action.Run(r.Context(), h.pipe, tc, "update-member", model.RoleAdmin, req,
		func(ctx context.Context, tc tenant.Context, in updateMemberRequest) (model.Membership, error) {
			if in.Role != nil {
				if err := h.db.SetMembershipRole(ctx, in.UserID, tc.OrgID, *in.Role); err != nil {
					return model.Membership{}, err
				}
			}
			if in.IsActive != nil {
				if err := h.db.SetMembershipActive(ctx, in.UserID, tc.OrgID, *in.IsActive); err != nil {
					return model.Membership{}, err
				}
			}
			return h.db.GetMembership(ctx, in.UserID, tc.OrgID)
		})
	if res.Data != nil {
		h.audit(r, tc, "membership", userID.String(), "", model.AuditUpdate)
	}
	writeResult(w, res)
}

// updatePlanRequest switches the org's subscription tier.
type updatePlanRequest struct {
	Plan model.Plan `json:"plan"`
}

func (r updatePlanRequest) Validate() model.FieldErrors {
	if r.Plan != model.PlanFree && r.Plan != model.PlanPro {
		return model.FieldErrors{"plan": "Unknown plan"}
	}
	return nil
}

// HandleUpdatePlan handles PATCH /v1/org/plan. Owner only.
func (h *Handlers) HandleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	tc, ok := mustTenant(w, r)
	if !ok {
		return
	}
	var req updatePlanRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	res := action.Run(r.Context(), h.pipe, tc, "update-plan", model.RoleOwner, req,
		func(ctx context.Context, tc tenant.Context, in updatePlanRequest) (model.Organization, error) {
			if err := h.db.SetOrganizationPlan(ctx, tc.OrgID, in.Plan); err != nil {
				return model.Organization{}, err
			}
			return h.db.GetOrganization(ctx, tc.OrgID)
		})
	if res.Data != nil {
		h.audit(r, tc, "organization", tc.OrgID, string(res.Data.Plan), model.AuditUpdate)
	}
	writeResult(w, res)
}
