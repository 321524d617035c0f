// Package model defines the core domain entities, roles, events, and
// request/response types shared across the Tavle subsystems.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Plan is an organization's subscription tier.
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// Organization is the top-level tenant. Every entity below it is owned
// transitively by exactly one organization.
type Organization struct {
	ID        string     `json:"id"` // External identity-provider org id, opaque.
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Plan      Plan       `json:"plan"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"` // Soft delete; non-nil means the org is gone.
}

// User is a person known to the platform. Users are not owned by any
// organization — membership links them to tenants.
type User struct {
	ID                 uuid.UUID `json:"id"`
	ExternalIdentityID string    `json:"externalIdentityId"` // Unique id from the identity provider.
	Email              string    `json:"email"`
	DisplayName        string    `json:"displayName"`
	AvatarURL          *string   `json:"avatarUrl,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Membership links a user to an organization with a role.
// Composite primary key (UserID, OrgID).
type Membership struct {
	UserID   uuid.UUID `json:"userId"`
	OrgID    string    `json:"orgId"`
	Role     Role      `json:"role"`
	IsActive bool      `json:"isActive"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Board is a kanban board owned by exactly one organization.
type Board struct {
	ID        uuid.UUID `json:"id"`
	OrgID     string    `json:"orgId"`
	Title     string    `json:"title"`
	ImageURL  *string   `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// List is a column on a board. Order is a LexoRank string; byte
// comparison of Order values yields display order.
type List struct {
	ID        uuid.UUID `json:"id"`
	BoardID   uuid.UUID `json:"boardId"`
	Title     string    `json:"title"`
	Order     string    `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Priority is a card's urgency level.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// ValidPriority reports whether p is one of the defined priority levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Card is a kanban card. Ownership chain: Card → List → Board → Organization.
type Card struct {
	ID             uuid.UUID  `json:"id"`
	ListID         uuid.UUID  `json:"listId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       Priority   `json:"priority"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	AssigneeUserID *uuid.UUID `json:"assigneeUserId,omitempty"`
	Order          string     `json:"order"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Label is an org-scoped tag. Unique on (OrgID, Name).
type Label struct {
	ID    uuid.UUID `json:"id"`
	OrgID string    `json:"orgId"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

// Comment is a discussion entry on a card. If ParentID is set, the parent
// comment must belong to the same card.
type Comment struct {
	ID           uuid.UUID  `json:"id"`
	CardID       uuid.UUID  `json:"cardId"`
	AuthorUserID uuid.UUID  `json:"authorUserId"`
	Text         string     `json:"text"`
	ParentID     *uuid.UUID `json:"parentId,omitempty"`
	IsDraft      bool       `json:"isDraft"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Reaction is an emoji reaction on a comment.
// Unique on (CommentID, UserID, Emoji).
type Reaction struct {
	ID        uuid.UUID `json:"id"`
	CommentID uuid.UUID `json:"commentId"`
	UserID    uuid.UUID `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Checklist is a list of completable items attached to a card.
type Checklist struct {
	ID        uuid.UUID `json:"id"`
	CardID    uuid.UUID `json:"cardId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChecklistItem is a single entry in a checklist.
type ChecklistItem struct {
	ID          uuid.UUID `json:"id"`
	ChecklistID uuid.UUID `json:"checklistId"`
	Text        string    `json:"text"`
	IsComplete  bool      `json:"isComplete"`
	Position    int       `json:"position"`
}

// Webhook is an org-scoped outbound HTTP subscription.
// Secret is the shared HMAC key; raw, never logged, never serialized.
type Webhook struct {
	ID        uuid.UUID `json:"id"`
	OrgID     string    `json:"orgId"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	IsEnabled bool      `json:"isEnabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// WebhookDelivery is an append-only record of one delivery attempt chain
// against a single webhook endpoint.
type WebhookDelivery struct {
	ID         uuid.UUID     `json:"id"`
	WebhookID  uuid.UUID     `json:"webhookId"`
	Event      string        `json:"event"`
	Payload    []byte        `json:"payload"`
	StatusCode *int          `json:"statusCode,omitempty"`
	Success    bool          `json:"success"`
	Duration   time.Duration `json:"durationMs"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// AuditAction classifies a mutation recorded in the audit log.
type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// AuditLog is an append-only record of a mutating action.
type AuditLog struct {
	ID          uuid.UUID   `json:"id"`
	OrgID       string      `json:"orgId"`
	UserID      uuid.UUID   `json:"userId"`
	EntityType  string      `json:"entityType"`
	EntityID    string      `json:"entityId"`
	EntityTitle string      `json:"entityTitle,omitempty"`
	Action      AuditAction `json:"action"`
	IPAddress   *string     `json:"ipAddress,omitempty"`
	UserAgent   *string     `json:"userAgent,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// PlanLimits caps resource creation per subscription tier.
// Unlimited is expressed as a negative value.
type PlanLimits struct {
	Boards        int `json:"boards"`
	CardsPerBoard int `json:"cardsPerBoard"`
}

// Unlimited marks a plan dimension with no cap.
const Unlimited = -1

// LimitsFor returns the creation caps for a plan. Unknown plans get the
// FREE limits — fail-closed for anything unrecognised.
func LimitsFor(p Plan) PlanLimits {
	if p == PlanPro {
		return PlanLimits{Boards: Unlimited, CardsPerBoard: Unlimited}
	}
	return PlanLimits{Boards: 50, CardsPerBoard: 500}
}
