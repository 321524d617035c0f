package tavle

import (
	"time"

	"github.com/google/uuid"
)

// Priority is a card's urgency level.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Board is a top-level Kanban board.
type Board struct {
	ID        uuid.UUID `json:"id"`
	OrgID     string    `json:"orgId"`
	Title     string    `json:"title"`
	ImageURL  *string   `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// List is a column on a board. Order is an opaque rank string; byte
// comparison of Order values yields display order.
type List struct {
	ID        uuid.UUID `json:"id"`
	BoardID   uuid.UUID `json:"boardId"`
	Title     string    `json:"title"`
	Order     string    `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Card is a work item in a list.
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

// Label is an org-scoped tag.
type Label struct {
	ID    uuid.UUID `json:"id"`
	OrgID string    `json:"orgId"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

// Comment is a discussion entry on a card.
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

// CreateBoardRequest creates a board.
type CreateBoardRequest struct {
	Title    string  `json:"title"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

// CreateListRequest adds a list to the tail of a board.
type CreateListRequest struct {
	Title string `json:"title"`
}

// CreateCardRequest adds a card to the tail of a list.
type CreateCardRequest struct {
	ListID uuid.UUID `json:"listId"`
	Title  string    `json:"title"`
}

// UpdateCardRequest patches a card. Nil fields are left unchanged; the
// Clear flags reset their optional counterparts.
type UpdateCardRequest struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Priority       *Priority  `json:"priority,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	ClearDueDate   bool       `json:"clearDueDate,omitempty"`
	AssigneeUserID *uuid.UUID `json:"assigneeUserId,omitempty"`
	ClearAssignee  bool       `json:"clearAssignee,omitempty"`
}

// CardOrderItem is one card's new position in a reorder batch.
type CardOrderItem struct {
	ID     uuid.UUID `json:"id"`
	Order  string    `json:"order"`
	ListID uuid.UUID `json:"listId"`
}

// CreateCommentRequest adds a comment to a card.
type CreateCommentRequest struct {
	Text     string     `json:"text"`
	ParentID *uuid.UUID `json:"parentId,omitempty"`
	IsDraft  bool       `json:"isDraft,omitempty"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   string `json:"uptime"`
}
