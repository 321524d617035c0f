package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field length limits for caller-supplied text. These bound what flows
// into Postgres TEXT columns and webhook payloads.
const (
	MinTitleLen       = 1
	MaxTitleLen       = 100
	MinDescriptionLen = 3
	MaxDescriptionLen = 10000
	MaxCommentLen     = 5000
	MaxEmojiBytes     = 32
	MaxLabelNameLen   = 50
	MaxAutomationName = 100
	MaxWebhookEvents  = 20
)

// FieldErrors maps a request field name to a human-readable problem.
// A nil or empty map means the request is valid.
type FieldErrors map[string]string

func (fe FieldErrors) add(field, msg string) FieldErrors {
	if fe == nil {
		fe = FieldErrors{}
	}
	fe[field] = msg
	return fe
}

// Validator is implemented by every mutating request type. Validation runs
// before any tenant resolution or database work.
type Validator interface {
	Validate() FieldErrors
}

func checkTitle(fe FieldErrors, field, title string) FieldErrors {
	if len(title) < MinTitleLen {
		return fe.add(field, "Title is required")
	}
	if len(title) > MaxTitleLen {
		return fe.add(field, fmt.Sprintf("Title must be at most %d characters", MaxTitleLen))
	}
	return fe
}

func checkUUID(fe FieldErrors, field string, id uuid.UUID) FieldErrors {
	if id == uuid.Nil {
		return fe.add(field, "Required")
	}
	return fe
}

// validEmoji rejects plain text masquerading as an emoji. An emoji value
// must be short and contain no ASCII letters or digits ("thumbsup" is not
// an emoji, "👍" is).
func validEmoji(s string) bool {
	if s == "" || len(s) > MaxEmojiBytes {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// CreateBoardRequest creates a board in the caller's org.
type CreateBoardRequest struct {
	Title    string  `json:"title"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

func (r CreateBoardRequest) Validate() FieldErrors {
	return checkTitle(nil, "title", r.Title)
}

// UpdateBoardRequest renames a board.
type UpdateBoardRequest struct {
	BoardID uuid.UUID `json:"boardId"`
	Title   string    `json:"title"`
}

func (r UpdateBoardRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "boardId", r.BoardID)
	return checkTitle(fe, "title", r.Title)
}

// DeleteBoardRequest removes a board and everything on it.
type DeleteBoardRequest struct {
	BoardID uuid.UUID `json:"boardId"`
}

func (r DeleteBoardRequest) Validate() FieldErrors {
	return checkUUID(nil, "boardId", r.BoardID)
}

// CreateListRequest appends a list to a board.
type CreateListRequest struct {
	BoardID uuid.UUID `json:"boardId"`
	Title   string    `json:"title"`
}

func (r CreateListRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "boardId", r.BoardID)
	return checkTitle(fe, "title", r.Title)
}

// UpdateListRequest renames a list.
type UpdateListRequest struct {
	ListID  uuid.UUID `json:"listId"`
	BoardID uuid.UUID `json:"boardId"`
	Title   string    `json:"title"`
}

func (r UpdateListRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "listId", r.ListID)
	fe = checkUUID(fe, "boardId", r.BoardID)
	return checkTitle(fe, "title", r.Title)
}

// DeleteListRequest removes a list and its cards.
type DeleteListRequest struct {
	ListID  uuid.UUID `json:"listId"`
	BoardID uuid.UUID `json:"boardId"`
}

func (r DeleteListRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "listId", r.ListID)
	return checkUUID(fe, "boardId", r.BoardID)
}

// ListOrderItem is one entry of a list reorder.
type ListOrderItem struct {
	ID    uuid.UUID `json:"id"`
	Order string    `json:"order"`
}

// ReorderListsRequest replaces the rank of every listed list.
type ReorderListsRequest struct {
	BoardID uuid.UUID       `json:"boardId"`
	Items   []ListOrderItem `json:"items"`
}

func (r ReorderListsRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "boardId", r.BoardID)
	if len(r.Items) == 0 {
		fe = fe.add("items", "At least one item is required")
	}
	for _, it := range r.Items {
		if it.ID == uuid.Nil || it.Order == "" {
			fe = fe.add("items", "Every item needs an id and an order")
			break
		}
	}
	return fe
}

// CreateCardRequest appends a card to a list.
type CreateCardRequest struct {
	BoardID uuid.UUID `json:"boardId"`
	ListID  uuid.UUID `json:"listId"`
	Title   string    `json:"title"`
}

func (r CreateCardRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "boardId", r.BoardID)
	fe = checkUUID(fe, "listId", r.ListID)
	return checkTitle(fe, "title", r.Title)
}

// UpdateCardRequest patches card fields. Nil pointers leave fields untouched.
type UpdateCardRequest struct {
	ID             uuid.UUID  `json:"id"`
	BoardID        uuid.UUID  `json:"boardId"`
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Priority       *Priority  `json:"priority,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	ClearDueDate   bool       `json:"clearDueDate,omitempty"`
	AssigneeUserID *uuid.UUID `json:"assigneeUserId,omitempty"`
	ClearAssignee  bool       `json:"clearAssignee,omitempty"`
}

func (r UpdateCardRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "id", r.ID)
	fe = checkUUID(fe, "boardId", r.BoardID)
	if r.Title != nil {
		fe = checkTitle(fe, "title", *r.Title)
	}
	if r.Description != nil {
		if len(*r.Description) < MinDescriptionLen {
			fe = fe.add("description", fmt.Sprintf("Description must be at least %d characters", MinDescriptionLen))
		} else if len(*r.Description) > MaxDescriptionLen {
			fe = fe.add("description", fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLen))
		}
	}
	if r.Priority != nil && !ValidPriority(*r.Priority) {
		fe = fe.add("priority", "Unknown priority")
	}
	return fe
}

// DeleteCardRequest removes a card.
type DeleteCardRequest struct {
	ID      uuid.UUID `json:"id"`
	BoardID uuid.UUID `json:"boardId"`
}

func (r DeleteCardRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "id", r.ID)
	return checkUUID(fe, "boardId", r.BoardID)
}

// CardOrderItem is one entry of a card reorder. ListID may differ from the
// card's stored list — that is a cross-list move. Title is accepted for
// client convenience but never trusted server-side.
type CardOrderItem struct {
	ID     uuid.UUID `json:"id"`
	Order  string    `json:"order"`
	ListID uuid.UUID `json:"listId"`
	Title  string    `json:"title,omitempty"`
}

// ReorderCardsRequest replaces the rank (and possibly list) of every card
// listed. All-or-nothing: a single foreign id fails the whole request.
type ReorderCardsRequest struct {
	BoardID uuid.UUID       `json:"boardId"`
	Items   []CardOrderItem `json:"items"`
}

func (r ReorderCardsRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "boardId", r.BoardID)
	if len(r.Items) == 0 {
		fe = fe.add("items", "At least one item is required")
	}
	for _, it := range r.Items {
		if it.ID == uuid.Nil || it.ListID == uuid.Nil || it.Order == "" {
			fe = fe.add("items", "Every item needs an id, listId and order")
			break
		}
	}
	return fe
}

// CreateLabelRequest creates an org-scoped label.
type CreateLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (r CreateLabelRequest) Validate() FieldErrors {
	var fe FieldErrors
	if r.Name == "" {
		fe = fe.add("name", "Name is required")
	} else if len(r.Name) > MaxLabelNameLen {
		fe = fe.add("name", fmt.Sprintf("Name must be at most %d characters", MaxLabelNameLen))
	}
	if !validHexColor(r.Color) {
		fe = fe.add("color", "Color must be a hex value like #1e90ff")
	}
	return fe
}

func validHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// AssignLabelRequest attaches a label to a card.
type AssignLabelRequest struct {
	CardID  uuid.UUID `json:"cardId"`
	BoardID uuid.UUID `json:"boardId"`
	LabelID uuid.UUID `json:"labelId"`
}

func (r AssignLabelRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "cardId", r.CardID)
	fe = checkUUID(fe, "boardId", r.BoardID)
	return checkUUID(fe, "labelId", r.LabelID)
}

// UnassignLabelRequest detaches a label from a card.
type UnassignLabelRequest = AssignLabelRequest

// CreateCommentRequest adds a comment (or threaded reply) to a card.
type CreateCommentRequest struct {
	CardID   uuid.UUID  `json:"cardId"`
	Text     string     `json:"text"`
	ParentID *uuid.UUID `json:"parentId,omitempty"`
	IsDraft  bool       `json:"isDraft,omitempty"`
}

func (r CreateCommentRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "cardId", r.CardID)
	if r.Text == "" {
		fe = fe.add("text", "Comment text is required")
	} else if len(r.Text) > MaxCommentLen {
		fe = fe.add("text", fmt.Sprintf("Comment must be at most %d characters", MaxCommentLen))
	}
	return fe
}

// UpdateCommentRequest edits a comment's text.
type UpdateCommentRequest struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

func (r UpdateCommentRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "id", r.ID)
	if r.Text == "" {
		fe = fe.add("text", "Comment text is required")
	} else if len(r.Text) > MaxCommentLen {
		fe = fe.add("text", fmt.Sprintf("Comment must be at most %d characters", MaxCommentLen))
	}
	return fe
}

// DeleteCommentRequest removes a comment.
type DeleteCommentRequest struct {
	ID uuid.UUID `json:"id"`
}

func (r DeleteCommentRequest) Validate() FieldErrors {
	return checkUUID(nil, "id", r.ID)
}

// AddReactionRequest adds an emoji reaction to a comment.
type AddReactionRequest struct {
	CommentID uuid.UUID `json:"commentId"`
	Emoji     string    `json:"emoji"`
}

func (r AddReactionRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "commentId", r.CommentID)
	if !validEmoji(r.Emoji) {
		fe = fe.add("emoji", "Must be a single emoji")
	}
	return fe
}

// RemoveReactionRequest removes the caller's reaction from a comment.
type RemoveReactionRequest = AddReactionRequest

// CreateChecklistRequest attaches a checklist to a card.
type CreateChecklistRequest struct {
	CardID  uuid.UUID `json:"cardId"`
	BoardID uuid.UUID `json:"boardId"`
	Title   string    `json:"title"`
}

func (r CreateChecklistRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "cardId", r.CardID)
	fe = checkUUID(fe, "boardId", r.BoardID)
	return checkTitle(fe, "title", r.Title)
}

// AddChecklistItemRequest appends an item to a checklist.
type AddChecklistItemRequest struct {
	ChecklistID uuid.UUID `json:"checklistId"`
	BoardID     uuid.UUID `json:"boardId"`
	Text        string    `json:"text"`
}

func (r AddChecklistItemRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "checklistId", r.ChecklistID)
	fe = checkUUID(fe, "boardId", r.BoardID)
	if r.Text == "" {
		fe = fe.add("text", "Item text is required")
	} else if len(r.Text) > MaxTitleLen {
		fe = fe.add("text", fmt.Sprintf("Item text must be at most %d characters", MaxTitleLen))
	}
	return fe
}

// ToggleChecklistItemRequest marks an item complete or incomplete.
type ToggleChecklistItemRequest struct {
	ItemID   uuid.UUID `json:"itemId"`
	BoardID  uuid.UUID `json:"boardId"`
	Complete bool      `json:"complete"`
}

func (r ToggleChecklistItemRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "itemId", r.ItemID)
	return checkUUID(fe, "boardId", r.BoardID)
}

// CreateAutomationRequest defines a new automation rule.
type CreateAutomationRequest struct {
	BoardID    *uuid.UUID  `json:"boardId,omitempty"`
	Name       string      `json:"name"`
	Trigger    Trigger     `json:"trigger"`
	Conditions []Condition `json:"conditions,omitempty"`
	Actions    []Action    `json:"actions"`
}

func (r CreateAutomationRequest) Validate() FieldErrors {
	var fe FieldErrors
	if r.Name == "" {
		fe = fe.add("name", "Name is required")
	} else if len(r.Name) > MaxAutomationName {
		fe = fe.add("name", fmt.Sprintf("Name must be at most %d characters", MaxAutomationName))
	}
	if r.Trigger.Type == "" {
		fe = fe.add("trigger", "Trigger type is required")
	}
	if len(r.Actions) == 0 {
		fe = fe.add("actions", "At least one action is required")
	}
	return fe
}

// UpdateAutomationRequest toggles or edits an automation.
type UpdateAutomationRequest struct {
	ID         uuid.UUID    `json:"id"`
	Name       *string      `json:"name,omitempty"`
	IsEnabled  *bool        `json:"isEnabled,omitempty"`
	Trigger    *Trigger     `json:"trigger,omitempty"`
	Conditions *[]Condition `json:"conditions,omitempty"`
	Actions    *[]Action    `json:"actions,omitempty"`
}

func (r UpdateAutomationRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "id", r.ID)
	if r.Name != nil && (*r.Name == "" || len(*r.Name) > MaxAutomationName) {
		fe = fe.add("name", fmt.Sprintf("Name must be 1-%d characters", MaxAutomationName))
	}
	if r.Actions != nil && len(*r.Actions) == 0 {
		fe = fe.add("actions", "At least one action is required")
	}
	return fe
}

// DeleteAutomationRequest removes an automation and its logs.
type DeleteAutomationRequest struct {
	ID uuid.UUID `json:"id"`
}

func (r DeleteAutomationRequest) Validate() FieldErrors {
	return checkUUID(nil, "id", r.ID)
}

// CreateWebhookRequest registers an outbound webhook endpoint.
type CreateWebhookRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

func (r CreateWebhookRequest) Validate() FieldErrors {
	var fe FieldErrors
	if r.URL == "" {
		fe = fe.add("url", "URL is required")
	}
	if len(r.Secret) < 16 {
		fe = fe.add("secret", "Secret must be at least 16 characters")
	}
	if len(r.Events) == 0 {
		fe = fe.add("events", "At least one event is required")
	} else if len(r.Events) > MaxWebhookEvents {
		fe = fe.add("events", fmt.Sprintf("At most %d events", MaxWebhookEvents))
	}
	return fe
}

// UpdateWebhookRequest edits or toggles a webhook.
type UpdateWebhookRequest struct {
	ID        uuid.UUID `json:"id"`
	URL       *string   `json:"url,omitempty"`
	Events    *[]string `json:"events,omitempty"`
	IsEnabled *bool     `json:"isEnabled,omitempty"`
}

func (r UpdateWebhookRequest) Validate() FieldErrors {
	fe := checkUUID(nil, "id", r.ID)
	if r.URL != nil && *r.URL == "" {
		fe = fe.add("url", "URL must not be empty")
	}
	if r.Events != nil && len(*r.Events) == 0 {
		fe = fe.add("events", "At least one event is required")
	}
	return fe
}

// DeleteWebhookRequest removes a webhook and its delivery history.
type DeleteWebhookRequest struct {
	ID uuid.UUID `json:"id"`
}

func (r DeleteWebhookRequest) Validate() FieldErrors {
	return checkUUID(nil, "id", r.ID)
}
