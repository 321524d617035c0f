package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a card lifecycle event published on the in-process bus.
// The values double as automation trigger types and webhook event names
// (webhook names are the lowercase dotted form, see WireName).
type EventType = TriggerType

// EventContext carries the type-specific payload of an event envelope.
// Only the fields relevant to the event's type are set.
type EventContext struct {
	FromListID  *uuid.UUID `json:"fromListId,omitempty"`  // CARD_MOVED
	ToListID    *uuid.UUID `json:"toListId,omitempty"`    // CARD_MOVED
	DueDate     *time.Time `json:"dueDate,omitempty"`     // CARD_DUE_SOON / CARD_OVERDUE
	LabelID     *uuid.UUID `json:"labelId,omitempty"`     // LABEL_ADDED
	ChecklistID *uuid.UUID `json:"checklistId,omitempty"` // CHECKLIST_COMPLETED
	AssigneeID  *uuid.UUID `json:"assigneeId,omitempty"`  // MEMBER_ASSIGNED
	Priority    Priority   `json:"priority,omitempty"`    // PRIORITY_CHANGED
	CardTitle   string     `json:"cardTitle,omitempty"`   // CARD_TITLE_CONTAINS
}

// Event is the envelope published for every card lifecycle change.
// Depth counts automation-caused re-emissions; the automation engine
// refuses envelopes beyond its ceiling to break cascades.
type Event struct {
	Type    EventType    `json:"type"`
	OrgID   string       `json:"orgId"`
	BoardID uuid.UUID    `json:"boardId"`
	CardID  uuid.UUID    `json:"cardId"`
	Context EventContext `json:"context,omitempty"`
	Depth   int          `json:"_depth,omitempty"`
}

// EventMeta carries server-derived facts alongside an event. CardTitle is
// always the canonical stored title, never a client-supplied one.
type EventMeta struct {
	CardTitle string `json:"cardTitle,omitempty"`
	ListTitle string `json:"listTitle,omitempty"`
}

// WireName converts an event type to its webhook wire name,
// e.g. CARD_CREATED → "card.created".
func WireName(t EventType) string {
	switch t {
	case TriggerCardCreated:
		return "card.created"
	case TriggerCardMoved:
		return "card.moved"
	case TriggerCardDeleted:
		return "card.deleted"
	case TriggerCardDueSoon:
		return "card.due_soon"
	case TriggerCardOverdue:
		return "card.overdue"
	case TriggerLabelAdded:
		return "card.label_added"
	case TriggerChecklistCompleted:
		return "card.checklist_completed"
	case TriggerMemberAssigned:
		return "card.member_assigned"
	case TriggerPriorityChanged:
		return "card.priority_changed"
	case TriggerCardTitleContains:
		return "card.updated"
	default:
		return "card.event"
	}
}
