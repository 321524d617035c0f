package model

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType identifies which event an automation reacts to.
type TriggerType string

const (
	TriggerCardCreated        TriggerType = "CARD_CREATED"
	TriggerCardMoved          TriggerType = "CARD_MOVED"
	TriggerCardDeleted        TriggerType = "CARD_DELETED"
	TriggerCardDueSoon        TriggerType = "CARD_DUE_SOON"
	TriggerCardOverdue        TriggerType = "CARD_OVERDUE"
	TriggerLabelAdded         TriggerType = "LABEL_ADDED"
	TriggerChecklistCompleted TriggerType = "CHECKLIST_COMPLETED"
	TriggerMemberAssigned     TriggerType = "MEMBER_ASSIGNED"
	TriggerPriorityChanged    TriggerType = "PRIORITY_CHANGED"
	TriggerCardTitleContains  TriggerType = "CARD_TITLE_CONTAINS"
)

// Trigger is the event pattern an automation matches.
// Parameter fields apply only to specific trigger types.
type Trigger struct {
	Type          TriggerType `json:"type"`
	ListID        *uuid.UUID  `json:"listId,omitempty"`        // CARD_MOVED: source list filter.
	LabelID       *uuid.UUID  `json:"labelId,omitempty"`       // LABEL_ADDED: label filter.
	DaysBeforeDue *int        `json:"daysBeforeDue,omitempty"` // CARD_DUE_SOON: window in days.
	Keyword       string      `json:"keyword,omitempty"`       // CARD_TITLE_CONTAINS.
}

// ConditionOp is a comparison operator in an automation condition.
type ConditionOp string

const (
	OpEq        ConditionOp = "eq"
	OpNeq       ConditionOp = "neq"
	OpIsNull    ConditionOp = "is_null"
	OpIsNotNull ConditionOp = "is_not_null"
)

// Condition is a predicate over a card field. All conditions of an
// automation must pass; an empty condition list always passes.
type Condition struct {
	Field string      `json:"field"`
	Op    ConditionOp `json:"op"`
	Value string      `json:"value,omitempty"`
}

// ActionType identifies what an automation does when it fires.
type ActionType string

const (
	ActionSetPriority       ActionType = "SET_PRIORITY"
	ActionAssignMember      ActionType = "ASSIGN_MEMBER"
	ActionAddLabel          ActionType = "ADD_LABEL"
	ActionRemoveLabel       ActionType = "REMOVE_LABEL"
	ActionSetDueDateOffset  ActionType = "SET_DUE_DATE_OFFSET"
	ActionMoveCard          ActionType = "MOVE_CARD"
	ActionCompleteChecklist ActionType = "COMPLETE_CHECKLIST"
	ActionPostComment       ActionType = "POST_COMMENT"
	ActionSendNotification  ActionType = "SEND_NOTIFICATION"
)

// Action is one step executed when an automation fires. Parameter fields
// apply only to specific action types.
type Action struct {
	Type                ActionType `json:"type"`
	Priority            Priority   `json:"priority,omitempty"`
	AssigneeID          *uuid.UUID `json:"assigneeId,omitempty"`
	LabelID             *uuid.UUID `json:"labelId,omitempty"`
	DaysOffset          int        `json:"daysOffset,omitempty"`
	ListID              *uuid.UUID `json:"listId,omitempty"`
	ChecklistID         *uuid.UUID `json:"checklistId,omitempty"`
	ItemID              *uuid.UUID `json:"itemId,omitempty"`
	Comment             string     `json:"comment,omitempty"`
	NotificationMessage string     `json:"notificationMessage,omitempty"`
}

// Automation is a board-scoped (or org-wide when BoardID is nil) rule:
// when Trigger matches an event and all Conditions pass, Actions run in order.
type Automation struct {
	ID         uuid.UUID   `json:"id"`
	OrgID      string      `json:"orgId"`
	BoardID    *uuid.UUID  `json:"boardId,omitempty"`
	Name       string      `json:"name"`
	IsEnabled  bool        `json:"isEnabled"`
	Trigger    Trigger     `json:"trigger"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	RunCount   int         `json:"runCount"`
	LastRunAt  *time.Time  `json:"lastRunAt,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// AutomationLog is an append-only record of one automation run.
type AutomationLog struct {
	ID           uuid.UUID  `json:"id"`
	AutomationID uuid.UUID  `json:"automationId"`
	CardID       *uuid.UUID `json:"cardId,omitempty"`
	Success      bool       `json:"success"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
