// Package automation evaluates board automation rules against card
// events and executes their actions, bounded by a recursion depth
// ceiling so rules triggering rules cannot cascade forever.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
)

// DefaultMaxDepth is the recursion ceiling used when no override is
// configured. An event deeper than the ceiling is ignored before any
// I/O happens.
const DefaultMaxDepth = 3

// Store is the slice of the data layer the engine needs. *storage.DB
// satisfies it.
type Store interface {
	GetCard(ctx context.Context, orgID string, cardID uuid.UUID) (model.Card, error)
	UpdateCard(ctx context.Context, orgID string, cardID uuid.UUID, patch storage.CardPatch) (before, after model.Card, err error)
	AssignLabel(ctx context.Context, orgID string, cardID, labelID uuid.UUID) (model.Label, error)
	UnassignLabel(ctx context.Context, orgID string, cardID, labelID uuid.UUID) error
	MoveCardToTail(ctx context.Context, orgID string, cardID, toListID uuid.UUID) (storage.CardMove, error)
	CompleteChecklist(ctx context.Context, orgID string, checklistID uuid.UUID) (bool, error)
	SetChecklistItemComplete(ctx context.Context, orgID string, itemID uuid.UUID, complete bool) (model.ChecklistItem, bool, error)
	CreateComment(ctx context.Context, orgID string, authorID, cardID uuid.UUID, text string, parentID *uuid.UUID, isDraft bool) (model.Comment, error)
	ListEnabledAutomations(ctx context.Context, orgID string, boardID uuid.UUID, trigger model.TriggerType) ([]model.Automation, error)
	MarkAutomationRun(ctx context.Context, id uuid.UUID) error
	InsertAutomationLog(ctx context.Context, entry model.AutomationLog) error
}

// Publisher re-enters events produced by actions into the bus.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) bool
}

// Notifier pushes a user-facing notification out of band.
type Notifier interface {
	NotifyUser(ctx context.Context, orgID string, userID, cardID uuid.UUID, message string) error
}

// Engine subscribes to the event bus and runs matching rules.
// It implements events.Handler.
type Engine struct {
	store    Store
	bus      Publisher
	notifier Notifier
	logger   *slog.Logger

	// System identity used as the author of POST_COMMENT actions.
	// Nil disables comment and notification actions.
	systemUserID *uuid.UUID

	maxDepth int

	now func() time.Time
}

// NewEngine builds an engine with the given recursion ceiling; zero or
// negative falls back to DefaultMaxDepth.
func NewEngine(store Store, bus Publisher, notifier Notifier, systemUserID *uuid.UUID, maxDepth int, logger *slog.Logger) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{
		store:        store,
		bus:          bus,
		notifier:     notifier,
		systemUserID: systemUserID,
		maxDepth:     maxDepth,
		logger:       logger,
		now:          time.Now,
	}
}

func (e *Engine) Name() string { return "automations" }

// HandleEvent runs every enabled rule matching the event. The engine
// never propagates failures outward; each rule's outcome lands in its
// own log row.
func (e *Engine) HandleEvent(ctx context.Context, ev model.Event) {
	if ev.Depth > e.maxDepth {
		return
	}

	rules, err := e.store.ListEnabledAutomations(ctx, ev.OrgID, ev.BoardID, ev.Type)
	if err != nil {
		e.logger.Error("automation lookup failed", "org_id", ev.OrgID, "event", ev.Type, "error", err)
		return
	}
	if len(rules) == 0 {
		return
	}

	card, err := e.store.GetCard(ctx, ev.OrgID, ev.CardID)
	if err != nil {
		// Deleted between emission and evaluation, nothing to act on.
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Error("automation card load failed", "card_id", ev.CardID, "error", err)
		}
		return
	}

	for _, rule := range rules {
		if !e.matchTrigger(rule.Trigger, ev) {
			continue
		}
		if !matchConditions(rule.Conditions, card) {
			continue
		}
		e.runRule(ctx, rule, ev, card)
	}
}

func (e *Engine) runRule(ctx context.Context, rule model.Automation, ev model.Event, card model.Card) {
	var firstErr error
	for _, act := range rule.Actions {
		if err := e.execute(ctx, act, ev, card); err != nil {
			e.logger.Warn("automation action failed",
				"automation_id", rule.ID, "action", act.Type, "card_id", card.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	entry := model.AutomationLog{
		AutomationID: rule.ID,
		CardID:       &card.ID,
		Success:      firstErr == nil,
	}
	if firstErr != nil {
		msg := firstErr.Error()
		entry.Error = &msg
	}
	if err := e.store.InsertAutomationLog(ctx, entry); err != nil {
		e.logger.Error("automation log write failed", "automation_id", rule.ID, "error", err)
	}
	if firstErr == nil {
		if err := e.store.MarkAutomationRun(ctx, rule.ID); err != nil {
			e.logger.Error("automation accounting failed", "automation_id", rule.ID, "error", err)
		}
	}
}

// matchTrigger checks the type and its type-specific parameters against
// the event context.
func (e *Engine) matchTrigger(tr model.Trigger, ev model.Event) bool {
	if tr.Type != ev.Type {
		return false
	}
	switch tr.Type {
	case model.TriggerCardMoved:
		return tr.ListID == nil ||
			(ev.Context.FromListID != nil && *tr.ListID == *ev.Context.FromListID)
	case model.TriggerCardDueSoon:
		if ev.Context.DueDate == nil {
			return false
		}
		if tr.DaysBeforeDue == nil {
			return true
		}
		until := ev.Context.DueDate.Sub(e.now())
		return until >= 0 && until <= time.Duration(*tr.DaysBeforeDue)*24*time.Hour
	case model.TriggerLabelAdded:
		return tr.LabelID == nil ||
			(ev.Context.LabelID != nil && *tr.LabelID == *ev.Context.LabelID)
	case model.TriggerCardTitleContains:
		return tr.Keyword != "" &&
			strings.Contains(strings.ToLower(ev.Context.CardTitle), strings.ToLower(tr.Keyword))
	case model.TriggerCardDeleted:
		// Deletions are audit-only; the card is gone.
		return false
	case model.TriggerCardCreated, model.TriggerCardOverdue, model.TriggerChecklistCompleted,
		model.TriggerMemberAssigned, model.TriggerPriorityChanged:
		return true
	default:
		return false
	}
}

// matchConditions evaluates all conditions against the card; all must
// pass and an empty list always passes.
func matchConditions(conds []model.Condition, card model.Card) bool {
	for _, c := range conds {
		if !matchCondition(c, card) {
			return false
		}
	}
	return true
}

func matchCondition(c model.Condition, card model.Card) bool {
	value, null, known := cardField(card, c.Field)
	if !known {
		return false
	}
	switch c.Op {
	case model.OpEq:
		return !null && value == c.Value
	case model.OpNeq:
		return null || value != c.Value
	case model.OpIsNull:
		return null
	case model.OpIsNotNull:
		return !null
	default:
		return false
	}
}

// cardField projects a card field to its comparable scalar form.
func cardField(card model.Card, field string) (value string, null bool, known bool) {
	switch field {
	case "title":
		return card.Title, false, true
	case "description":
		return card.Description, card.Description == "", true
	case "priority":
		return string(card.Priority), false, true
	case "listId":
		return card.ListID.String(), false, true
	case "dueDate":
		if card.DueDate == nil {
			return "", true, true
		}
		return card.DueDate.UTC().Format(time.RFC3339), false, true
	case "assigneeUserId":
		if card.AssigneeUserID == nil {
			return "", true, true
		}
		return card.AssigneeUserID.String(), false, true
	default:
		return "", false, false
	}
}

func (e *Engine) execute(ctx context.Context, act model.Action, ev model.Event, card model.Card) error {
	orgID := ev.OrgID
	switch act.Type {
	case model.ActionSetPriority:
		if !model.ValidPriority(act.Priority) {
			return fmt.Errorf("automation: invalid priority %q", act.Priority)
		}
		p := act.Priority
		_, after, err := e.store.UpdateCard(ctx, orgID, card.ID, storage.CardPatch{Priority: &p})
		if err != nil {
			return err
		}
		if card.Priority != after.Priority {
			e.reemit(ctx, ev, model.Event{
				Type: model.TriggerPriorityChanged, CardID: card.ID,
				Context: model.EventContext{Priority: after.Priority},
			})
		}
		return nil

	case model.ActionAssignMember:
		if act.AssigneeID == nil {
			return fmt.Errorf("automation: assign member without assignee")
		}
		_, _, err := e.store.UpdateCard(ctx, orgID, card.ID, storage.CardPatch{AssigneeUserID: act.AssigneeID})
		if err != nil {
			return err
		}
		e.reemit(ctx, ev, model.Event{
			Type: model.TriggerMemberAssigned, CardID: card.ID,
			Context: model.EventContext{AssigneeID: act.AssigneeID},
		})
		return nil

	case model.ActionAddLabel:
		if act.LabelID == nil {
			return fmt.Errorf("automation: add label without label")
		}
		_, err := e.store.AssignLabel(ctx, orgID, card.ID, *act.LabelID)
		if errors.Is(err, storage.ErrConflict) {
			return nil // already attached
		}
		if err != nil {
			return err
		}
		e.reemit(ctx, ev, model.Event{
			Type: model.TriggerLabelAdded, CardID: card.ID,
			Context: model.EventContext{LabelID: act.LabelID},
		})
		return nil

	case model.ActionRemoveLabel:
		if act.LabelID == nil {
			return fmt.Errorf("automation: remove label without label")
		}
		err := e.store.UnassignLabel(ctx, orgID, card.ID, *act.LabelID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err

	case model.ActionSetDueDateOffset:
		if card.DueDate == nil {
			return nil // only shifts an existing due date
		}
		due := card.DueDate.Add(time.Duration(act.DaysOffset) * 24 * time.Hour)
		_, _, err := e.store.UpdateCard(ctx, orgID, card.ID, storage.CardPatch{DueDate: &due})
		return err

	case model.ActionMoveCard:
		if act.ListID == nil {
			return fmt.Errorf("automation: move card without destination")
		}
		move, err := e.store.MoveCardToTail(ctx, orgID, card.ID, *act.ListID)
		if err != nil {
			return err
		}
		if move.FromListID != move.ToListID {
			e.reemit(ctx, ev, model.Event{
				Type: model.TriggerCardMoved, CardID: card.ID,
				Context: model.EventContext{
					FromListID: &move.FromListID,
					ToListID:   &move.ToListID,
					CardTitle:  move.Title,
				},
			})
		}
		return nil

	case model.ActionCompleteChecklist:
		if act.ChecklistID == nil {
			return fmt.Errorf("automation: complete checklist without checklist")
		}
		if act.ItemID != nil {
			_, completed, err := e.store.SetChecklistItemComplete(ctx, orgID, *act.ItemID, true)
			if err != nil {
				return err
			}
			if completed {
				e.reemit(ctx, ev, model.Event{
					Type: model.TriggerChecklistCompleted, CardID: card.ID,
					Context: model.EventContext{ChecklistID: act.ChecklistID},
				})
			}
			return nil
		}
		changed, err := e.store.CompleteChecklist(ctx, orgID, *act.ChecklistID)
		if err != nil {
			return err
		}
		if changed {
			e.reemit(ctx, ev, model.Event{
				Type: model.TriggerChecklistCompleted, CardID: card.ID,
				Context: model.EventContext{ChecklistID: act.ChecklistID},
			})
		}
		return nil

	case model.ActionPostComment:
		if e.systemUserID == nil {
			return fmt.Errorf("automation: post comment without system user")
		}
		if strings.TrimSpace(act.Comment) == "" {
			return fmt.Errorf("automation: post comment without text")
		}
		_, err := e.store.CreateComment(ctx, orgID, *e.systemUserID, card.ID, act.Comment, nil, false)
		return err

	case model.ActionSendNotification:
		if e.systemUserID == nil {
			return fmt.Errorf("automation: notify without system user")
		}
		if card.AssigneeUserID == nil {
			return fmt.Errorf("automation: notify card without assignee")
		}
		if strings.TrimSpace(act.NotificationMessage) == "" {
			return fmt.Errorf("automation: notify without message")
		}
		if e.notifier == nil {
			return fmt.Errorf("automation: no notifier configured")
		}
		return e.notifier.NotifyUser(ctx, orgID, *card.AssigneeUserID, card.ID, act.NotificationMessage)

	default:
		return fmt.Errorf("automation: unknown action %q", act.Type)
	}
}

// reemit publishes an action-caused event one level deeper, keeping the
// org and board of the originating event.
func (e *Engine) reemit(ctx context.Context, origin model.Event, ev model.Event) {
	if e.bus == nil {
		return
	}
	ev.OrgID = origin.OrgID
	ev.BoardID = origin.BoardID
	ev.Depth = origin.Depth + 1
	e.bus.Publish(ctx, ev)
}
