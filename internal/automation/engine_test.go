package automation_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavle/tavle/internal/automation"
	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
)

type fakeStore struct {
	rules []model.Automation
	card  model.Card

	lookups   int
	logs      []model.AutomationLog
	runsByID  map[uuid.UUID]int
	patches   []storage.CardPatch
	moveCalls int
	moveErr   error
	comments  []string
}

func newFakeStore(card model.Card, rules ...model.Automation) *fakeStore {
	return &fakeStore{rules: rules, card: card, runsByID: map[uuid.UUID]int{}}
}

func (f *fakeStore) GetCard(ctx context.Context, orgID string, cardID uuid.UUID) (model.Card, error) {
	if f.card.ID != cardID {
		return model.Card{}, fmt.Errorf("fake: %w", storage.ErrNotFound)
	}
	return f.card, nil
}

func (f *fakeStore) UpdateCard(ctx context.Context, orgID string, cardID uuid.UUID, patch storage.CardPatch) (model.Card, model.Card, error) {
	f.patches = append(f.patches, patch)
	before := f.card
	after := before
	if patch.Priority != nil {
		after.Priority = *patch.Priority
	}
	if patch.AssigneeUserID != nil {
		after.AssigneeUserID = patch.AssigneeUserID
	}
	if patch.DueDate != nil {
		after.DueDate = patch.DueDate
	}
	f.card = after
	return before, after, nil
}

func (f *fakeStore) AssignLabel(ctx context.Context, orgID string, cardID, labelID uuid.UUID) (model.Label, error) {
	return model.Label{ID: labelID, OrgID: orgID}, nil
}

func (f *fakeStore) UnassignLabel(ctx context.Context, orgID string, cardID, labelID uuid.UUID) error {
	return nil
}

func (f *fakeStore) MoveCardToTail(ctx context.Context, orgID string, cardID, toListID uuid.UUID) (storage.CardMove, error) {
	f.moveCalls++
	if f.moveErr != nil {
		return storage.CardMove{}, f.moveErr
	}
	return storage.CardMove{CardID: cardID, FromListID: f.card.ListID, ToListID: toListID, Title: f.card.Title}, nil
}

func (f *fakeStore) CompleteChecklist(ctx context.Context, orgID string, checklistID uuid.UUID) (bool, error) {
	return true, nil
}

func (f *fakeStore) SetChecklistItemComplete(ctx context.Context, orgID string, itemID uuid.UUID, complete bool) (model.ChecklistItem, bool, error) {
	return model.ChecklistItem{ID: itemID, IsComplete: complete}, false, nil
}

func (f *fakeStore) CreateComment(ctx context.Context, orgID string, authorID, cardID uuid.UUID, text string, parentID *uuid.UUID, isDraft bool) (model.Comment, error) {
	f.comments = append(f.comments, text)
	return model.Comment{ID: uuid.New(), CardID: cardID, AuthorUserID: authorID, Text: text}, nil
}

func (f *fakeStore) ListEnabledAutomations(ctx context.Context, orgID string, boardID uuid.UUID, trigger model.TriggerType) ([]model.Automation, error) {
	f.lookups++
	var out []model.Automation
	for _, r := range f.rules {
		if r.Trigger.Type == trigger {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkAutomationRun(ctx context.Context, id uuid.UUID) error {
	f.runsByID[id]++
	return nil
}

func (f *fakeStore) InsertAutomationLog(ctx context.Context, entry model.AutomationLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

type fakePublisher struct {
	published []model.Event
}

func (f *fakePublisher) Publish(ctx context.Context, ev model.Event) bool {
	f.published = append(f.published, ev)
	return true
}

func testCard() model.Card {
	return model.Card{
		ID:       uuid.New(),
		ListID:   uuid.New(),
		Title:    "Fix the login flow",
		Priority: model.PriorityMedium,
	}
}

func rule(trigger model.Trigger, actions ...model.Action) model.Automation {
	return model.Automation{
		ID:        uuid.New(),
		OrgID:     "org-1",
		IsEnabled: true,
		Trigger:   trigger,
		Actions:   actions,
	}
}

func event(t model.TriggerType, card model.Card, depth int) model.Event {
	return model.Event{Type: t, OrgID: "org-1", BoardID: uuid.New(), CardID: card.ID, Depth: depth}
}

func newEngine(store *fakeStore, bus *fakePublisher) *automation.Engine {
	var pub automation.Publisher
	if bus != nil {
		pub = bus
	}
	return automation.NewEngine(store, pub, nil, nil, 0, slog.New(slog.DiscardHandler))
}

func TestDepthCeiling(t *testing.T) {
	card := testCard()
	store := newFakeStore(card, rule(model.Trigger{Type: model.TriggerCardCreated},
		model.Action{Type: model.ActionSetPriority, Priority: model.PriorityHigh}))
	e := newEngine(store, nil)

	e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, automation.DefaultMaxDepth+1))
	assert.Zero(t, store.lookups, "beyond the ceiling no I/O happens")
	assert.Empty(t, store.logs)

	e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, automation.DefaultMaxDepth))
	assert.Equal(t, 1, store.lookups, "at the ceiling the rule still runs")
	assert.Len(t, store.logs, 1)
}

func TestDepthCeilingConfigurable(t *testing.T) {
	card := testCard()
	store := newFakeStore(card, rule(model.Trigger{Type: model.TriggerCardCreated},
		model.Action{Type: model.ActionSetPriority, Priority: model.PriorityHigh}))
	e := automation.NewEngine(store, nil, nil, nil, 1, slog.New(slog.DiscardHandler))

	e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, 2))
	assert.Zero(t, store.lookups)

	e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, 1))
	assert.Equal(t, 1, store.lookups)
}

func TestMissingCardShortCircuits(t *testing.T) {
	card := testCard()
	store := newFakeStore(card, rule(model.Trigger{Type: model.TriggerCardCreated},
		model.Action{Type: model.ActionSetPriority, Priority: model.PriorityHigh}))
	e := newEngine(store, nil)

	ev := event(model.TriggerCardCreated, card, 0)
	ev.CardID = uuid.New() // no longer exists
	e.HandleEvent(context.Background(), ev)
	assert.Empty(t, store.logs)
	assert.Empty(t, store.patches)
}

func TestTriggerMatching(t *testing.T) {
	card := testCard()
	fromList := uuid.New()
	otherList := uuid.New()

	t.Run("moved with matching source filter", func(t *testing.T) {
		r := rule(model.Trigger{Type: model.TriggerCardMoved, ListID: &fromList},
			model.Action{Type: model.ActionSetPriority, Priority: model.PriorityHigh})
		store := newFakeStore(card, r)
		e := newEngine(store, nil)

		ev := event(model.TriggerCardMoved, card, 0)
		ev.Context.FromListID = &fromList
		e.HandleEvent(context.Background(), ev)
		assert.Len(t, store.logs, 1)
	})

	t.Run("moved with mismatched source filter", func(t *testing.T) {
		r := rule(model.Trigger{Type: model.TriggerCardMoved, ListID: &otherList},
			model.Action{Type: model.ActionSetPriority, Priority: model.PriorityHigh})
		store := newFakeStore(card, r)
		e := newEngine(store, nil)

		ev := event(model.TriggerCardMoved, card, 0)
		ev.Context.FromListID = &fromList
		e.HandleEvent(context.Background(), ev)
		assert.Empty(t, store.logs)
	})

	t.Run("title keyword is case-insensitive", func(t *testing.T) {
		r := rule(model.Trigger{Type: model.TriggerCardTitleContains, Keyword: "LOGIN"},
			model.Action{Type: model.ActionSetPriority, Priority: model.PriorityUrgent})
		store := newFakeStore(card, r)
		e := newEngine(store, nil)

		ev := event(model.TriggerCardTitleContains, card, 0)
		ev.Context.CardTitle = card.Title
		e.HandleEvent(context.Background(), ev)
		require.Len(t, store.logs, 1)
		assert.True(t, store.logs[0].Success)
	})

	t.Run("empty keyword never matches", func(t *testing.T) {
		r := rule(model.Trigger{Type: model.TriggerCardTitleContains},
			model.Action{Type: model.ActionSetPriority, Priority: model.PriorityUrgent})
		store := newFakeStore(card, r)
		e := newEngine(store, nil)

		ev := event(model.TriggerCardTitleContains, card, 0)
		ev.Context.CardTitle = card.Title
		e.HandleEvent(context.Background(), ev)
		assert.Empty(t, store.logs)
	})

	t.Run("deleted never matches", func(t *testing.T) {
		r := rule(model.Trigger{Type: model.TriggerCardDeleted},
			model.Action{Type: model.ActionSetPriority, Priority: model.PriorityLow})
		store := newFakeStore(card, r)
		e := newEngine(store, nil)

		e.HandleEvent(context.Background(), event(model.TriggerCardDeleted, card, 0))
		assert.Empty(t, store.logs)
	})
}

func TestConditions(t *testing.T) {
	card := testCard() // MEDIUM priority, no assignee

	cases := []struct {
		name string
		cond model.Condition
		runs bool
	}{
		{"eq pass", model.Condition{Field: "priority", Op: model.OpEq, Value: "MEDIUM"}, true},
		{"eq fail", model.Condition{Field: "priority", Op: model.OpEq, Value: "HIGH"}, false},
		{"neq pass", model.Condition{Field: "priority", Op: model.OpNeq, Value: "HIGH"}, true},
		{"is_null pass", model.Condition{Field: "assigneeUserId", Op: model.OpIsNull}, true},
		{"is_not_null fail", model.Condition{Field: "assigneeUserId", Op: model.OpIsNotNull}, false},
		{"unknown op fails", model.Condition{Field: "priority", Op: "like", Value: "M%"}, false},
		{"unknown field fails", model.Condition{Field: "slaTier", Op: model.OpEq, Value: "gold"}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			r := rule(model.Trigger{Type: model.TriggerCardCreated},
				model.Action{Type: model.ActionSetPriority, Priority: model.PriorityHigh})
			r.Conditions = []model.Condition{tt.cond}
			store := newFakeStore(card, r)
			e := newEngine(store, nil)

			e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, 0))
			if tt.runs {
				assert.Len(t, store.logs, 1)
			} else {
				assert.Empty(t, store.logs)
			}
		})
	}
}

func TestActionReemitsOneLevelDeeper(t *testing.T) {
	card := testCard()
	r := rule(model.Trigger{Type: model.TriggerCardCreated},
		model.Action{Type: model.ActionSetPriority, Priority: model.PriorityHigh})
	store := newFakeStore(card, r)
	bus := &fakePublisher{}
	e := newEngine(store, bus)

	ev := event(model.TriggerCardCreated, card, 1)
	e.HandleEvent(context.Background(), ev)

	require.Len(t, bus.published, 1)
	re := bus.published[0]
	assert.Equal(t, model.TriggerPriorityChanged, re.Type)
	assert.Equal(t, ev.OrgID, re.OrgID)
	assert.Equal(t, ev.BoardID, re.BoardID)
	assert.Equal(t, 2, re.Depth)
	assert.Equal(t, model.PriorityHigh, re.Context.Priority)
}

func TestFailedActionLogsAndSkipsAccounting(t *testing.T) {
	card := testCard()
	list := uuid.New()
	r := rule(model.Trigger{Type: model.TriggerCardCreated},
		model.Action{Type: model.ActionMoveCard, ListID: &list},
		model.Action{Type: model.ActionSetPriority, Priority: model.PriorityHigh})
	store := newFakeStore(card, r)
	store.moveErr = fmt.Errorf("fake: %w", storage.ErrNotFound)
	e := newEngine(store, nil)

	e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, 0))

	require.Len(t, store.logs, 1)
	assert.False(t, store.logs[0].Success)
	require.NotNil(t, store.logs[0].Error)
	assert.Zero(t, store.runsByID[r.ID], "no accounting on failure")
	assert.Len(t, store.patches, 1, "later actions still run after one fails")
}

func TestSuccessfulRunAccounting(t *testing.T) {
	card := testCard()
	r := rule(model.Trigger{Type: model.TriggerCardCreated},
		model.Action{Type: model.ActionSetPriority, Priority: model.PriorityUrgent})
	store := newFakeStore(card, r)
	e := newEngine(store, nil)

	e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, 0))

	require.Len(t, store.logs, 1)
	assert.True(t, store.logs[0].Success)
	assert.Equal(t, 1, store.runsByID[r.ID])
}

func TestSystemActionsRequireSystemUser(t *testing.T) {
	card := testCard()
	r := rule(model.Trigger{Type: model.TriggerCardCreated},
		model.Action{Type: model.ActionPostComment, Comment: "auto note"})
	store := newFakeStore(card, r)
	e := newEngine(store, nil) // no system user configured

	e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, 0))
	require.Len(t, store.logs, 1)
	assert.False(t, store.logs[0].Success)
	assert.Empty(t, store.comments)

	sysID := uuid.New()
	store2 := newFakeStore(card, r)
	e2 := automation.NewEngine(store2, nil, nil, &sysID, 0, slog.New(slog.DiscardHandler))
	e2.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, 0))
	require.Len(t, store2.logs, 1)
	assert.True(t, store2.logs[0].Success)
	assert.Equal(t, []string{"auto note"}, store2.comments)
}

func TestDueDateOffsetOnlyWithExistingDue(t *testing.T) {
	card := testCard() // no due date
	r := rule(model.Trigger{Type: model.TriggerCardCreated},
		model.Action{Type: model.ActionSetDueDateOffset, DaysOffset: 2})
	store := newFakeStore(card, r)
	e := newEngine(store, nil)

	e.HandleEvent(context.Background(), event(model.TriggerCardCreated, card, 0))
	require.Len(t, store.logs, 1)
	assert.True(t, store.logs[0].Success, "no-op on a card without a due date")
	assert.Empty(t, store.patches)
}
