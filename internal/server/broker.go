package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
)

// notification is the LISTEN/NOTIFY payload shared by the event sink and
// the broker. Kind distinguishes card lifecycle events from targeted user
// notifications.
type notification struct {
	OrgID string          `json:"orgId"`
	Kind  string          `json:"kind"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const (
	kindCard         = "card"
	kindNotification = "notification"
)

// Broker fans out Postgres LISTEN/NOTIFY messages to SSE subscribers.
// Subscribers are grouped by org so one tenant never sees another's
// events. It runs a background goroutine that calls db.WaitForNotification
// in a loop and sends each payload to the matching org's channels.
type Broker struct {
	db     *storage.DB
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan []byte]struct{}
}

// NewBroker creates a new SSE broker. Call Start to begin listening.
func NewBroker(db *storage.DB, logger *slog.Logger) *Broker {
	return &Broker{
		db:          db,
		logger:      logger,
		subscribers: make(map[string]map[chan []byte]struct{}),
	}
}

// Start begins listening on the card events channel. It blocks, so call
// it in a goroutine. Returns when ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	if err := b.db.Listen(ctx, storage.ChannelCardEvents); err != nil {
		b.logger.Error("broker: listen failed", "channel", storage.ChannelCardEvents, "error", err)
		return
	}
	b.logger.Info("broker: listening for notifications", "channel", storage.ChannelCardEvents)

	for {
		_, payload, err := b.db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // Shutting down.
			}
			b.logger.Warn("broker: notification error, retrying", "error", err)
			continue
		}

		var n notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil || n.OrgID == "" {
			b.logger.Warn("broker: malformed notification dropped", "error", err)
			continue
		}
		b.broadcast(n.OrgID, formatSSE(n.Event, string(n.Data)))
	}
}

// Subscribe returns a channel that receives SSE-formatted events for one
// org. The caller must call Unsubscribe when done.
func (b *Broker) Subscribe(orgID string) chan []byte {
	ch := make(chan []byte, 64) // Buffer to avoid blocking the broadcast loop.
	b.mu.Lock()
	if b.subscribers[orgID] == nil {
		b.subscribers[orgID] = make(map[chan []byte]struct{})
	}
	b.subscribers[orgID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(orgID string, ch chan []byte) {
	b.mu.Lock()
	if subs := b.subscribers[orgID]; subs != nil {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.subscribers, orgID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// broadcast sends an event to every subscriber of one org. Slow
// subscribers with a full buffer are skipped so one stalled client
// cannot block the rest.
func (b *Broker) broadcast(orgID string, event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[orgID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}

// EventSink bridges the in-process event bus onto Postgres NOTIFY so
// every server process's broker (and therefore every SSE client of the
// org) observes the event, not just the process that produced it.
type EventSink struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewEventSink builds the bus-to-NOTIFY bridge.
func NewEventSink(db *storage.DB, logger *slog.Logger) *EventSink {
	return &EventSink{db: db, logger: logger}
}

// Name identifies the sink on the event bus.
func (s *EventSink) Name() string { return "sse" }

// HandleEvent publishes one card lifecycle event to the notify channel.
func (s *EventSink) HandleEvent(ctx context.Context, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("sse sink: marshal event", "error", err)
		return
	}
	payload, err := json.Marshal(notification{
		OrgID: ev.OrgID,
		Kind:  kindCard,
		Event: model.WireName(ev.Type),
		Data:  data,
	})
	if err != nil {
		s.logger.Error("sse sink: marshal payload", "error", err)
		return
	}
	if err := s.db.Notify(ctx, storage.ChannelCardEvents, string(payload)); err != nil {
		s.logger.Error("sse sink: notify failed", "org_id", ev.OrgID, "error", err)
	}
}

// NotifyUser delivers an automation-generated notification to a user's
// SSE stream. Satisfies the automation engine's notifier dependency.
func (s *EventSink) NotifyUser(ctx context.Context, orgID string, userID, cardID uuid.UUID, message string) error {
	data, err := json.Marshal(map[string]any{
		"userId":  userID,
		"cardId":  cardID,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("server: marshal notification: %w", err)
	}
	payload, err := json.Marshal(notification{
		OrgID: orgID,
		Kind:  kindNotification,
		Event: kindNotification,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("server: marshal notification payload: %w", err)
	}
	return s.db.Notify(ctx, storage.ChannelCardEvents, string(payload))
}
