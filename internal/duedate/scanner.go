// Package duedate watches card deadlines and turns them into events:
// CARD_DUE_SOON when a deadline enters the 24 hour window, CARD_OVERDUE
// once it passes.
package duedate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/storage"
)

// SoonWindow is how far ahead a deadline counts as "due soon".
const SoonWindow = 24 * time.Hour

// Store is the data access the scanner needs. *storage.DB satisfies it.
type Store interface {
	CardsDueBetween(ctx context.Context, from, to time.Time) ([]storage.DueCard, error)
}

// Publisher accepts the scanner's events.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) bool
}

type state uint8

const (
	stateDueSoon state = 1 << iota
	stateOverdue
)

// Scanner periodically sweeps deadlines and emits each card's
// transition at most once per state. The dedupe memory is per process;
// after a restart a pending deadline fires once more, which subscribers
// tolerate.
type Scanner struct {
	store    Store
	bus      Publisher
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[uuid.UUID]state

	now func() time.Time
}

func NewScanner(store Store, bus Publisher, interval time.Duration, logger *slog.Logger) *Scanner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scanner{
		store:    store,
		bus:      bus,
		interval: interval,
		logger:   logger,
		seen:     make(map[uuid.UUID]state),
		now:      time.Now,
	}
}

// Run sweeps until the context is canceled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass: overdue first so a deadline that slid past the
// whole soon-window while we slept still surfaces as overdue, then the
// upcoming window.
func (s *Scanner) Sweep(ctx context.Context) {
	now := s.now()

	overdue, err := s.store.CardsDueBetween(ctx, now.Add(-30*24*time.Hour), now)
	if err != nil {
		s.logger.Error("due date sweep failed", "phase", "overdue", "error", err)
	} else {
		for _, d := range overdue {
			s.emit(ctx, d, stateOverdue, model.TriggerCardOverdue)
		}
	}

	soon, err := s.store.CardsDueBetween(ctx, now, now.Add(SoonWindow))
	if err != nil {
		s.logger.Error("due date sweep failed", "phase", "soon", "error", err)
		return
	}
	for _, d := range soon {
		s.emit(ctx, d, stateDueSoon, model.TriggerCardDueSoon)
	}
}

func (s *Scanner) emit(ctx context.Context, d storage.DueCard, st state, t model.EventType) {
	s.mu.Lock()
	if s.seen[d.Card.ID]&st != 0 {
		s.mu.Unlock()
		return
	}
	s.seen[d.Card.ID] |= st
	s.mu.Unlock()

	s.bus.Publish(ctx, model.Event{
		Type:    t,
		OrgID:   d.OrgID,
		BoardID: d.BoardID,
		CardID:  d.Card.ID,
		Context: model.EventContext{DueDate: d.Card.DueDate},
	})
}

// Forget clears a card's dedupe state, called when its due date changes
// so the new deadline can fire again.
func (s *Scanner) Forget(cardID uuid.UUID) {
	s.mu.Lock()
	delete(s.seen, cardID)
	s.mu.Unlock()
}
