// Package webhook delivers board events to customer HTTP endpoints,
// guarding every dial against internal address space and signing every
// body with the subscription's shared secret.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tavle/tavle/internal/model"
)

const (
	headerSignature = "X-Signature-256"
	headerEvent     = "X-Event"
	headerDelivery  = "X-Delivery"

	maxAttempts    = 3
	maxFanout      = 8
	maxResponseLen = 4 << 10
)

// payload is the JSON body delivered to endpoints.
type payload struct {
	Event     string           `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
	OrgID     string           `json:"orgId"`
	Data      model.Event      `json:"data"`
	Meta      *model.EventMeta `json:"meta,omitempty"`
}

// Store is the slice of the data layer the dispatcher needs.
// *storage.DB satisfies it.
type Store interface {
	ListEnabledWebhooksForEvent(ctx context.Context, orgID, event string) ([]model.Webhook, error)
	InsertWebhookDelivery(ctx context.Context, d model.WebhookDelivery) error
}

// Dispatcher fans events out to an org's enabled subscriptions.
// It implements events.Handler.
type Dispatcher struct {
	db     Store
	client *http.Client
	logger *slog.Logger

	// Test seam for retry pacing.
	sleep func(time.Duration)
}

func NewDispatcher(db Store, client *http.Client, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = NewHTTPClient(10*time.Second, false)
	}
	return &Dispatcher{db: db, client: client, logger: logger, sleep: time.Sleep}
}

func (d *Dispatcher) Name() string { return "webhooks" }

// HandleEvent delivers one event to every matching subscription
// concurrently, capped so one chatty org cannot exhaust the pool worker.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev model.Event) {
	wire := model.WireName(ev.Type)
	hooks, err := d.db.ListEnabledWebhooksForEvent(ctx, ev.OrgID, wire)
	if err != nil {
		d.logger.Error("webhook lookup failed", "org_id", ev.OrgID, "event", wire, "error", err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	// The envelope carries the canonical stored title when the event has
	// one, never a client-supplied value.
	var meta *model.EventMeta
	if ev.Context.CardTitle != "" {
		meta = &model.EventMeta{CardTitle: ev.Context.CardTitle}
	}

	body, err := json.Marshal(payload{
		Event:     wire,
		Timestamp: time.Now().UTC(),
		OrgID:     ev.OrgID,
		Data:      ev,
		Meta:      meta,
	})
	if err != nil {
		d.logger.Error("webhook payload encode failed", "event", wire, "error", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanout)
	for _, hook := range hooks {
		g.Go(func() error {
			d.deliver(ctx, hook, wire, body)
			return nil
		})
	}
	_ = g.Wait()
}

// deliver runs the attempt chain for one endpoint and records the final
// outcome. Failures back off 1s then 2s; a 2xx stops the chain. Every
// delivery gets its own id so receivers can deduplicate retries.
func (d *Dispatcher) deliver(ctx context.Context, hook model.Webhook, event string, body []byte) {
	start := time.Now()
	deliveryID := uuid.New()
	var statusCode *int
	success := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		code, err := d.attempt(ctx, hook, event, deliveryID, body)
		if code != 0 {
			statusCode = &code
		}
		if err == nil && code >= 200 && code < 300 {
			success = true
			break
		}
		if err != nil {
			d.logger.Warn("webhook attempt failed",
				"webhook_id", hook.ID, "event", event, "attempt", attempt, "error", err)
		} else {
			d.logger.Warn("webhook attempt rejected",
				"webhook_id", hook.ID, "event", event, "attempt", attempt, "status", code)
			// A 4xx is the endpoint's answer, not a transient fault.
			if code < 500 {
				break
			}
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				attempt = maxAttempts
			default:
				d.sleep(time.Duration(attempt) * time.Second)
			}
		}
	}

	record := model.WebhookDelivery{
		WebhookID:  hook.ID,
		Event:      event,
		Payload:    body,
		StatusCode: statusCode,
		Success:    success,
		Duration:   time.Since(start),
	}
	// Recording outlives the handler deadline on slow endpoints.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.db.InsertWebhookDelivery(recordCtx, record); err != nil {
		d.logger.Error("webhook delivery record failed", "webhook_id", hook.ID, "error", err)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, hook model.Webhook, event string, deliveryID uuid.UUID, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tavle-webhooks/1.0")
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerDelivery, deliveryID.String())
	req.Header.Set(headerSignature, Sign(hook.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseLen))
	return resp.StatusCode, nil
}
