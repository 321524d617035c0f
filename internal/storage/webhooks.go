package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tavle/tavle/internal/model"
)

const webhookColumns = `id, org_id, url, secret, events, is_enabled, created_at`

func scanWebhook(row pgx.Row) (model.Webhook, error) {
	var w model.Webhook
	err := row.Scan(&w.ID, &w.OrgID, &w.URL, &w.Secret, &w.Events, &w.IsEnabled, &w.CreatedAt)
	return w, err
}

// CreateWebhook registers an outbound subscription. The URL has already
// passed the SSRF guard by the time it reaches storage.
func (db *DB) CreateWebhook(ctx context.Context, w model.Webhook) (model.Webhook, error) {
	w.ID = uuid.New()
	w.CreatedAt = time.Now().UTC()
	_, err := db.pool.Exec(ctx,
		`INSERT INTO webhooks (id, org_id, url, secret, events, is_enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.OrgID, w.URL, w.Secret, w.Events, w.IsEnabled, w.CreatedAt,
	)
	if err != nil {
		return model.Webhook{}, fmt.Errorf("storage: create webhook: %w", err)
	}
	return w, nil
}

// GetWebhook retrieves an org's webhook by id.
func (db *DB) GetWebhook(ctx context.Context, orgID string, id uuid.UUID) (model.Webhook, error) {
	w, err := scanWebhook(db.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1 AND org_id = $2`,
		id, orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Webhook{}, fmt.Errorf("storage: get webhook: %w", ErrNotFound)
		}
		return model.Webhook{}, fmt.Errorf("storage: get webhook: %w", err)
	}
	return w, nil
}

// ListWebhooks returns an org's webhooks, newest first.
func (db *DB) ListWebhooks(ctx context.Context, orgID string) ([]model.Webhook, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks
		 WHERE org_id = $1 ORDER BY created_at DESC`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list webhooks: %w", err)
	}
	defer rows.Close()

	var out []model.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan webhook: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list webhooks: %w", err)
	}
	return out, nil
}

// ListEnabledWebhooksForEvent returns the enabled subscriptions of an org
// whose event filter includes the given wire event name. An empty filter
// subscribes to everything.
func (db *DB) ListEnabledWebhooksForEvent(ctx context.Context, orgID, event string) ([]model.Webhook, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks
		 WHERE org_id = $1 AND is_enabled
		   AND (events = '{}' OR $2 = ANY(events))
		 ORDER BY created_at`, orgID, event,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: webhooks for event: %w", err)
	}
	defer rows.Close()

	var out []model.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan webhook: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: webhooks for event: %w", err)
	}
	return out, nil
}

// UpdateWebhook replaces a subscription's mutable fields. An empty secret
// keeps the stored one.
func (db *DB) UpdateWebhook(ctx context.Context, w model.Webhook) (model.Webhook, error) {
	updated, err := scanWebhook(db.pool.QueryRow(ctx,
		`UPDATE webhooks
		 SET url = $1, events = $2, is_enabled = $3,
		     secret = CASE WHEN $4 = '' THEN secret ELSE $4 END
		 WHERE id = $5 AND org_id = $6
		 RETURNING `+webhookColumns,
		w.URL, w.Events, w.IsEnabled, w.Secret, w.ID, w.OrgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Webhook{}, fmt.Errorf("storage: update webhook: %w", ErrNotFound)
		}
		return model.Webhook{}, fmt.Errorf("storage: update webhook: %w", err)
	}
	return updated, nil
}

// DeleteWebhook removes a subscription; its delivery history cascades.
func (db *DB) DeleteWebhook(ctx context.Context, orgID string, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM webhooks WHERE id = $1 AND org_id = $2`, id, orgID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: delete webhook: %w", ErrNotFound)
	}
	return nil
}

// InsertWebhookDelivery appends one delivery record.
func (db *DB) InsertWebhookDelivery(ctx context.Context, d model.WebhookDelivery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO webhook_deliveries (id, webhook_id, event, payload, status_code, success, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.WebhookID, d.Event, d.Payload, d.StatusCode, d.Success,
		d.Duration.Milliseconds(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: insert webhook delivery: %w", err)
	}
	return nil
}

// ListWebhookDeliveries returns the most recent deliveries of one webhook.
func (db *DB) ListWebhookDeliveries(ctx context.Context, orgID string, webhookID uuid.UUID, limit int) ([]model.WebhookDelivery, error) {
	if _, err := db.GetWebhook(ctx, orgID, webhookID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, webhook_id, event, payload, status_code, success, duration_ms, created_at
		 FROM webhook_deliveries WHERE webhook_id = $1
		 ORDER BY created_at DESC LIMIT $2`, webhookID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list deliveries: %w", err)
	}
	defer rows.Close()

	var out []model.WebhookDelivery
	for rows.Next() {
		var d model.WebhookDelivery
		var ms int64
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.Event, &d.Payload, &d.StatusCode,
			&d.Success, &ms, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan delivery: %w", err)
		}
		d.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list deliveries: %w", err)
	}
	return out, nil
}
