package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavle/tavle/internal/model"
	"github.com/tavle/tavle/internal/webhook"
)

type fakeDeliveryStore struct {
	mu         sync.Mutex
	hooks      []model.Webhook
	deliveries []model.WebhookDelivery
}

func (s *fakeDeliveryStore) ListEnabledWebhooksForEvent(ctx context.Context, orgID, event string) ([]model.Webhook, error) {
	return s.hooks, nil
}

func (s *fakeDeliveryStore) InsertWebhookDelivery(ctx context.Context, d model.WebhookDelivery) error {
	s.mu.Lock()
	s.deliveries = append(s.deliveries, d)
	s.mu.Unlock()
	return nil
}

type recordedRequest struct {
	signature  string
	event      string
	deliveryID string
	body       []byte
}

func newDeliveryServer(t *testing.T, status int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var got []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, recordedRequest{
			signature:  r.Header.Get("X-Signature-256"),
			event:      r.Header.Get("X-Event"),
			deliveryID: r.Header.Get("X-Delivery"),
			body:       body,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func newTestDispatcher(store *fakeDeliveryStore) *webhook.Dispatcher {
	// Plain client: the SSRF-guarded transport would refuse httptest's
	// loopback listener.
	return webhook.NewDispatcher(store, &http.Client{Timeout: 5 * time.Second}, slog.New(slog.DiscardHandler))
}

func TestDispatcherWireFormat(t *testing.T) {
	srv, got := newDeliveryServer(t, http.StatusOK)
	secret := "shared-secret-0123456789"
	store := &fakeDeliveryStore{hooks: []model.Webhook{{
		ID: uuid.New(), OrgID: "org-1", URL: srv.URL, Secret: secret,
		Events: []string{"card.created"}, IsEnabled: true,
	}}}
	d := newTestDispatcher(store)

	cardID := uuid.New()
	d.HandleEvent(context.Background(), model.Event{
		Type:    model.TriggerCardCreated,
		OrgID:   "org-1",
		BoardID: uuid.New(),
		CardID:  cardID,
		Context: model.EventContext{CardTitle: "Ship it"},
	})

	require.Len(t, *got, 1)
	req := (*got)[0]

	assert.Equal(t, "card.created", req.event)
	assert.True(t, webhook.VerifySignature(secret, req.body, req.signature))
	_, err := uuid.Parse(req.deliveryID)
	assert.NoError(t, err, "X-Delivery carries a fresh UUID")

	var envelope struct {
		Event     string          `json:"event"`
		Timestamp time.Time       `json:"timestamp"`
		OrgID     string          `json:"orgId"`
		Data      model.Event     `json:"data"`
		Meta      model.EventMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(req.body, &envelope))
	assert.Equal(t, "card.created", envelope.Event)
	assert.Equal(t, "org-1", envelope.OrgID)
	assert.Equal(t, cardID, envelope.Data.CardID)
	assert.Equal(t, "Ship it", envelope.Meta.CardTitle)
	assert.False(t, envelope.Timestamp.IsZero())

	require.Len(t, store.deliveries, 1)
	assert.True(t, store.deliveries[0].Success)
	require.NotNil(t, store.deliveries[0].StatusCode)
	assert.Equal(t, http.StatusOK, *store.deliveries[0].StatusCode)
}

func TestDispatcherDeliveryIDsAreUnique(t *testing.T) {
	srv, got := newDeliveryServer(t, http.StatusOK)
	hook := model.Webhook{
		ID: uuid.New(), OrgID: "org-1", URL: srv.URL, Secret: "s3cret-s3cret-s3",
		Events: []string{"card.created"}, IsEnabled: true,
	}
	store := &fakeDeliveryStore{hooks: []model.Webhook{hook}}
	d := newTestDispatcher(store)

	ev := model.Event{Type: model.TriggerCardCreated, OrgID: "org-1", BoardID: uuid.New(), CardID: uuid.New()}
	d.HandleEvent(context.Background(), ev)
	d.HandleEvent(context.Background(), ev)

	require.Len(t, *got, 2)
	first, second := (*got)[0].deliveryID, (*got)[1].deliveryID
	assert.NotEqual(t, first, second)
	assert.NotEqual(t, hook.ID.String(), first, "delivery id is not the webhook id")
}

func TestDispatcherNoRetryOn4xx(t *testing.T) {
	srv, got := newDeliveryServer(t, http.StatusGone)
	store := &fakeDeliveryStore{hooks: []model.Webhook{{
		ID: uuid.New(), OrgID: "org-1", URL: srv.URL, Secret: "s3cret-s3cret-s3",
		Events: []string{"card.created"}, IsEnabled: true,
	}}}
	d := newTestDispatcher(store)

	d.HandleEvent(context.Background(), model.Event{
		Type: model.TriggerCardCreated, OrgID: "org-1", BoardID: uuid.New(), CardID: uuid.New(),
	})

	assert.Len(t, *got, 1, "a 4xx is final")
	require.Len(t, store.deliveries, 1)
	assert.False(t, store.deliveries[0].Success)
}

func TestDispatcherOmitsMetaWithoutTitle(t *testing.T) {
	srv, got := newDeliveryServer(t, http.StatusOK)
	store := &fakeDeliveryStore{hooks: []model.Webhook{{
		ID: uuid.New(), OrgID: "org-1", URL: srv.URL, Secret: "s3cret-s3cret-s3",
		Events: []string{"card.deleted"}, IsEnabled: true,
	}}}
	d := newTestDispatcher(store)

	d.HandleEvent(context.Background(), model.Event{
		Type: model.TriggerCardDeleted, OrgID: "org-1", BoardID: uuid.New(), CardID: uuid.New(),
	})

	require.Len(t, *got, 1)
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal((*got)[0].body, &envelope))
	assert.NotContains(t, envelope, "meta")
}
