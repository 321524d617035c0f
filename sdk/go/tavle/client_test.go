package tavle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "test-token"})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(Config{Token: "t"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestCreateBoard(t *testing.T) {
	boardID := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/boards", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req CreateBoardRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Roadmap", req.Title)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": Board{ID: boardID, Title: req.Title},
		})
	})

	board, err := c.CreateBoard(context.Background(), CreateBoardRequest{Title: "Roadmap"})
	require.NoError(t, err)
	assert.Equal(t, boardID, board.ID)
	assert.Equal(t, "Roadmap", board.Title)
}

func TestActionErrorInEnvelope(t *testing.T) {
	// Actions report failure at HTTP 200 inside the envelope.
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "Not found."})
	})

	_, err := c.GetBoard(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
}

func TestFieldErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"fieldErrors": map[string]string{"title": "Title is required"},
		})
	})

	_, err := c.CreateBoard(context.Background(), CreateBoardRequest{})
	require.Error(t, err)
	require.True(t, IsValidation(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Title is required", apiErr.FieldErrors["title"])
}

func TestTransportStatusCodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "unauthenticated"})
	})

	_, err := c.ListBoards(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestRateLimitedMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "Too many requests. Try again in 12s.",
		})
	})

	_, err := c.CreateBoard(context.Background(), CreateBoardRequest{Title: "x"})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestUpdateCardSendsPatch(t *testing.T) {
	boardID, cardID := uuid.New(), uuid.New()
	title := "Renamed"

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/boards/"+boardID.String()+"/cards/"+cardID.String(), r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Renamed", body["title"])
		_, hasDesc := body["description"]
		assert.False(t, hasDesc, "nil fields must be omitted")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": Card{ID: cardID, Title: title},
		})
	})

	card, err := c.UpdateCard(context.Background(), boardID, cardID, UpdateCardRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", card.Title)
}

func TestHealthSkipsAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": HealthResponse{Status: "ok", Postgres: "up"},
		})
	})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
}
