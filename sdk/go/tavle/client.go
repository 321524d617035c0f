package tavle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Tavle server (e.g. "http://localhost:8080").
	BaseURL string

	// Token is the bearer token issued by the identity provider.
	Token string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Tavle board API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or Token is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tavle: BaseURL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("tavle: Token is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  httpClient,
	}, nil
}

// CreateBoard creates a board owned by the caller's org.
func (c *Client) CreateBoard(ctx context.Context, req CreateBoardRequest) (*Board, error) {
	var out Board
	if err := c.post(ctx, "/v1/boards", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBoards returns the caller's org boards, newest first.
func (c *Client) ListBoards(ctx context.Context) ([]Board, error) {
	var out []Board
	if err := c.get(ctx, "/v1/boards", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBoard fetches one board by id.
func (c *Client) GetBoard(ctx context.Context, boardID uuid.UUID) (*Board, error) {
	var out Board
	if err := c.get(ctx, "/v1/boards/"+boardID.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBoard renames a board. Requires the ADMIN role.
func (c *Client) UpdateBoard(ctx context.Context, boardID uuid.UUID, title string) (*Board, error) {
	var out Board
	body := map[string]string{"title": title}
	if err := c.patch(ctx, "/v1/boards/"+boardID.String(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBoard removes a board and everything on it. Requires the ADMIN role.
func (c *Client) DeleteBoard(ctx context.Context, boardID uuid.UUID) error {
	return c.doDelete(ctx, "/v1/boards/"+boardID.String(), nil)
}

// CreateList appends an empty list to a board.
func (c *Client) CreateList(ctx context.Context, boardID uuid.UUID, req CreateListRequest) (*List, error) {
	var out List
	path := "/v1/boards/" + boardID.String() + "/lists"
	if err := c.post(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLists returns a board's lists in display order.
func (c *Client) ListLists(ctx context.Context, boardID uuid.UUID) ([]List, error) {
	var out []List
	if err := c.get(ctx, "/v1/boards/"+boardID.String()+"/lists", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteList removes an empty list. Fails if the list still holds cards.
func (c *Client) DeleteList(ctx context.Context, boardID, listID uuid.UUID) error {
	path := "/v1/boards/" + boardID.String() + "/lists/" + listID.String()
	return c.doDelete(ctx, path, nil)
}

// CreateCard appends a card to the tail of a list.
func (c *Client) CreateCard(ctx context.Context, boardID uuid.UUID, req CreateCardRequest) (*Card, error) {
	var out Card
	path := "/v1/boards/" + boardID.String() + "/cards"
	if err := c.post(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCards returns a list's cards in display order.
func (c *Client) ListCards(ctx context.Context, listID uuid.UUID) ([]Card, error) {
	var out []Card
	if err := c.get(ctx, "/v1/lists/"+listID.String()+"/cards", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCard fetches one card by id.
func (c *Client) GetCard(ctx context.Context, cardID uuid.UUID) (*Card, error) {
	var out Card
	if err := c.get(ctx, "/v1/cards/"+cardID.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCard patches a card's fields.
func (c *Client) UpdateCard(ctx context.Context, boardID, cardID uuid.UUID, req UpdateCardRequest) (*Card, error) {
	var out Card
	path := "/v1/boards/" + boardID.String() + "/cards/" + cardID.String()
	if err := c.patch(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCard removes a card.
func (c *Client) DeleteCard(ctx context.Context, boardID, cardID uuid.UUID) error {
	path := "/v1/boards/" + boardID.String() + "/cards/" + cardID.String()
	return c.doDelete(ctx, path, nil)
}

// ReorderCards applies a batch of card position changes, including moves
// across lists.
func (c *Client) ReorderCards(ctx context.Context, boardID uuid.UUID, items []CardOrderItem) error {
	path := "/v1/boards/" + boardID.String() + "/cards/reorder"
	body := map[string]any{"items": items}
	return c.post(ctx, path, body, nil)
}

// CreateComment adds a comment to a card.
func (c *Client) CreateComment(ctx context.Context, cardID uuid.UUID, req CreateCommentRequest) (*Comment, error) {
	var out Comment
	path := "/v1/cards/" + cardID.String() + "/comments"
	if err := c.post(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListComments returns a card's comments, oldest first. Draft comments by
// other users are excluded server-side.
func (c *Client) ListComments(ctx context.Context, cardID uuid.UUID) ([]Comment, error) {
	var out []Comment
	if err := c.get(ctx, "/v1/cards/"+cardID.String()+"/comments", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListLabels returns the org's labels.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var out []Label
	if err := c.get(ctx, "/v1/labels", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health checks server liveness. No authentication required.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("tavle: build request: %w", err)
	}
	var out HealthResponse
	if err := c.doRequest(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// resultEnvelope is the uniform wire shape of every response: exactly one
// of data, fieldErrors, or error is set.
type resultEnvelope struct {
	Data        json.RawMessage   `json:"data"`
	FieldErrors map[string]string `json:"fieldErrors"`
	Error       string            `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) patch(ctx context.Context, path string, body any, dest any) error {
	return c.send(ctx, http.MethodPatch, path, body, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tavle: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.doRequest(req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tavle: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.doRequest(req, dest)
}

func (c *Client) send(ctx context.Context, method, path string, body any, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("tavle: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("tavle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tavle: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tavle: read response body: %w", err)
	}

	var env resultEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("tavle: decode response envelope: %w", err)
	}

	if len(env.FieldErrors) > 0 {
		return &Error{StatusCode: resp.StatusCode, FieldErrors: env.FieldErrors}
	}
	if env.Error != "" {
		return &Error{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if resp.StatusCode >= 400 {
		return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if dest == nil || env.Data == nil {
		return nil
	}
	return json.Unmarshal(env.Data, dest)
}
