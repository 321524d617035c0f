package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPProfileClient fetches user profiles from the identity provider's
// management API. Used once per user, on first-touch provisioning.
type HTTPProfileClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProfileClient builds a profile client for the provider API at
// baseURL, authenticating with apiKey as a bearer token.
func NewHTTPProfileClient(baseURL, apiKey string) *HTTPProfileClient {
	return &HTTPProfileClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type profileResponse struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// GetUser fetches the provider profile for an external user id.
func (c *HTTPProfileClient) GetUser(ctx context.Context, externalUserID string) (Profile, error) {
	u := fmt.Sprintf("%s/v1/users/%s", c.baseURL, url.PathEscape(externalUserID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("identity: build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("identity: fetch profile: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("identity: profile fetch returned status %d", resp.StatusCode)
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Profile{}, fmt.Errorf("identity: decode profile: %w", err)
	}
	return Profile{
		Email:     body.Email,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Username:  body.Username,
		AvatarURL: body.AvatarURL,
	}, nil
}

// NoopProfileFetcher returns empty profiles. Used when the provider has no
// management API configured; provisioning falls back to placeholder values.
type NoopProfileFetcher struct{}

// GetUser returns an empty profile.
func (NoopProfileFetcher) GetUser(context.Context, string) (Profile, error) {
	return Profile{}, nil
}
