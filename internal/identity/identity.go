// Package identity consumes the external identity provider.
//
// Tavle never stores passwords or sessions itself: requests carry an opaque
// identity token issued upstream, and this package verifies it into the raw
// external claims. The local User/Membership rows remain the source of truth
// for authorization — token claims are only trusted during first-touch
// provisioning (see internal/tenant).
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrUnverified is returned when a token is missing, malformed, expired,
// or fails signature verification.
var ErrUnverified = errors.New("identity: token not verified")

// Claims are the raw facts the identity provider asserts about a request.
// Any field may be empty; the tenant resolver decides what that means.
type Claims struct {
	ExternalUserID  string
	ExternalOrgID   string
	ExternalOrgRole string
}

// Profile is the provider-side user profile, fetched once per user for
// local provisioning.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Username  string
	AvatarURL string
}

// DisplayName assembles a human-readable name, falling back to the
// username when the provider holds no real name.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		return name
	}
	return p.Username
}

// Verifier checks an identity token and extracts its claims.
// Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// ProfileFetcher hydrates a user profile from the provider.
type ProfileFetcher interface {
	GetUser(ctx context.Context, externalUserID string) (Profile, error)
}

// Provider bundles the two consumed capabilities of the identity provider.
type Provider interface {
	Verifier
	ProfileFetcher
}
