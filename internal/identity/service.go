package identity

import (
	"context"
	"fmt"
	"strings"
)

// ServiceSubject is the external user id service tokens authenticate as.
// The tenant resolver provisions it like any other first-touch user.
const ServiceSubject = "tavle-service"

const serviceTokenPrefix = "svc."

// ServiceTokenVerifier recognizes operator-issued service tokens and
// falls through to the wrapped verifier for ordinary identity tokens.
//
// A service token has the form "svc.<org-id>.<secret>". The secret is
// checked against the configured Argon2id hash (scripts/hashtoken mints
// the pair) and a match yields owner claims on the named org. Operators
// use it to bootstrap an org's first admin and to act as the automation
// system identity.
type ServiceTokenVerifier struct {
	hash string
	next Verifier
}

// NewServiceTokenVerifier wraps next. An empty hash leaves service
// tokens recognized but always rejected.
func NewServiceTokenVerifier(hash string, next Verifier) *ServiceTokenVerifier {
	return &ServiceTokenVerifier{hash: hash, next: next}
}

func (v *ServiceTokenVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	rest, ok := strings.CutPrefix(token, serviceTokenPrefix)
	if !ok {
		return v.next.Verify(ctx, token)
	}
	orgID, secret, ok := strings.Cut(rest, ".")
	if !ok || orgID == "" || secret == "" {
		DummyVerify()
		return Claims{}, fmt.Errorf("identity: malformed service token: %w", ErrUnverified)
	}
	if v.hash == "" {
		DummyVerify()
		return Claims{}, fmt.Errorf("identity: service tokens not configured: %w", ErrUnverified)
	}
	match, err := VerifyServiceToken(secret, v.hash)
	if err != nil {
		return Claims{}, fmt.Errorf("identity: service token hash: %w", ErrUnverified)
	}
	if !match {
		return Claims{}, fmt.Errorf("identity: service token rejected: %w", ErrUnverified)
	}
	return Claims{
		ExternalUserID:  ServiceSubject,
		ExternalOrgID:   orgID,
		ExternalOrgRole: "org:owner",
	}, nil
}
