package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// jwtClaims extends jwt.RegisteredClaims with the provider's custom fields.
type jwtClaims struct {
	jwt.RegisteredClaims
	OrgID   string `json:"org_id"`
	OrgRole string `json:"org_role,omitempty"`
}

// JWTVerifier verifies Ed25519-signed identity tokens. It is the default
// Verifier for providers that publish an EdDSA verification key.
type JWTVerifier struct {
	privateKey ed25519.PrivateKey // Only set for ephemeral dev keys; enables Issue.
	publicKey  ed25519.PublicKey
	expiration time.Duration
}

// NewJWTVerifier loads the provider's Ed25519 verification key from a PEM
// file. If both paths are empty, an ephemeral key pair is generated so
// development setups can mint their own tokens with Issue.
func NewJWTVerifier(privateKeyPath, publicKeyPath string, expiration time.Duration) (*JWTVerifier, error) {
	if privateKeyPath == "" && publicKeyPath == "" {
		slog.Warn("identity: no JWT key files configured, generating ephemeral key pair (not for production)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("identity: generate key pair: %w", err)
		}
		return &JWTVerifier{privateKey: priv, publicKey: pub, expiration: expiration}, nil
	}

	v := &JWTVerifier{expiration: expiration}

	if publicKeyPath != "" {
		pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // paths come from validated config, not user input
		if err != nil {
			return nil, fmt.Errorf("identity: read public key: %w", err)
		}
		block, _ := pem.Decode(pubPEM)
		if block == nil {
			return nil, fmt.Errorf("identity: decode public key PEM")
		}
		pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("identity: parse public key: %w", err)
		}
		edPub, ok := pubKey.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("identity: public key is not Ed25519")
		}
		v.publicKey = edPub
	}

	if privateKeyPath != "" {
		privPEM, err := os.ReadFile(privateKeyPath) //nolint:gosec // paths come from validated config, not user input
		if err != nil {
			return nil, fmt.Errorf("identity: read private key: %w", err)
		}
		block, _ := pem.Decode(privPEM)
		if block == nil {
			return nil, fmt.Errorf("identity: decode private key PEM")
		}
		privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("identity: parse private key: %w", err)
		}
		edPriv, ok := privKey.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("identity: private key is not Ed25519")
		}
		v.privateKey = edPriv
		if v.publicKey == nil {
			v.publicKey = edPriv.Public().(ed25519.PublicKey)
		}
	}

	if v.publicKey == nil {
		return nil, fmt.Errorf("identity: no verification key configured")
	}
	return v, nil
}

// Verify parses and validates a token, returning the external claims.
func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, ErrUnverified
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&jwtClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("identity: unexpected signing method: %v", token.Header["alg"])
			}
			return v.publicKey, nil
		},
	)
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrUnverified, err)
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok {
		return Claims{}, ErrUnverified
	}
	return Claims{
		ExternalUserID:  claims.Subject,
		ExternalOrgID:   claims.OrgID,
		ExternalOrgRole: claims.OrgRole,
	}, nil
}

// Issue creates a signed token. Available only with an ephemeral or
// explicitly configured private key; used by development setups and tests.
func (v *JWTVerifier) Issue(externalUserID, externalOrgID, externalOrgRole string) (string, time.Time, error) {
	if v.privateKey == nil {
		return "", time.Time{}, fmt.Errorf("identity: no signing key available")
	}

	now := time.Now().UTC()
	exp := now.Add(v.expiration)

	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   externalUserID,
			Issuer:    "tavle",
			Audience:  jwt.ClaimStrings{"tavle"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		OrgID:   externalOrgID,
		OrgRole: externalOrgRole,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(v.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, exp, nil
}
