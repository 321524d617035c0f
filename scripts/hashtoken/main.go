// hashtoken mints an operator service token and its Argon2id hash.
//
// Usage (run from the repo root):
//
//	go run scripts/hashtoken/main.go
//
// Prints the raw secret once — hand it to the operator and never store
// it — plus the hash to set as TAVLE_SERVICE_TOKEN_HASH. Clients send
// the token as "Bearer svc.<org-id>.<secret>".
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/tavle/tavle/internal/identity"
)

func main() {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		fmt.Fprintf(os.Stderr, "error: generate secret: %v\n", err)
		os.Exit(1)
	}
	secret := hex.EncodeToString(raw)

	hash, err := identity.HashServiceToken(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: hash secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("secret (shown once):      %s\n", secret)
	fmt.Printf("TAVLE_SERVICE_TOKEN_HASH: %s\n", hash)
	fmt.Println("Bearer format: svc.<org-id>.<secret>")
}
