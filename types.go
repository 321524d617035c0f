package tavle

import "github.com/google/uuid"

// Event is the public projection of a board event, delivered to registered
// EventHooks. Type uses the wire naming ("card.created", "card.moved", ...)
// that webhooks and the SSE stream also use.
type Event struct {
	Type    string
	OrgID   string
	BoardID uuid.UUID
	CardID  uuid.UUID
}
