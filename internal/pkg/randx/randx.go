/*
Package randx provides generators for client-side identifiers.

It is primarily used to tag optimistic sends with a LocalID that can never collide with
a server-assigned message id, and to mint server-side message ids in test backends.
*/
package randx

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LocalID identifies a pending send. It lives in its own type so it cannot be
// compared against, or mistaken for, a server message id.
type LocalID struct {
	// CreatedAt is the client time at which the send was initiated.
	CreatedAt time.Time

	// Nonce disambiguates sends created within the same clock tick.
	Nonce uuid.UUID
}

// NewLocalID returns a LocalID stamped with now.
func NewLocalID(now time.Time) LocalID {
	return LocalID{CreatedAt: now, Nonce: uuid.New()}
}

// IsZero reports whether id is the zero LocalID.
func (id LocalID) IsZero() bool {
	return id.Nonce == uuid.Nil
}

// String renders the id for logs.
func (id LocalID) String() string {
	return fmt.Sprintf("local-%d-%s", id.CreatedAt.UnixMilli(), id.Nonce.String()[:8])
}

// MessageID generates a standard UUID v4 string.
func MessageID() string {
	return uuid.New().String()
}
