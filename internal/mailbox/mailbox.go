package mailbox

import (
	"context"
	"time"
)

// Mailbox opens sessions against a remote mail store.
type Mailbox interface {
	// Connect dials and authenticates, returning a live session.
	// The caller owns the session and must Close it.
	Connect(ctx context.Context) (Session, error)
}

// Session is one authenticated connection with the watched folder
// selected. Message IDs are stable identifiers unique within the
// folder (IMAP UIDs rendered as decimal strings).
type Session interface {
	// SearchUnread returns the IDs of unread messages dated on or
	// after since. A zero since means all unread messages.
	SearchUnread(since time.Time) ([]string, error)

	// Fetch returns the raw RFC 5322 bytes of one message without
	// marking it read.
	Fetch(id string) ([]byte, error)

	// MarkRead sets the read flag on one message.
	MarkRead(id string) error

	// Close logs out and releases the connection.
	Close() error
}
