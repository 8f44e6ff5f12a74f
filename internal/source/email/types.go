package email

import (
	"context"
	"strconv"
	"time"
)

// MessageRef is an opaque reference to a message in the selected mailbox.
// It carries the IMAP UID, which stays valid across sessions.
type MessageRef uint32

func (r MessageRef) String() string {
	return "uid " + strconv.FormatUint(uint64(r), 10)
}

// Query describes a mailbox search. A zero SentSince matches all messages.
type Query struct {
	SentSince   time.Time
	PrimaryOnly bool
}

// Searcher is the part of a session the locator needs.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]MessageRef, error)
	ArrivalTime(ctx context.Context, ref MessageRef) (time.Time, error)
}

// Mailbox is an authenticated session with a mailbox selected. A Mailbox
// is used by one fetch cycle at a time.
type Mailbox interface {
	Searcher

	// FetchRaw returns the full RFC 5322 bytes of one message. A failure
	// for one reference leaves the session usable.
	FetchRaw(ctx context.Context, ref MessageRef) ([]byte, error)

	Close() error
}
