package model

import "time"

// SourceIMAP is the metadata source recorded for messages pulled over IMAP.
const SourceIMAP = "imap"

// NoSubject is the subject used when a message carries no Subject header.
const NoSubject = "(No Subject)"

// NormalizedMessage is the unified representation of a single email after
// header, MIME and body processing.
type NormalizedMessage struct {
	// ID is the Message-ID header verbatim, or a deterministic
	// "generated-<hash>" value when the header is missing.
	ID string `json:"id"`

	// ThreadID groups related messages (In-Reply-To, first References
	// token, or "thread-<hash>" of the cleaned subject).
	ThreadID string `json:"thread_id"`

	Subject  string   `json:"subject"`
	FromAddr string   `json:"from_addr"`
	ToAddrs  []string `json:"to_addrs"`
	CcAddrs  []string `json:"cc_addrs"`

	// Date is the declared send time normalized to UTC.
	Date time.Time `json:"date"`

	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`

	// Attachments holds metadata only; content is never persisted.
	Attachments []Attachment `json:"attachments"`

	// RawHeaders maps header name to value, the last occurrence winning.
	RawHeaders map[string]string `json:"raw_headers"`

	Metadata MessageMetadata `json:"metadata"`
}

// Attachment describes one attachment part of a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// MessageMetadata records provenance for a normalized message.
type MessageMetadata struct {
	FetchedAt    time.Time `json:"fetched_at"`
	Source       string    `json:"source"`
	NormalizedAt time.Time `json:"normalized_at"`
}

// ThreadView is a read-only aggregate over every stored message sharing a
// thread id. It is recomputed on each read.
type ThreadView struct {
	ThreadID string `json:"thread_id"`

	// Subject is taken from the earliest message in the thread.
	Subject string `json:"subject"`

	// Messages are ordered oldest first.
	Messages []NormalizedMessage `json:"messages"`

	// Participants lists distinct sender addresses in order of first
	// appearance.
	Participants []string `json:"participants"`

	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// MessageCount returns the number of messages in the thread.
func (t ThreadView) MessageCount() int {
	return len(t.Messages)
}

// StorageStats holds aggregate counters over the store's contents.
// Oldest and Newest are nil when the store is empty.
type StorageStats struct {
	MessageCount int        `json:"message_count"`
	ThreadCount  int        `json:"thread_count"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
}
