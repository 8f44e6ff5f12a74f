package testutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/contextcatcher/internal/model"
)

// Message builds a minimal normalized message for store and summary tests.
func Message(id, threadID, from string, date time.Time) model.NormalizedMessage {
	return model.NormalizedMessage{
		ID:          id,
		ThreadID:    threadID,
		Subject:     "Subject " + id,
		FromAddr:    from,
		ToAddrs:     []string{"me@example.com"},
		CcAddrs:     []string{},
		Date:        date.UTC(),
		BodyText:    "Body of " + id,
		Attachments: []model.Attachment{},
		RawHeaders:  map[string]string{"Subject": "Subject " + id},
		Metadata: model.MessageMetadata{
			FetchedAt:    date.UTC(),
			Source:       model.SourceIMAP,
			NormalizedAt: date.UTC(),
		},
	}
}

// RawEmail describes an RFC 5322 message for tests that exercise the
// normalizer. Empty header fields are omitted from the output.
type RawEmail struct {
	MessageID  string
	InReplyTo  string
	References string
	From       string
	To         string
	Subject    string
	Date       time.Time
	Body       string
}

// Bytes renders the message with CRLF line endings.
func (r RawEmail) Bytes() []byte {
	var b strings.Builder

	header := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		}
	}

	header("Message-ID", r.MessageID)
	header("In-Reply-To", r.InReplyTo)
	header("References", r.References)
	header("From", r.From)
	header("To", r.To)
	header("Subject", r.Subject)
	if !r.Date.IsZero() {
		header("Date", r.Date.Format(time.RFC1123Z))
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(r.Body, "\n", "\r\n"))

	return []byte(b.String())
}
