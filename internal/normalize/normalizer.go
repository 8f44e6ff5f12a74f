package normalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/contextcatcher/internal/crossref"
	"github.com/nhle/contextcatcher/internal/model"
)

// ErrEmptyMessage is returned for zero-length input.
var ErrEmptyMessage = errors.New("empty message")

// replyPrefix matches one leading reply or forward marker.
var replyPrefix = regexp.MustCompile(`(?i)^(Re|Fwd|Fw):\s*`)

// Normalizer converts raw RFC 5322 messages into NormalizedMessages.
// It degrades rather than fails on malformed input.
type Normalizer struct {
	stripQuotes bool
	now         func() time.Time
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for missing dates and
// metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer. When stripQuotes is set, quoted replies and
// signatures are removed from the plain-text body.
func New(stripQuotes bool, opts ...Option) *Normalizer {
	n := &Normalizer{
		stripQuotes: stripQuotes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize parses raw and derives identity, thread, addresses, date,
// bodies and attachment metadata. Identical input always yields the same
// ID and ThreadID.
func (n *Normalizer) Normalize(
	raw []byte,
	fetchedAt time.Time,
) (model.NormalizedMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return model.NormalizedMessage{}, ErrEmptyMessage
	}

	now := n.now().UTC()

	// An entity is returned alongside unknown charset or encoding errors;
	// only a nil entity means the header itself was unreadable.
	entity, _ := message.Read(bytes.NewReader(raw))
	if entity == nil {
		return n.fromUnparsed(raw, fetchedAt, now), nil
	}

	h := mail.Header{Header: entity.Header}

	subject, err := h.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = model.NoSubject
	}

	msg := model.NormalizedMessage{
		ID:         messageID(h),
		ThreadID:   threadID(h, subject),
		Subject:    subject,
		FromAddr:   firstAddress(h.Get("From")),
		ToAddrs:    parseAddresses(h.Get("To")),
		CcAddrs:    parseAddresses(h.Get("Cc")),
		Date:       parseDate(h, now),
		RawHeaders: rawHeaders(entity.Header),
		Metadata: model.MessageMetadata{
			FetchedAt:    fetchedAt.UTC(),
			Source:       model.SourceIMAP,
			NormalizedAt: now,
		},
	}

	body := extractBody(entity)
	msg.BodyText = body.text
	msg.BodyHTML = body.html
	msg.Attachments = body.attachments

	if n.stripQuotes {
		msg.BodyText = StripQuotes(msg.BodyText)
	}

	return msg, nil
}

// fromUnparsed builds a message from input whose header could not be read.
// The whole input becomes the body.
func (n *Normalizer) fromUnparsed(
	raw []byte,
	fetchedAt, now time.Time,
) model.NormalizedMessage {
	text := toValidUTF8(raw)
	if n.stripQuotes {
		text = StripQuotes(text)
	}

	return model.NormalizedMessage{
		ID:         "generated-" + hashHex(""),
		ThreadID:   "thread-" + hashHex(cleanSubject(model.NoSubject)),
		Subject:    model.NoSubject,
		Date:       now,
		BodyText:   text,
		RawHeaders: map[string]string{},
		Metadata: model.MessageMetadata{
			FetchedAt:    fetchedAt.UTC(),
			Source:       model.SourceIMAP,
			NormalizedAt: now,
		},
	}
}

// messageID returns the Message-ID header verbatim, or a hash of the raw
// Subject and Date headers.
func messageID(h mail.Header) string {
	if id := strings.TrimSpace(h.Get("Message-Id")); id != "" {
		return id
	}
	return "generated-" + hashHex(h.Get("Subject")+h.Get("Date"))
}

// threadID prefers explicit reply references and falls back to a hash of
// the cleaned subject. Unrelated conversations with identical cleaned
// subjects share a thread.
func threadID(h mail.Header, subject string) string {
	if root := crossref.ThreadRoot(h.Get("In-Reply-To"), h.Get("References")); root != "" {
		return root
	}
	return "thread-" + hashHex(cleanSubject(subject))
}

func cleanSubject(subject string) string {
	return strings.TrimSpace(replyPrefix.ReplaceAllString(subject, ""))
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func parseDate(h mail.Header, now time.Time) time.Time {
	t, err := h.Date()
	if err != nil || t.IsZero() {
		return now
	}
	return t.UTC()
}

// rawHeaders flattens the header; later occurrences overwrite earlier ones.
func rawHeaders(h message.Header) map[string]string {
	out := make(map[string]string, h.Len())
	fields := h.Fields()
	for fields.Next() {
		out[fields.Key()] = fields.Value()
	}
	return out
}

// parseAddresses splits an address header into bare addresses in header
// order. Entries that do not yield an address are dropped; duplicates are
// kept.
func parseAddresses(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return []string{}
	}

	if list, err := mail.ParseAddressList(v); err == nil {
		out := make([]string, 0, len(list))
		for _, a := range list {
			if a.Address != "" {
				out = append(out, a.Address)
			}
		}
		return out
	}

	out := []string{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if a, err := mail.ParseAddress(part); err == nil && a.Address != "" {
			out = append(out, a.Address)
		}
	}
	return out
}

func firstAddress(v string) string {
	if addrs := parseAddresses(v); len(addrs) > 0 {
		return addrs[0]
	}
	return ""
}
