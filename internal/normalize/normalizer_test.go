package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/contextcatcher/internal/model"
)

var (
	fixedNow  = time.Date(2024, time.June, 3, 12, 0, 0, 0, time.UTC)
	fetchedAt = time.Date(2024, time.June, 3, 11, 59, 0, 0, time.UTC)
)

func newTestNormalizer(strip bool) *Normalizer {
	return New(strip, WithClock(func() time.Time { return fixedNow }))
}

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestNormalizeSimpleMessage(t *testing.T) {
	raw := crlf(`Message-ID: <abc123@mail.example.com>
From: Alice Example <alice@example.com>
To: bob@example.com, "Carol C" <carol@example.com>
Cc: dave@example.com
Subject: Quarterly numbers
Date: Mon, 03 Jun 2024 09:15:00 +0200
X-Tag: first
X-Tag: second

Hi Bob,
Please review the attached numbers.
`)

	msg, err := newTestNormalizer(false).Normalize(raw, fetchedAt)
	require.NoError(t, err)

	assert.Equal(t, "<abc123@mail.example.com>", msg.ID)
	assert.Equal(t, "Quarterly numbers", msg.Subject)
	assert.Equal(t, "alice@example.com", msg.FromAddr)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, msg.ToAddrs)
	assert.Equal(t, []string{"dave@example.com"}, msg.CcAddrs)
	assert.True(t, msg.Date.Equal(time.Date(2024, time.June, 3, 7, 15, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, msg.Date.Location())
	assert.Contains(t, msg.BodyText, "Please review the attached numbers.")
	assert.Empty(t, msg.BodyHTML)
	assert.Empty(t, msg.Attachments)

	assert.Equal(t, "second", msg.RawHeaders["X-Tag"], "last value wins")
	assert.Equal(t, "Quarterly numbers", msg.RawHeaders["Subject"])

	assert.Equal(t, model.SourceIMAP, msg.Metadata.Source)
	assert.Equal(t, fetchedAt, msg.Metadata.FetchedAt)
	assert.Equal(t, fixedNow, msg.Metadata.NormalizedAt)

	assert.True(t, strings.HasPrefix(msg.ThreadID, "thread-"))
}

func TestNormalizeGeneratedIdentityIsDeterministic(t *testing.T) {
	raw := crlf(`From: alice@example.com
Subject: Re: Lunch plans
Date: Tue, 04 Jun 2024 10:00:00 +0000

See you there.
`)

	n := newTestNormalizer(true)
	first, err := n.Normalize(raw, fetchedAt)
	require.NoError(t, err)
	second, err := New(true).Normalize(raw, time.Now())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.ID, "generated-"))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ThreadID, second.ThreadID)

	// The thread id depends only on the cleaned subject.
	other := crlf(`From: bob@example.com
Subject: Lunch plans
Date: Wed, 05 Jun 2024 10:00:00 +0000

Different body.
`)
	third, err := n.Normalize(other, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, first.ThreadID, third.ThreadID)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestNormalizeThreadIDFromReferences(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		want    string
	}{
		{
			name:    "in-reply-to",
			headers: "In-Reply-To: <parent@x>\nReferences: <root@x> <parent@x>\n",
			want:    "<parent@x>",
		},
		{
			name:    "first reference",
			headers: "References: <root@x> <parent@x>\n",
			want:    "<root@x>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := crlf("Message-ID: <child@x>\nSubject: Re: plan\n" + tt.headers + "\nok\n")
			msg, err := newTestNormalizer(false).Normalize(raw, fetchedAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.ThreadID)
		})
	}
}

func TestNormalizeSubjectCleaning(t *testing.T) {
	for _, subject := range []string{"Budget", "Re: Budget", "FWD: Budget", "fw:Budget"} {
		assert.Equal(t, "Budget", cleanSubject(subject), subject)
	}
	assert.Equal(t, "Re: Budget", cleanSubject("Re: Re: Budget"), "only one prefix is removed")
}

func TestNormalizeMissingSubjectAndBadDate(t *testing.T) {
	raw := crlf(`Message-ID: <x@y>
From: not-an-address
Date: sometime last week

body
`)

	msg, err := newTestNormalizer(false).Normalize(raw, fetchedAt)
	require.NoError(t, err)

	assert.Equal(t, model.NoSubject, msg.Subject)
	assert.Equal(t, fixedNow, msg.Date)
	assert.Empty(t, msg.FromAddr)
	assert.Equal(t, []string{}, msg.ToAddrs)
}

func TestParseAddresses(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{
			name: "quoted comma in display name",
			in:   `"Doe, John" <john@example.com>, jane@example.com, jane@example.com`,
			want: []string{"john@example.com", "jane@example.com", "jane@example.com"},
		},
		{
			name: "unusable entries dropped",
			in:   "alice@example.com, not an address, Bob <bob@example.com>",
			want: []string{"alice@example.com", "bob@example.com"},
		},
		{
			name: "encoded display name",
			in:   "=?UTF-8?B?SsO8cmdlbg==?= <jurgen@example.com>",
			want: []string{"jurgen@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAddresses(tt.in))
		})
	}
}

const multipartMessage = `Message-ID: <multi@example.com>
From: Alice <alice@example.com>
To: bob@example.com
Subject: Report
Date: Mon, 03 Jun 2024 09:15:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset="iso-8859-1"
Content-Transfer-Encoding: quoted-printable

Caf=E9 report attached.
> old quoted line

--inner
Content-Type: text/html; charset="utf-8"

<p>Caf&eacute; report attached.</p>
--inner--

--outer
Content-Type: text/plain

Second plain part is ignored.
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="report.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--outer
Content-Type: application/octet-stream
Content-Disposition: attachment

bm8gbmFtZQ==
--outer
Content-Type: text/plain
Content-Disposition: attachment; filename="notes.txt"

not part of the body
--outer--
`

func TestNormalizeMultipart(t *testing.T) {
	msg, err := newTestNormalizer(true).Normalize(crlf(multipartMessage), fetchedAt)
	require.NoError(t, err)

	assert.Equal(t, "Café report attached.", msg.BodyText)
	assert.Contains(t, msg.BodyHTML, "<p>Caf&eacute; report attached.</p>")
	assert.NotContains(t, msg.BodyText, "Second plain part")
	assert.NotContains(t, msg.BodyText, "not part of the body")

	require.Len(t, msg.Attachments, 2, "attachments without a filename are ignored")
	assert.Equal(t, model.Attachment{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   9,
	}, msg.Attachments[0])
	assert.Equal(t, "notes.txt", msg.Attachments[1].Filename)
	assert.Equal(t, "text/plain", msg.Attachments[1].ContentType)
}

func TestNormalizeSinglePartHTMLGoesToText(t *testing.T) {
	raw := crlf(`Message-ID: <html@x>
Content-Type: text/html; charset=utf-8

<b>Hello</b>
`)

	msg, err := newTestNormalizer(false).Normalize(raw, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, "<b>Hello</b>\r\n", msg.BodyText)
	assert.Empty(t, msg.BodyHTML)
}

func TestNormalizeInvalidUTF8IsDropped(t *testing.T) {
	raw := append(crlf("Message-ID: <bin@x>\nContent-Type: text/plain\n\nok"), 0xff, 0xfe, '!')

	msg, err := newTestNormalizer(false).Normalize(raw, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, "ok!", msg.BodyText)
}

func TestNormalizeUnreadableHeaderFallsBack(t *testing.T) {
	raw := []byte("this is not a header\n\n> quoted\nactual text\n")

	msg, err := newTestNormalizer(true).Normalize(raw, fetchedAt)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(msg.ID, "generated-"))
	assert.True(t, strings.HasPrefix(msg.ThreadID, "thread-"))
	assert.Equal(t, model.NoSubject, msg.Subject)
	assert.Equal(t, fixedNow, msg.Date)
	assert.Equal(t, "this is not a header\n\nactual text", msg.BodyText)
}

func TestNormalizeEmptyInput(t *testing.T) {
	_, err := newTestNormalizer(false).Normalize([]byte("  \r\n"), fetchedAt)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
