package normalize

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/contextcatcher/internal/model"
)

type extractedBody struct {
	text        string
	html        string
	attachments []model.Attachment
}

// extractBody walks a MIME tree. For multipart messages the first non-empty
// text/plain and text/html parts win and attachment parts are skipped;
// single-part messages contribute their whole payload as text.
func extractBody(entity *message.Entity) extractedBody {
	out := extractedBody{attachments: []model.Attachment{}}

	if mt, _, _ := entity.Header.ContentType(); !strings.HasPrefix(strings.ToLower(mt), "multipart/") {
		out.text = readText(entity.Body)
		return out
	}

	// Walk stops at the first structural error; whatever was collected up
	// to that point is kept.
	_ = entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if part == nil {
			return nil
		}

		mediaType, _, _ := part.Header.ContentType()
		mediaType = strings.ToLower(mediaType)
		if strings.HasPrefix(mediaType, "multipart/") {
			return nil
		}

		if isAttachment(part.Header) {
			if a, ok := attachmentMeta(part, mediaType); ok {
				out.attachments = append(out.attachments, a)
			}
			return nil
		}

		switch mediaType {
		case "text/plain":
			if out.text == "" {
				out.text = readText(part.Body)
			}
		case "text/html":
			if out.html == "" {
				out.html = readText(part.Body)
			}
		}
		return nil
	})

	return out
}

func isAttachment(h message.Header) bool {
	disp, _, err := h.ContentDisposition()
	if err != nil {
		return strings.Contains(strings.ToLower(h.Get("Content-Disposition")), "attachment")
	}
	return strings.EqualFold(disp, "attachment")
}

// attachmentMeta reports the decoded payload size of a named attachment.
// Parts without a filename are ignored.
func attachmentMeta(part *message.Entity, mediaType string) (model.Attachment, bool) {
	ah := mail.AttachmentHeader{Header: part.Header}
	filename, _ := ah.Filename()
	if filename == "" {
		return model.Attachment{}, false
	}

	size, _ := io.Copy(io.Discard, part.Body)

	return model.Attachment{
		Filename:    filename,
		ContentType: mediaType,
		SizeBytes:   size,
	}, true
}

// readText reads a decoded part body, keeping what was read before any
// decoding error and dropping invalid UTF-8 sequences.
func readText(r io.Reader) string {
	b, _ := io.ReadAll(r)
	return toValidUTF8(b)
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "")
}
