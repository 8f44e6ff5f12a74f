package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/contextcatcher/internal/model"
)

func TestHTMLToText(t *testing.T) {
	in := `<div>Hello &amp; welcome</div><p>Second <b>line</b></p><script>alert(1)</script>`
	assert.Equal(t, "Hello & welcome\nSecond line", HTMLToText(in))
}

func TestPlainTextPrefersTextBody(t *testing.T) {
	m := model.NormalizedMessage{BodyText: "plain", BodyHTML: "<p>html</p>"}
	assert.Equal(t, "plain", PlainText(m))

	m.BodyText = "  "
	assert.Equal(t, "html", PlainText(m))

	assert.Equal(t, "", PlainText(model.NormalizedMessage{}))
}
