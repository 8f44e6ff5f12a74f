package crossref

import "strings"

// ThreadRoot picks the reference a reply should be grouped under: the
// In-Reply-To value verbatim when present, otherwise the first
// whitespace-separated token of References. It returns "" when neither
// header carries a value.
func ThreadRoot(inReplyTo, references string) string {
	if v := strings.TrimSpace(inReplyTo); v != "" {
		return v
	}
	if fields := strings.Fields(references); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
