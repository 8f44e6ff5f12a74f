package normalize

import (
	"regexp"
	"strings"
)

var (
	wrotePattern = regexp.MustCompile(`^On .+ wrote:`)

	separators = map[string]bool{
		"--":  true,
		"___": true,
		"---": true,
	}

	closings = map[string]bool{
		"Best regards": true,
		"Best":         true,
		"Thanks":       true,
		"Thank you":    true,
		"Regards":      true,
	}
)

// StripQuotes removes quoted reply lines and everything from the first
// reply header, signature separator or "Sent from" footer onward. A bare
// closing salutation is kept as the last line.
func StripQuotes(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, ">") || strings.HasPrefix(trimmed, "|") {
			continue
		}
		if wrotePattern.MatchString(trimmed) ||
			separators[trimmed] ||
			strings.HasPrefix(trimmed, "Sent from") {
			break
		}

		kept = append(kept, line)
		if closings[trimmed] {
			break
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}
