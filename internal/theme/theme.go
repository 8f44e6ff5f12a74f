package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section headers such as a thread subject.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// LabelStyle renders field names in key/value listings.
var LabelStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorBlue)

// MutedStyle is for secondary details: ids, timestamps, counts.
var MutedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// SubjectStyle renders a message subject in listings.
var SubjectStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite)

// ActionStyle highlights extracted action items.
var ActionStyle = lipgloss.NewStyle().
	Foreground(ColorYellow)

// ErrorStyle renders per-item cycle errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed)

// PanelStyle wraps a digest or message body.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// HealthStyle colors a health string green when healthy, red otherwise.
func HealthStyle(healthy bool) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if healthy {
		return base.Foreground(ColorGreen)
	}
	return base.Foreground(ColorRed)
}

// CountStyle colors a cycle counter: errors in red, new messages in green,
// zero values muted.
func CountStyle(kind string, n int) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if n == 0 {
		return base.Foreground(ColorGray)
	}

	switch kind {
	case "errors":
		return base.Foreground(ColorRed)
	case "fetched":
		return base.Foreground(ColorGreen)
	case "duplicates":
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorWhite)
	}
}

// ConfidenceStyle colors a summary confidence score.
func ConfidenceStyle(c float64) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch {
	case c >= 0.75:
		return base.Foreground(ColorGreen)
	case c >= 0.5:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorGray)
	}
}
