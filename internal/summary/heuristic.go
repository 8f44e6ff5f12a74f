package summary

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/nhle/contextcatcher/internal/model"
)

const (
	heuristicConfidence = 0.5

	topTopics        = 5
	recentSubjects   = 3
	maxActionItems   = 10
	maxActionLen     = 150
	minSentenceLen   = 10
	sentencesPerBody = 20
)

var (
	wordPattern     = regexp.MustCompile(`\b[a-z]{4,}\b`)
	sentenceBreaker = regexp.MustCompile(`[.!?\n]+`)

	stopWords = map[string]bool{
		"that": true, "this": true, "with": true, "from": true,
		"have": true, "will": true, "your": true, "about": true,
		"been": true, "were": true, "their": true,
	}

	// actionPatterns are tried in order; the first match accepts a sentence.
	actionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(Please|Could you|Can you|Would you|Will you)`),
		regexp.MustCompile(`(?i)^(Need to|Must|Should|Have to|Got to)`),
		regexp.MustCompile(`(?i)^(Let's|We need|We should|We must)`),
		regexp.MustCompile(`(?i)(action required|todo|to-do|task|deadline)`),
		regexp.MustCompile(`(?i)(by \w+day|by \d+|due|before \d+)`),
	}
)

// Heuristic builds a keyword digest and pattern-matched action items
// without any external calls. Its output is deterministic for a given
// batch.
type Heuristic struct{}

// NewHeuristic returns the heuristic summarizer.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// GenerateSummary implements Summarizer. msgs are expected newest first.
// Only body_text is read; an HTML-only message contributes its subject.
// It never returns an error.
func (h *Heuristic) GenerateSummary(
	_ context.Context,
	msgs []model.NormalizedMessage,
) (model.Summary, error) {
	if len(msgs) == 0 {
		return emptySummary(), nil
	}

	return model.Summary{
		Digest:       buildDigest(msgs),
		ActionItems:  extractActionItems(msgs),
		Confidence:   heuristicConfidence,
		MessageCount: len(msgs),
	}, nil
}

func buildDigest(msgs []model.NormalizedMessage) string {
	senders := make(map[string]bool)
	for _, m := range msgs {
		senders[m.FromAddr] = true
	}

	lines := []string{
		fmt.Sprintf("Summary of %d messages:", len(msgs)),
		fmt.Sprintf("Date range: %s to %s",
			msgs[len(msgs)-1].Date.Format(time.RFC3339),
			msgs[0].Date.Format(time.RFC3339),
		),
		fmt.Sprintf("Participants: %d unique senders", len(senders)),
		"",
		"Top topics:",
	}

	for _, w := range topWords(msgs, topTopics) {
		lines = append(lines, fmt.Sprintf("  - %s (mentioned %d times)", capitalize(w.word), w.count))
	}

	lines = append(lines, "", "Recent subjects:")
	for i := 0; i < len(msgs) && i < recentSubjects; i++ {
		lines = append(lines, "  - "+msgs[i].Subject)
	}

	return strings.Join(lines, "\n")
}

type wordCount struct {
	word  string
	count int
}

// topWords counts tokens over every subject and body. Ties keep the order
// in which words were first seen.
func topWords(msgs []model.NormalizedMessage, n int) []wordCount {
	var parts []string
	for _, m := range msgs {
		parts = append(parts, m.Subject+" "+m.BodyText)
	}
	text := strings.ToLower(strings.Join(parts, " "))

	index := make(map[string]int)
	var counts []wordCount
	for _, w := range wordPattern.FindAllString(text, -1) {
		if stopWords[w] {
			continue
		}
		if i, ok := index[w]; ok {
			counts[i].count++
			continue
		}
		index[w] = len(counts)
		counts = append(counts, wordCount{word: w, count: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].count > counts[j].count
	})

	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// extractActionItems scans the first sentences of each body and stops once
// maxActionItems have been collected across the batch.
func extractActionItems(msgs []model.NormalizedMessage) []model.ActionItem {
	items := []model.ActionItem{}

	for _, m := range msgs {
		sentences := sentenceBreaker.Split(m.BodyText, -1)
		if len(sentences) > sentencesPerBody {
			sentences = sentences[:sentencesPerBody]
		}

		for _, s := range sentences {
			s = strings.TrimSpace(s)
			if utf8.RuneCountInString(s) < minSentenceLen {
				continue
			}

			for _, p := range actionPatterns {
				if p.MatchString(s) {
					items = append(items, model.ActionItem{
						Action:   truncateRunes(s, maxActionLen),
						Evidence: fmt.Sprintf("From: %s, Subject: %s", m.FromAddr, m.Subject),
					})
					break
				}
			}

			if len(items) >= maxActionItems {
				return items
			}
		}
	}

	return items
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
