package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/xeonx/timeago"

	"github.com/nhle/contextcatcher/internal/app"
	"github.com/nhle/contextcatcher/internal/model"
	"github.com/nhle/contextcatcher/internal/normalize"
	"github.com/nhle/contextcatcher/internal/theme"
)

const (
	previewLen = 80
	timeLayout = "2006-01-02 15:04"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatFetchResult(w io.Writer, res model.FetchResult) {
	fmt.Fprintf(w, "%s %s  %s %s  %s %s\n",
		theme.LabelStyle.Render("fetched"),
		theme.CountStyle("fetched", res.Fetched).Render(humanize.Comma(int64(res.Fetched))),
		theme.LabelStyle.Render("duplicates"),
		theme.CountStyle("duplicates", res.Duplicates).Render(humanize.Comma(int64(res.Duplicates))),
		theme.LabelStyle.Render("errors"),
		theme.CountStyle("errors", len(res.Errors)).Render(humanize.Comma(int64(len(res.Errors)))),
	)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", theme.ErrorStyle.Render(e))
	}
}

func formatMessages(w io.Writer, page app.MessagePage) {
	if len(page.Messages) == 0 {
		fmt.Fprintln(w, theme.MutedStyle.Render("No messages."))
		return
	}

	for _, m := range page.Messages {
		fmt.Fprintf(w, "%s  %s\n",
			theme.MutedStyle.Render(m.Date.Local().Format(timeLayout)),
			theme.SubjectStyle.Render(m.Subject),
		)
		fmt.Fprintf(w, "  %s %s\n", theme.LabelStyle.Render("from"), m.FromAddr)
		fmt.Fprintf(w, "  %s %s\n", theme.LabelStyle.Render("thread"), theme.MutedStyle.Render(m.ThreadID))
		if p := preview(normalize.PlainText(m)); p != "" {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}

	end := page.Offset + len(page.Messages)
	fmt.Fprintln(w, theme.MutedStyle.Render(fmt.Sprintf("%d-%d of %s",
		page.Offset+1, end, humanize.Comma(int64(page.Total)))))
}

func formatThread(w io.Writer, v *model.ThreadView) {
	fmt.Fprintln(w, theme.HeaderStyle.Render(v.Subject))
	fmt.Fprintf(w, "%s %s\n", theme.LabelStyle.Render("thread"), v.ThreadID)
	fmt.Fprintf(w, "%s %s\n", theme.LabelStyle.Render("participants"), strings.Join(v.Participants, ", "))
	fmt.Fprintf(w, "%s %s to %s (%s messages)\n",
		theme.LabelStyle.Render("span"),
		v.Earliest.Local().Format(timeLayout),
		v.Latest.Local().Format(timeLayout),
		humanize.Comma(int64(v.MessageCount())),
	)

	for _, m := range v.Messages {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s  %s\n",
			theme.MutedStyle.Render(m.Date.Local().Format(timeLayout)),
			theme.SubjectStyle.Render(m.FromAddr),
		)
		if body := strings.TrimSpace(normalize.PlainText(m)); body != "" {
			fmt.Fprintln(w, theme.PanelStyle.Render(body))
		}
		for _, a := range m.Attachments {
			fmt.Fprintf(w, "  %s %s (%s, %s)\n",
				theme.LabelStyle.Render("attachment"),
				a.Filename, a.ContentType, humanize.Bytes(uint64(max(a.SizeBytes, 0))))
		}
	}
}

func formatSummary(w io.Writer, s model.Summary) {
	fmt.Fprintln(w, theme.PanelStyle.Render(s.Digest))

	if len(s.ActionItems) > 0 {
		fmt.Fprintln(w, theme.LabelStyle.Render("Action items"))
	}
	for _, item := range s.ActionItems {
		fmt.Fprintf(w, "  - %s\n", theme.ActionStyle.Render(item.Action))
		if item.Owner != "" {
			fmt.Fprintf(w, "    owner: %s\n", item.Owner)
		}
		if item.Deadline != "" {
			fmt.Fprintf(w, "    deadline: %s\n", item.Deadline)
		}
		if item.Evidence != "" {
			fmt.Fprintf(w, "    %s\n", theme.MutedStyle.Render(item.Evidence))
		}
	}

	fmt.Fprintf(w, "%s %s over %d messages\n",
		theme.LabelStyle.Render("confidence"),
		theme.ConfidenceStyle(s.Confidence).Render(fmt.Sprintf("%.2f", s.Confidence)),
		s.MessageCount,
	)
}

func formatStatus(w io.Writer, st app.Status, now time.Time) {
	fmt.Fprintf(w, "%s %s\n", theme.LabelStyle.Render("health"), theme.HealthStyle(st.Healthy()).Render(st.Health))

	last := "never"
	if st.LastFetch != nil {
		last = fmt.Sprintf("%s (%s)",
			timeago.English.FormatReference(*st.LastFetch, now),
			st.LastFetch.Local().Format(timeLayout))
	}
	fmt.Fprintf(w, "%s %s\n", theme.LabelStyle.Render("last fetch"), last)

	if !st.Healthy() {
		return
	}
	fmt.Fprintf(w, "%s %s\n", theme.LabelStyle.Render("messages"), humanize.Comma(int64(st.Stats.MessageCount)))
	fmt.Fprintf(w, "%s %s\n", theme.LabelStyle.Render("threads"), humanize.Comma(int64(st.Stats.ThreadCount)))
	if st.Stats.Oldest != nil && st.Stats.Newest != nil {
		fmt.Fprintf(w, "%s %s to %s\n",
			theme.LabelStyle.Render("range"),
			st.Stats.Oldest.Local().Format(timeLayout),
			st.Stats.Newest.Local().Format(timeLayout))
	}
}

// preview flattens a body to a single line of at most previewLen runes.
func preview(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen-3]) + "..."
}
