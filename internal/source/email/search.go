package email

import (
	"github.com/emersion/go-imap"
)

// Gmail category labels excluded when only the primary inbox is wanted.
var nonPrimaryLabels = []string{
	`\Promotions`,
	`\Social`,
	`\Updates`,
	`\Forums`,
}

// searchCommand is a SEARCH that can AND in Gmail label exclusions, which
// imap.SearchCriteria has no field for.
type searchCommand struct {
	criteria      *imap.SearchCriteria
	excludeLabels []string
}

func (cmd *searchCommand) Command() *imap.Command {
	args := cmd.criteria.Format()
	if len(args) == 0 {
		args = []interface{}{imap.RawString("ALL")}
	}

	for _, label := range cmd.excludeLabels {
		args = append(args,
			imap.RawString("NOT"),
			imap.RawString("X-GM-LABELS"),
			label,
		)
	}

	return &imap.Command{
		Name:      "SEARCH",
		Arguments: args,
	}
}

func newSearchCommand(q Query) *searchCommand {
	criteria := imap.NewSearchCriteria()
	if !q.SentSince.IsZero() {
		criteria.SentSince = q.SentSince
	}

	cmd := &searchCommand{criteria: criteria}
	if q.PrimaryOnly {
		cmd.excludeLabels = nonPrimaryLabels
	}
	return cmd
}
