package model

import "time"

// ActionItem is a candidate task extracted from a batch of messages.
type ActionItem struct {
	// Action is the task text, bounded in length by the producer.
	Action string `json:"action"`

	Owner    string `json:"owner,omitempty"`
	Deadline string `json:"deadline,omitempty"`

	// Evidence points back at the message the item came from. It is free
	// text and is not parsed further.
	Evidence string `json:"evidence_snippet"`
}

// Summary is the digest produced over a batch of messages.
type Summary struct {
	Digest       string       `json:"digest"`
	ActionItems  []ActionItem `json:"action_items"`
	Confidence   float64      `json:"confidence"`
	MessageCount int          `json:"message_count"`
}

// FetchResult reports the outcome of one fetch cycle. Fetched counts
// messages stored for the first time; Duplicates counts messages whose id
// was already present.
type FetchResult struct {
	Fetched    int       `json:"fetched"`
	Duplicates int       `json:"duplicates"`
	Errors     []string  `json:"errors"`
	Timestamp  time.Time `json:"timestamp"`
}

// FetchRun is the persisted record of a completed fetch cycle.
type FetchRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Fetched    int       `json:"fetched"`
	Duplicates int       `json:"duplicates"`
	Errors     []string  `json:"errors"`
}
