package email

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/contextcatcher/internal/model"
)

// DefaultArrivalWindow is how many of the newest search results the
// arrival-date strategy inspects. INTERNALDATE cannot be searched below day
// granularity, so each candidate costs one round trip; messages older than
// the window are never considered even when they arrived inside the
// lookback period. Mailboxes receiving more than this many messages within
// the lookback window will miss the excess.
const DefaultArrivalWindow = 50

// Locator finds the messages that fall inside a lookback window.
type Locator struct {
	useArrivalDate bool
	primaryOnly    bool
	window         int
	logger         *log.Logger
}

// NewLocator builds a locator from the fetch configuration.
func NewLocator(cfg model.FetchConfig, logger *log.Logger) *Locator {
	window := cfg.ArrivalWindow
	if window <= 0 {
		window = DefaultArrivalWindow
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Locator{
		useArrivalDate: cfg.UseArrivalDate,
		primaryOnly:    cfg.PrimaryOnly,
		window:         window,
		logger:         logger,
	}
}

// Locate returns references to messages at or after since. An empty result
// is not an error.
func (l *Locator) Locate(
	ctx context.Context,
	s Searcher,
	since time.Time,
) ([]MessageRef, error) {
	if l.useArrivalDate {
		return l.byArrivalDate(ctx, s, since)
	}
	return l.bySentDate(ctx, s, since)
}

// bySentDate relies on the server's day-granular SENTSINCE filter.
func (l *Locator) bySentDate(
	ctx context.Context,
	s Searcher,
	since time.Time,
) ([]MessageRef, error) {
	refs, err := s.Search(ctx, Query{
		SentSince:   since,
		PrimaryOnly: l.primaryOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("searching by sent date: %w", err)
	}
	return refs, nil
}

// byArrivalDate inspects the INTERNALDATE of the newest l.window
// candidates. Lookup failures skip the candidate.
func (l *Locator) byArrivalDate(
	ctx context.Context,
	s Searcher,
	since time.Time,
) ([]MessageRef, error) {
	candidates, err := s.Search(ctx, Query{PrimaryOnly: l.primaryOnly})
	if err != nil {
		return nil, fmt.Errorf("searching candidates: %w", err)
	}

	if len(candidates) > l.window {
		candidates = candidates[len(candidates)-l.window:]
	}

	var refs []MessageRef
	for _, ref := range candidates {
		arrived, err := s.ArrivalTime(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return refs, ctx.Err()
			}
			l.logger.Warn("arrival time lookup failed", "ref", ref, "err", err)
			continue
		}
		if !arrived.Before(since) {
			refs = append(refs, ref)
		}
	}

	l.logger.Debug("arrival-date scan complete",
		"candidates", len(candidates),
		"matched", len(refs),
	)
	return refs, nil
}
