// Package app holds the application context shared by every command: the
// store, the ingestion pipeline, the summarizer and the last-fetch time.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/contextcatcher/internal/model"
	"github.com/nhle/contextcatcher/internal/normalize"
	"github.com/nhle/contextcatcher/internal/source/email"
	"github.com/nhle/contextcatcher/internal/store"
	"github.com/nhle/contextcatcher/internal/summary"
	"github.com/nhle/contextcatcher/internal/sync"
)

// Paging bounds for Messages and Summary.
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
	DefaultSummaryLimit = 5
	MaxSummaryLimit     = 50

	noMessagesDigest = "No messages available to summarize."
)

// ErrThreadNotFound is returned by Thread when no stored message carries
// the requested thread id.
var ErrThreadNotFound = errors.New("thread not found")

// Cycler runs fetch cycles.
type Cycler interface {
	RunCycle(ctx context.Context) model.FetchResult
	RunCycleWithLookback(ctx context.Context, lookback time.Duration) model.FetchResult
}

// App is constructed once at startup and passed to every command.
type App struct {
	cfg        *model.AppConfig
	store      store.Store
	pipeline   Cycler
	summarizer summary.Summarizer
	logger     *log.Logger

	// fetchMu serializes fetch cycles against the store.
	fetchMu gosync.Mutex

	mu        gosync.RWMutex
	lastFetch *time.Time
}

// New opens the store and wires the IMAP client, locator, normalizer,
// pipeline and summarizer described by cfg.
func New(ctx context.Context, cfg *model.AppConfig, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Storage.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client := email.NewClient(cfg.Email, cfg.Fetch,
		email.WithLogger(logger.WithPrefix("imap")))
	pipeline := sync.NewPipeline(
		client,
		email.NewLocator(cfg.Fetch, logger.WithPrefix("locator")),
		normalize.New(cfg.Fetch.StripQuotes),
		st,
		cfg.Fetch.Lookback(),
		sync.WithLogger(logger.WithPrefix("pipeline")),
	)
	summarizer := summary.New(cfg.LLM, logger.WithPrefix("summary"),
		summary.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout()}))

	a, err := newApp(ctx, cfg, st, pipeline, summarizer, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func newApp(
	ctx context.Context,
	cfg *model.AppConfig,
	st store.Store,
	pipeline Cycler,
	summarizer summary.Summarizer,
	logger *log.Logger,
) (*App, error) {
	a := &App{
		cfg:        cfg,
		store:      st,
		pipeline:   pipeline,
		summarizer: summarizer,
		logger:     logger,
	}

	run, err := st.LastFetchRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading last fetch run: %w", err)
	}
	if run != nil {
		t := run.FinishedAt
		a.lastFetch = &t
	}

	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// Config returns the configuration the app was built from.
func (a *App) Config() *model.AppConfig {
	return a.cfg
}

// FetchOptions adjusts a single fetch cycle.
type FetchOptions struct {
	// SinceHours overrides the configured lookback when positive.
	SinceHours int
}

// Fetch runs one cycle bounded by the configured fetch timeout. Cycles are
// serialized; a second caller waits for the first to finish.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) model.FetchResult {
	a.fetchMu.Lock()
	defer a.fetchMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Fetch.Timeout())
	defer cancel()

	var result model.FetchResult
	if opts.SinceHours > 0 {
		result = a.pipeline.RunCycleWithLookback(ctx, time.Duration(opts.SinceHours)*time.Hour)
	} else {
		result = a.pipeline.RunCycle(ctx)
	}

	a.mu.Lock()
	t := result.Timestamp
	a.lastFetch = &t
	a.mu.Unlock()

	return result
}

// RunCycle lets the poller drive Fetch with the configured lookback.
func (a *App) RunCycle(ctx context.Context) model.FetchResult {
	return a.Fetch(ctx, FetchOptions{})
}

// MessagePage is one page of stored messages, newest first.
type MessagePage struct {
	Messages []model.NormalizedMessage `json:"messages"`
	Total    int                       `json:"total"`
	Limit    int                       `json:"limit"`
	Offset   int                       `json:"offset"`
}

// Messages lists stored messages. limit is clamped to 1..MaxMessageLimit
// with zero meaning DefaultMessageLimit; a negative offset is treated as 0.
func (a *App) Messages(ctx context.Context, limit, offset int) (MessagePage, error) {
	limit = clamp(limit, DefaultMessageLimit, MaxMessageLimit)
	if offset < 0 {
		offset = 0
	}

	msgs, err := a.store.List(ctx, limit, offset)
	if err != nil {
		return MessagePage{}, err
	}
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return MessagePage{}, err
	}

	return MessagePage{
		Messages: msgs,
		Total:    stats.MessageCount,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// Thread returns the assembled thread or ErrThreadNotFound.
func (a *App) Thread(ctx context.Context, threadID string) (*model.ThreadView, error) {
	view, found, err := a.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrThreadNotFound
	}
	return view, nil
}

// Summary digests the n most recent messages, n clamped to
// 1..MaxSummaryLimit with zero meaning DefaultSummaryLimit. Summarizer
// failures never reach the caller; only store errors do.
func (a *App) Summary(ctx context.Context, n int) (model.Summary, error) {
	n = clamp(n, DefaultSummaryLimit, MaxSummaryLimit)

	msgs, err := a.store.List(ctx, n, 0)
	if err != nil {
		return model.Summary{}, err
	}
	if len(msgs) == 0 {
		return model.Summary{
			Digest:      noMessagesDigest,
			ActionItems: []model.ActionItem{},
		}, nil
	}

	s, err := a.summarizer.GenerateSummary(ctx, msgs)
	if err != nil {
		a.logger.Error("summarizer failed", "err", err)
		return summary.NewHeuristic().GenerateSummary(ctx, msgs)
	}
	return s, nil
}

// Status reports the last fetch time and store statistics. A store that
// cannot be read yields an unhealthy status rather than an error.
type Status struct {
	LastFetch *time.Time         `json:"last_fetch"`
	Stats     model.StorageStats `json:"stats"`
	Health    string             `json:"health"`
}

// Healthy reports whether the store could be read.
func (s Status) Healthy() bool {
	return s.Health == "healthy"
}

// Status implements the status operation.
func (a *App) Status(ctx context.Context) Status {
	st := Status{LastFetch: a.LastFetch()}

	stats, err := a.store.Stats(ctx)
	if err != nil {
		a.logger.Error("reading stats", "err", err)
		st.Health = "unhealthy: " + err.Error()
		return st
	}

	st.Stats = stats
	st.Health = "healthy"
	return st
}

// LastFetch returns the finish time of the most recent cycle, or nil when
// no cycle has ever run against this store.
func (a *App) LastFetch() *time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.lastFetch == nil {
		return nil
	}
	t := *a.lastFetch
	return &t
}

func clamp(v, def, upper int) int {
	switch {
	case v == 0:
		return def
	case v < 1:
		return 1
	case v > upper:
		return upper
	}
	return v
}
