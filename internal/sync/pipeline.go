package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nhle/contextcatcher/internal/model"
	"github.com/nhle/contextcatcher/internal/source"
	"github.com/nhle/contextcatcher/internal/source/email"
	"github.com/nhle/contextcatcher/internal/store"
)

// Connector opens a mailbox session, retrying as it sees fit.
type Connector interface {
	Connect(ctx context.Context) (email.Mailbox, error)
}

// Locator picks candidate messages from a session.
type Locator interface {
	Locate(ctx context.Context, s email.Searcher, since time.Time) ([]email.MessageRef, error)
}

// Normalizer converts one raw message.
type Normalizer interface {
	Normalize(raw []byte, fetchedAt time.Time) (model.NormalizedMessage, error)
}

// Pipeline runs fetch cycles: connect, locate, fetch, normalize, save.
// Per-item failures are collected and never abort a cycle.
type Pipeline struct {
	connector  Connector
	locator    Locator
	normalizer Normalizer
	store      store.Store
	lookback   time.Duration
	logger     *log.Logger
	now        func() time.Time
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock overrides the pipeline's time source.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline wires the cycle's collaborators. lookback is the window
// before the cycle start that is searched for mail.
func NewPipeline(
	connector Connector,
	locator Locator,
	normalizer Normalizer,
	s store.Store,
	lookback time.Duration,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		connector:  connector,
		locator:    locator,
		normalizer: normalizer,
		store:      s,
		lookback:   lookback,
		logger:     log.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunCycle performs one fetch cycle over the configured lookback window
// and always returns a result. A cycle that cannot connect reports zero
// counts and a single error. The outcome is appended to the store's
// fetch-run log.
func (p *Pipeline) RunCycle(ctx context.Context) model.FetchResult {
	return p.RunCycleWithLookback(ctx, p.lookback)
}

// RunCycleWithLookback is RunCycle with a one-off lookback window.
func (p *Pipeline) RunCycleWithLookback(
	ctx context.Context,
	lookback time.Duration,
) model.FetchResult {
	started := p.now().UTC()
	result := p.runCycle(ctx, started.Add(-lookback))

	run := model.FetchRun{
		ID:         uuid.New().String(),
		StartedAt:  started,
		FinishedAt: result.Timestamp,
		Fetched:    result.Fetched,
		Duplicates: result.Duplicates,
		Errors:     result.Errors,
	}
	// The log must be written even when ctx has expired.
	if err := p.store.RecordFetchRun(context.WithoutCancel(ctx), run); err != nil {
		p.logger.Warn("recording fetch run failed", "err", err)
	}

	p.logger.Info("fetch cycle complete",
		"fetched", result.Fetched,
		"duplicates", result.Duplicates,
		"errors", len(result.Errors),
		"elapsed", result.Timestamp.Sub(started),
	)
	return result
}

func (p *Pipeline) runCycle(
	ctx context.Context,
	since time.Time,
) (result model.FetchResult) {
	result.Errors = []string{}
	defer func() {
		result.Timestamp = p.now().UTC()
	}()

	mbox, err := p.connector.Connect(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("connection failed: %v", err))
		return result
	}
	defer func() {
		if err := mbox.Close(); err != nil {
			p.logger.Debug("closing mailbox", "err", err)
		}
	}()

	refs, err := p.locator.Locate(ctx, mbox, since)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("locating messages: %v", err))
		if len(refs) == 0 {
			return result
		}
	}
	p.logger.Debug("located messages", "count", len(refs), "since", since)

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("cycle interrupted: %v", err))
			break
		}

		raw, err := mbox.FetchRaw(ctx, ref)
		if err != nil {
			p.logger.Warn("fetch failed", "ref", ref, "err", err)
			if !source.IsFetchError(err) {
				err = &source.FetchError{Ref: ref.String(), Err: err}
			}
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		msg, err := p.normalize(raw)
		if err != nil {
			p.logger.Warn("normalize failed", "ref", ref, "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("normalize %s: %v", ref, err))
			continue
		}

		isNew, err := p.store.Save(ctx, msg)
		if err != nil {
			p.logger.Error("save failed", "id", msg.ID, "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("save %s: %v", msg.ID, err))
			continue
		}
		if isNew {
			result.Fetched++
		} else {
			result.Duplicates++
		}
	}

	return result
}

// normalize converts a panic in the normalizer into an error so one bad
// message cannot end the cycle.
func (p *Pipeline) normalize(raw []byte) (msg model.NormalizedMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.normalizer.Normalize(raw, p.now().UTC())
}
