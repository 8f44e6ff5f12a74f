package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/nhle/contextcatcher/internal/model"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Runner executes one fetch cycle.
type Runner interface {
	RunCycle(ctx context.Context) model.FetchResult
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) model.FetchResult

// RunCycle implements Runner.
func (f RunnerFunc) RunCycle(ctx context.Context) model.FetchResult {
	return f(ctx)
}

// Poller runs fetch cycles on a cron schedule. A tick that fires while a
// cycle is still running is skipped, so cycles never overlap.
type Poller struct {
	cron     *cron.Cron
	runner   Runner
	timeout  time.Duration
	logger   *log.Logger
	onResult func(model.FetchResult)

	mu      gosync.Mutex
	running bool
}

// NewPoller schedules runner on the cron expression spec. Each cycle is
// bounded by timeout; onResult, when set, receives every cycle's result.
func NewPoller(
	runner Runner,
	spec string,
	timeout time.Duration,
	logger *log.Logger,
	onResult func(model.FetchResult),
) (*Poller, error) {
	if logger == nil {
		logger = log.Default()
	}

	p := &Poller{
		runner:   runner,
		timeout:  timeout,
		logger:   logger,
		onResult: onResult,
	}

	cl := cronLogger{logger: logger}
	p.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := p.cron.AddFunc(spec, p.tick); err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}

	return p, nil
}

// Start begins scheduling. It is a no-op when already running.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.cron.Start()
}

// Stop halts scheduling and waits for a running cycle to finish or ctx to
// expire.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	done := p.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		p.logger.Warn("poller stop timed out with a cycle in flight")
	}
}

// Next reports when the next cycle is scheduled.
func (p *Poller) Next() time.Time {
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (p *Poller) tick() {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result := p.runner.RunCycle(ctx)
	if p.onResult != nil {
		p.onResult(result)
	}
}

// cronLogger routes cron's internal logging through the app logger.
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
