package sync

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/contextcatcher/internal/model"
	"github.com/nhle/contextcatcher/internal/normalize"
	"github.com/nhle/contextcatcher/internal/source"
	"github.com/nhle/contextcatcher/internal/source/email"
	"github.com/nhle/contextcatcher/internal/store"
	"github.com/nhle/contextcatcher/tests/testutil"
)

var cycleStart = time.Date(2024, time.June, 3, 12, 0, 0, 0, time.UTC)

type fakeMailbox struct {
	raw      map[email.MessageRef][]byte
	fetchErr map[email.MessageRef]error
	closed   bool
}

func (f *fakeMailbox) Search(context.Context, email.Query) ([]email.MessageRef, error) {
	return nil, nil
}

func (f *fakeMailbox) ArrivalTime(context.Context, email.MessageRef) (time.Time, error) {
	return time.Time{}, nil
}

func (f *fakeMailbox) FetchRaw(_ context.Context, ref email.MessageRef) ([]byte, error) {
	if err := f.fetchErr[ref]; err != nil {
		return nil, err
	}
	return f.raw[ref], nil
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type fakeConnector struct {
	mbox  *fakeMailbox
	err   error
	calls int
}

func (f *fakeConnector) Connect(context.Context) (email.Mailbox, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.mbox, nil
}

type fakeLocator struct {
	refs  []email.MessageRef
	err   error
	since time.Time
}

func (f *fakeLocator) Locate(_ context.Context, _ email.Searcher, since time.Time) ([]email.MessageRef, error) {
	f.since = since
	return f.refs, f.err
}

type panickyNormalizer struct {
	Normalizer
	trigger string
}

func (p panickyNormalizer) Normalize(raw []byte, fetchedAt time.Time) (model.NormalizedMessage, error) {
	if strings.Contains(string(raw), p.trigger) {
		panic("boom")
	}
	return p.Normalizer.Normalize(raw, fetchedAt)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestPipeline(
	t *testing.T,
	c Connector,
	l Locator,
	n Normalizer,
) (*Pipeline, *store.SQLiteStore) {
	t.Helper()
	s := testutil.NewTestStore(t)
	p := NewPipeline(c, l, n, s, 24*time.Hour,
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return cycleStart }),
	)
	return p, s
}

func TestRunCycleGeneratedIdentityAndDuplicate(t *testing.T) {
	raw := testutil.RawEmail{
		From:    "alice@example.com",
		Subject: "Re: Weekly sync",
		Date:    cycleStart.Add(-time.Hour),
		Body:    "Agenda attached.",
	}.Bytes()

	mbox := &fakeMailbox{raw: map[email.MessageRef][]byte{7: raw}}
	conn := &fakeConnector{mbox: mbox}
	loc := &fakeLocator{refs: []email.MessageRef{7}}
	p, st := newTestPipeline(t, conn, loc, normalize.New(true))
	ctx := context.Background()

	first := p.RunCycle(ctx)
	assert.Equal(t, 1, first.Fetched)
	assert.Equal(t, 0, first.Duplicates)
	assert.Empty(t, first.Errors)
	assert.True(t, mbox.closed)
	assert.True(t, loc.since.Equal(cycleStart.Add(-24*time.Hour)))

	msgs, err := st.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0].ID, "generated-"))
	assert.True(t, strings.HasPrefix(msgs[0].ThreadID, "thread-"))

	// The thread id depends only on the cleaned subject.
	other, err := normalize.New(false).Normalize(testutil.RawEmail{
		Subject: "Weekly sync",
		Body:    "unrelated",
	}.Bytes(), cycleStart)
	require.NoError(t, err)
	assert.Equal(t, msgs[0].ThreadID, other.ThreadID)

	second := p.RunCycle(ctx)
	assert.Equal(t, 0, second.Fetched)
	assert.Equal(t, 1, second.Duplicates)
	assert.Empty(t, second.Errors)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MessageCount)
}

func TestRunCycleConnectionFailure(t *testing.T) {
	conn := &fakeConnector{err: &source.ConnectionError{
		Addr:     "imap.example.com:993",
		Attempts: 3,
		Err:      errors.New("auth failed"),
	}}
	p, st := newTestPipeline(t, conn, &fakeLocator{}, normalize.New(false))
	ctx := context.Background()

	res := p.RunCycle(ctx)
	assert.Zero(t, res.Fetched)
	assert.Zero(t, res.Duplicates)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "connection failed")
	assert.Equal(t, cycleStart, res.Timestamp)

	run, err := st.LastFetchRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, res.Errors, run.Errors)
}

func TestRunCycleCollectsPerItemFailures(t *testing.T) {
	good := func(id string) []byte {
		return testutil.RawEmail{MessageID: id, Subject: "ok", Body: "fine"}.Bytes()
	}

	mbox := &fakeMailbox{
		raw: map[email.MessageRef][]byte{
			1: good("<one@x>"),
			3: testutil.RawEmail{MessageID: "<bad@x>", Subject: "explode", Body: "x"}.Bytes(),
			4: good("<one@x>"),
			5: {},
			6: good("<six@x>"),
		},
		fetchErr: map[email.MessageRef]error{
			2: &source.FetchError{Ref: "uid 2", Err: errors.New("timeout")},
		},
	}
	loc := &fakeLocator{refs: []email.MessageRef{1, 2, 3, 4, 5, 6}}
	n := panickyNormalizer{Normalizer: normalize.New(false), trigger: "explode"}
	p, _ := newTestPipeline(t, &fakeConnector{mbox: mbox}, loc, n)

	res := p.RunCycle(context.Background())
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, "fetching uid 2: timeout", res.Errors[0])
	assert.Contains(t, res.Errors[1], "normalize uid 3: panic: boom")
	assert.Contains(t, res.Errors[2], "normalize uid 5: empty message")
}

func TestRunCycleLocatorError(t *testing.T) {
	loc := &fakeLocator{err: errors.New("search refused")}
	p, _ := newTestPipeline(t, &fakeConnector{mbox: &fakeMailbox{}}, loc, normalize.New(false))

	res := p.RunCycle(context.Background())
	assert.Zero(t, res.Fetched)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "search refused")
}

func TestRunCycleZeroMailIsNormal(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeConnector{mbox: &fakeMailbox{}}, &fakeLocator{}, normalize.New(false))

	res := p.RunCycle(context.Background())
	assert.Zero(t, res.Fetched)
	assert.Zero(t, res.Duplicates)
	assert.NotNil(t, res.Errors)
	assert.Empty(t, res.Errors)
}

func TestRunCycleStopsWhenContextDone(t *testing.T) {
	mbox := &fakeMailbox{raw: map[email.MessageRef][]byte{
		1: testutil.RawEmail{MessageID: "<a@x>", Body: "a"}.Bytes(),
	}}
	p, st := newTestPipeline(t, &fakeConnector{mbox: mbox},
		&fakeLocator{refs: []email.MessageRef{1}}, normalize.New(false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.RunCycle(ctx)
	assert.Zero(t, res.Fetched)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "cycle interrupted")

	run, err := st.LastFetchRun(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, run, "run is recorded after cancellation")
}

func TestRunCycleWithLookbackOverridesWindow(t *testing.T) {
	loc := &fakeLocator{}
	p, st := newTestPipeline(t, &fakeConnector{mbox: &fakeMailbox{}}, loc, normalize.New(false))

	res := p.RunCycleWithLookback(context.Background(), 2*time.Hour)
	assert.Empty(t, res.Errors)
	assert.True(t, loc.since.Equal(cycleStart.Add(-2*time.Hour)))

	run, err := st.LastFetchRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.StartedAt.Equal(cycleStart))
	assert.NotEmpty(t, run.ID)
}
