package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/commands"
	"github.com/emersion/go-imap/responses"

	"github.com/nhle/contextcatcher/internal/model"
	"github.com/nhle/contextcatcher/internal/source"
)

const (
	dialTimeout    = 30 * time.Second
	commandTimeout = 60 * time.Second
)

// imapConn is the subset of *client.Client used by a session.
type imapConn interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Execute(cmdr imap.Commander, h responses.Handler) (*imap.StatusResp, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

type dialFunc func(addr string, useTLS bool) (imapConn, error)

// Client opens authenticated IMAP sessions with retry and exponential
// backoff.
type Client struct {
	host        string
	port        int
	username    string
	password    string
	useTLS      bool
	mailbox     string
	maxRetries  int
	backoffBase float64

	dial   dialFunc
	sleep  func(ctx context.Context, d time.Duration) error
	logger *log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for retry and lookup diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func withDialer(dial dialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient creates a client from the mailbox and fetch configuration.
func NewClient(
	cfg model.EmailConfig,
	fetch model.FetchConfig,
	opts ...Option,
) *Client {
	c := &Client{
		host:        cfg.Host,
		port:        cfg.Port,
		username:    cfg.Username,
		password:    cfg.Password,
		useTLS:      cfg.UseSSL,
		mailbox:     cfg.Mailbox,
		maxRetries:  fetch.MaxRetries,
		backoffBase: fetch.RetryBackoffBase,
		dial:        dialIMAP,
		sleep:       sleepContext,
		logger:      log.Default(),
	}
	if c.mailbox == "" {
		c.mailbox = "INBOX"
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Backoff returns the delay before retrying after the given zero-based
// attempt: base^attempt seconds.
func (c *Client) Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(c.backoffBase, float64(attempt)) * float64(time.Second))
}

// Connect dials the server, logs in and selects the mailbox. Login and
// select form one attempt; failure of either consumes the attempt. After
// the last failed attempt a *source.ConnectionError wrapping the last
// cause is returned.
func (c *Client) Connect(ctx context.Context) (Mailbox, error) {
	addr := c.addr()

	var (
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempts++
		sess, err := c.connectOnce(addr)
		if err == nil {
			c.logger.Debug("imap session ready", "addr", addr, "mailbox", c.mailbox)
			return sess, nil
		}
		lastErr = err

		c.logger.Warn("imap connect attempt failed",
			"addr", addr,
			"attempt", attempt+1,
			"max", c.maxRetries,
			"err", err,
		)

		if attempt == c.maxRetries-1 {
			break
		}
		if err := c.sleep(ctx, c.Backoff(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	return nil, &source.ConnectionError{
		Addr:     addr,
		Attempts: attempts,
		Err:      lastErr,
	}
}

func (c *Client) connectOnce(addr string) (*Session, error) {
	conn, err := c.dial(addr, c.useTLS)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}

	if err := conn.Login(c.username, c.password); err != nil {
		safeLogout(conn)
		return nil, fmt.Errorf("imap auth: %w", err)
	}

	if _, err := conn.Select(c.mailbox, true); err != nil {
		safeLogout(conn)
		return nil, fmt.Errorf("imap select %s: %w", c.mailbox, err)
	}

	return &Session{conn: conn}, nil
}

func dialIMAP(addr string, useTLS bool) (imapConn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}

	var (
		cl  *client.Client
		err error
	)
	if useTLS {
		cl, err = client.DialWithDialerTLS(dialer, addr, nil)
	} else {
		cl, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, err
	}
	cl.Timeout = commandTimeout

	if !useTLS {
		ok, err := cl.SupportStartTLS()
		if err == nil && ok {
			host, _, _ := net.SplitHostPort(addr)
			if err := cl.StartTLS(&tls.Config{ServerName: host}); err != nil {
				safeLogout(cl)
				return nil, fmt.Errorf("starttls: %w", err)
			}
		}
	}

	return cl, nil
}

func safeLogout(conn imapConn) {
	_ = conn.Logout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Session is an authenticated IMAP connection with a mailbox selected.
// It is not safe for concurrent use.
type Session struct {
	conn imapConn
}

// Search runs a UID SEARCH for the query and returns matching references
// in server order (oldest first on conforming servers).
func (s *Session) Search(ctx context.Context, q Query) ([]MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &responses.Search{}
	status, err := s.conn.Execute(&commands.Uid{Cmd: newSearchCommand(q)}, res)
	if err == nil {
		err = status.Err()
	}
	if err != nil {
		return nil, &source.FetchError{Ref: "search", Err: err}
	}

	refs := make([]MessageRef, 0, len(res.Ids))
	for _, id := range res.Ids {
		refs = append(refs, MessageRef(id))
	}
	return refs, nil
}

// ArrivalTime returns the server-side INTERNALDATE of a message.
func (s *Session) ArrivalTime(
	ctx context.Context,
	ref MessageRef,
) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	msg, err := s.fetchOne(ref, []imap.FetchItem{imap.FetchInternalDate})
	if err != nil {
		return time.Time{}, &source.FetchError{Ref: ref.String(), Err: err}
	}
	if msg.InternalDate.IsZero() {
		return time.Time{}, &source.FetchError{
			Ref: ref.String(),
			Err: errors.New("server returned no INTERNALDATE"),
		}
	}
	return msg.InternalDate, nil
}

// FetchRaw returns the full message without setting the \Seen flag.
func (s *Session) FetchRaw(ctx context.Context, ref MessageRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &imap.BodySectionName{Peek: true}
	msg, err := s.fetchOne(ref, []imap.FetchItem{section.FetchItem()})
	if err != nil {
		return nil, &source.FetchError{Ref: ref.String(), Err: err}
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, &source.FetchError{
			Ref: ref.String(),
			Err: errors.New("server returned no body"),
		}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, &source.FetchError{Ref: ref.String(), Err: err}
	}
	return buf.Bytes(), nil
}

// Close logs out of the server.
func (s *Session) Close() error {
	return s.conn.Logout()
}

// fetchOne issues a UID FETCH for a single message and returns it.
// Unsolicited FETCH responses for other messages are ignored.
func (s *Session) fetchOne(
	ref MessageRef,
	items []imap.FetchItem,
) (*imap.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(ref))

	ch := make(chan *imap.Message, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.conn.UidFetch(seqset, items, ch)
	}()

	var found *imap.Message
	for msg := range ch {
		if found == nil && msg != nil && msg.Uid == uint32(ref) {
			found = msg
		}
	}

	if err := <-done; err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.New("message not found")
	}
	return found, nil
}
