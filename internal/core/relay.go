package core

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	tberr "titlebot/internal/errors"
	"titlebot/internal/irc"
	"titlebot/internal/linkscan"
	"titlebot/internal/metrics"
	"titlebot/internal/retry"
	"titlebot/internal/session"
	"titlebot/internal/title"
	"titlebot/internal/transport"
	"titlebot/util"
)

// RelayMode connects to the chat server, joins one channel and answers
// every link posted there with the title of the page it points to.
type RelayMode struct {
	Dialer   transport.Dialer
	Resolver title.Resolver
	Session  session.Config

	// Attempts is the number of connection tries (minimum 1).
	Attempts   int
	MaxBackoff time.Duration
	// Concurrency bounds the fetches in flight for one message.  1
	// resolves links strictly one after another.
	Concurrency int

	Logger  *util.Logger
	Metrics *metrics.Collector

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *RelayMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *RelayMode) concurrency() int {
	if m.Concurrency < 1 {
		return 1
	}
	return m.Concurrency
}

// Run connects, registers and then serves the connection until the
// server closes it, a read fails or ctx is cancelled.  Only connection
// and registration failures are returned; once registered, Run returns
// nil.
func (m *RelayMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	conn, err := m.connect(ctx)
	if err != nil {
		return err
	}

	sess := session.New(conn, m.Session, m.stdout(), m.Logger, m.Metrics)
	defer sess.Close()
	m.Logger.Verbose("connected to %s (session %s)", m.Session.Server, sess.ID)

	if err := m.register(sess); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { sess.Close() })
	defer stop()

	m.serve(ctx, sess)
	m.Logger.Verbose("session %s closed: %s", sess.ID, m.Metrics.JSON())
	return nil
}

// ── connection ───────────────────────────────────────────────────────

func (m *RelayMode) connect(ctx context.Context) (net.Conn, error) {
	addr := m.Session.Server
	attempts := m.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var conn net.Conn
	err := retry.ConnectBackoff(attempts, m.MaxBackoff).Do(ctx, func(attempt int) error {
		if err := ctx.Err(); err != nil {
			return retry.Permanent(err)
		}
		if attempt > 1 {
			m.Logger.Info("reconnecting to %s (attempt %d/%d)", addr, attempt, attempts)
		}
		c, err := m.Dialer.Dial(ctx, "tcp", addr)
		if err != nil {
			var se *tberr.SSHError
			if tberr.As(err, &se) {
				return retry.Permanent(err)
			}
			m.Logger.Debug("dial %s: %v", addr, err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		var se *tberr.SSHError
		if tberr.As(err, &se) {
			return nil, err
		}
		return nil, tberr.Wrap("dial", addr, err)
	}
	return conn, nil
}

// register sends NICK, USER and JOIN in that order.
func (m *RelayMode) register(sess *session.Session) error {
	frames := []string{
		irc.Nick(m.Session.Nick),
		irc.User(m.Session.User, m.Session.Name),
		irc.Join(m.Session.Channel),
	}
	for _, f := range frames {
		if err := sess.Send(f); err != nil {
			return tberr.Wrap("register", m.Session.Server, err)
		}
	}
	return nil
}

// ── session loop ─────────────────────────────────────────────────────

func (m *RelayMode) serve(ctx context.Context, sess *session.Session) {
	for {
		line, err := sess.ReadLine()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				m.Logger.Verbose("read from %s: %v", m.Session.Server, err)
			}
			return
		}
		m.handleLine(ctx, sess, line)
	}
}

func (m *RelayMode) handleLine(ctx context.Context, sess *session.Session, line string) {
	if irc.IsKeepaliveRequest(line) {
		if err := sess.Send(irc.KeepaliveReply(line)); err != nil {
			m.writeFailed(sess, err)
			return
		}
		m.Metrics.KeepaliveAnswered()
		return
	}

	body, ok := irc.ChannelBody(line, m.Session.Channel)
	if !ok {
		return
	}
	m.Metrics.ChannelMessage()

	links := linkscan.Scan(body)
	if len(links) == 0 {
		return
	}
	m.Metrics.LinksSeen(len(links))
	m.Logger.Debug("found %d link(s) in message", len(links))

	m.resolveInOrder(ctx, links, func(r title.Result) {
		if !r.OK() {
			m.Metrics.ResolveFailed(r.Err.Error())
			m.Logger.Verbose("resolve %s: %v", r.URL, r.Err)
			sess.Report(r.Err)
			return
		}
		m.Metrics.TitleResolved()
		if err := sess.Send(irc.FormatChannelMessage(m.Session.Channel, r.Title)); err != nil {
			m.writeFailed(sess, err)
		}
	})
}

// resolveInOrder resolves links with up to m.Concurrency fetches in
// flight and hands each result to deliver in the order the links
// appeared.  deliver runs on the calling goroutine.  Once ctx is done
// the remaining results are drained without being delivered.
func (m *RelayMode) resolveInOrder(ctx context.Context, links []string, deliver func(title.Result)) {
	results := make([]chan title.Result, len(links))
	for i := range results {
		results[i] = make(chan title.Result, 1)
	}

	var g errgroup.Group
	g.SetLimit(m.concurrency())

	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, link := range links {
			i, link := i, link
			g.Go(func() error {
				results[i] <- m.Resolver.Resolve(ctx, link)
				return nil
			})
		}
	}()

	for _, ch := range results {
		r := <-ch
		if ctx.Err() != nil {
			continue
		}
		deliver(r)
	}
	<-launched
	g.Wait() //nolint:errcheck
}

func (m *RelayMode) writeFailed(sess *session.Session, err error) {
	m.Metrics.WriteFailed(err.Error())
	m.Logger.Warn("%v", err)
	sess.Report(err)
}
