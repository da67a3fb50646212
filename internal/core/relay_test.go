package core

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	tberr "titlebot/internal/errors"
	"titlebot/internal/metrics"
	"titlebot/internal/session"
	"titlebot/internal/title"
	"titlebot/internal/transport"
	"titlebot/util"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ── fakes ────────────────────────────────────────────────────────────

// fakeResolver answers from a fixed table.  Links missing from titles
// fail with "no title found".
type fakeResolver struct {
	titles map[string]string
	delays map[string]time.Duration

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func (f *fakeResolver) Resolve(ctx context.Context, link string) title.Result {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	d := f.delays[link]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return title.Result{URL: link, Err: ctx.Err()}
		}
	}
	t, ok := f.titles[link]
	if !ok {
		return title.Result{URL: link, Err: tberr.WrapResolve("extract", link, tberr.ErrNoTitle)}
	}
	return title.Result{URL: link, Title: t}
}

// connDialer hands out a prepared connection.
type connDialer struct{ conn net.Conn }

func (d *connDialer) Dial(context.Context, string, string) (net.Conn, error) { return d.conn, nil }
func (d *connDialer) Close() error                                          { return nil }

// flakyDialer fails the first dial and then behaves like TCPDialer.
type flakyDialer struct {
	transport.TCPDialer
	calls int
}

func (d *flakyDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls++
	if d.calls == 1 {
		return nil, errors.New("connection refused")
	}
	return d.TCPDialer.Dial(ctx, network, address)
}

// failingWrites lets the first n writes through and fails the rest.
type failingWrites struct {
	net.Conn
	n int
}

func (c *failingWrites) Write(p []byte) (int, error) {
	if c.n == 0 {
		return 0, errors.New("broken pipe")
	}
	c.n--
	return c.Conn.Write(p)
}

// ircServer is the server side of one test connection.
type ircServer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().String()
}

func accept(t *testing.T, ln net.Listener) *ircServer {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck
	return newIRCServer(t, conn)
}

func newIRCServer(t *testing.T, conn net.Conn) *ircServer {
	return &ircServer{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (s *ircServer) expect(want string) {
	s.t.Helper()
	got, err := s.r.ReadString('\n')
	if err != nil {
		s.t.Fatalf("reading frame (want %q): %v", want, err)
	}
	if got != want {
		s.t.Fatalf("frame = %q, want %q", got, want)
	}
}

func (s *ircServer) expectRegistration() {
	s.t.Helper()
	s.expect("NICK tb\r\n")
	s.expect("USER tbuser 0 * :Title Bot\r\n")
	s.expect("JOIN #foo\r\n")
}

func (s *ircServer) send(line string) {
	s.t.Helper()
	if _, err := io.WriteString(s.conn, line); err != nil {
		s.t.Fatalf("send %q: %v", line, err)
	}
}

func newRelay(addr string, res title.Resolver, out io.Writer) *RelayMode {
	return &RelayMode{
		Dialer:   &transport.TCPDialer{Timeout: 2 * time.Second},
		Resolver: res,
		Session: session.Config{
			Server:  addr,
			Nick:    "tb",
			User:    "tbuser",
			Name:    "Title Bot",
			Channel: "foo",
		},
		Attempts:    1,
		Concurrency: 1,
		Logger:      util.NewLogger(0),
		Metrics:     metrics.New(),
		Stdout:      out,
	}
}

func start(ctx context.Context, m *RelayMode) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// ── tests ────────────────────────────────────────────────────────────

// TestRelay_TitleReply verifies registration order and a single title
// posted back for a single link.
func TestRelay_TitleReply(t *testing.T) {
	ln, addr := listen(t)
	out := &bytes.Buffer{}
	res := &fakeResolver{titles: map[string]string{"https://example.com/page": "Example Page"}}
	m := newRelay(addr, res, out)
	done := start(context.Background(), m)

	srv := accept(t, ln)
	srv.expectRegistration()
	srv.send(":alice!a@h PRIVMSG #foo :look https://example.com/page\r\n")
	srv.expect("PRIVMSG #foo :Example Page\r\n")
	srv.conn.Close()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	transcript := out.String()
	for _, want := range []string{
		"<< NICK tb\n",
		">> :alice!a@h PRIVMSG #foo :look https://example.com/page\n",
		"<< PRIVMSG #foo :Example Page\n",
	} {
		if !strings.Contains(transcript, want) {
			t.Errorf("transcript missing %q:\n%s", want, transcript)
		}
	}
	s := m.Metrics.Snapshot()
	if s.ChannelMessages != 1 || s.LinksSeen != 1 || s.TitlesResolved != 1 {
		t.Errorf("metrics = %+v", s)
	}
}

// TestRelay_FailedLinkDoesNotStopOthers verifies that a link without a
// title is reported locally and the next link is still answered.
func TestRelay_FailedLinkDoesNotStopOthers(t *testing.T) {
	ln, addr := listen(t)
	out := &bytes.Buffer{}
	res := &fakeResolver{titles: map[string]string{"https://b.test/": "B"}}
	done := start(context.Background(), newRelay(addr, res, out))

	srv := accept(t, ln)
	srv.expectRegistration()
	srv.send(":u!u@h PRIVMSG #foo :https://a.test/ and https://b.test/\r\n")
	srv.send("PING :irc.test\r\n")
	srv.expect("PRIVMSG #foo :B\r\n")
	srv.expect("PONG :irc.test\r\n")
	srv.conn.Close()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Count(out.String(), "error: no title found on url https://a.test/\n"); got != 1 {
		t.Errorf("error lines = %d, transcript:\n%s", got, out.String())
	}
}

// TestRelay_IgnoresOtherTraffic verifies that only channel messages
// for the joined channel are scanned.
func TestRelay_IgnoresOtherTraffic(t *testing.T) {
	ln, addr := listen(t)
	res := &fakeResolver{titles: map[string]string{"https://x.test/": "X"}}
	done := start(context.Background(), newRelay(addr, res, io.Discard))

	srv := accept(t, ln)
	srv.expectRegistration()
	srv.send(":u!u@h PRIVMSG #bar :https://x.test/\r\n")
	srv.send(":u!u@h PRIVMSG tb :https://x.test/\r\n")
	srv.send(":srv 001 tb :Welcome https://x.test/\r\n")
	srv.send(":u!u@h PRIVMSG #foo :no links here\r\n")
	srv.send("PING :after\r\n")
	srv.expect("PONG :after\r\n")
	srv.conn.Close()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// TestRelay_RepliesInLinkOrder verifies that concurrent fetches are
// still posted in the order the links appeared.
func TestRelay_RepliesInLinkOrder(t *testing.T) {
	ln, addr := listen(t)
	res := &fakeResolver{
		titles: map[string]string{"https://1.test/": "one", "https://2.test/": "two", "https://3.test/": "three"},
		delays: map[string]time.Duration{"https://1.test/": 150 * time.Millisecond, "https://3.test/": 50 * time.Millisecond},
	}
	m := newRelay(addr, res, io.Discard)
	m.Concurrency = 3
	done := start(context.Background(), m)

	srv := accept(t, ln)
	srv.expectRegistration()
	srv.send(":u!u@h PRIVMSG #foo :https://1.test/ https://2.test/ https://3.test/\r\n")
	srv.expect("PRIVMSG #foo :one\r\n")
	srv.expect("PRIVMSG #foo :two\r\n")
	srv.expect("PRIVMSG #foo :three\r\n")
	srv.conn.Close()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.maxInFlight < 2 {
		t.Errorf("max in flight = %d, want concurrent fetches", res.maxInFlight)
	}
}

// TestRelay_SequentialByDefault verifies that a concurrency of one
// never has two fetches in flight.
func TestRelay_SequentialByDefault(t *testing.T) {
	ln, addr := listen(t)
	res := &fakeResolver{
		titles: map[string]string{"https://1.test/": "one", "https://2.test/": "two"},
		delays: map[string]time.Duration{"https://1.test/": 20 * time.Millisecond, "https://2.test/": 20 * time.Millisecond},
	}
	done := start(context.Background(), newRelay(addr, res, io.Discard))

	srv := accept(t, ln)
	srv.expectRegistration()
	srv.send(":u!u@h PRIVMSG #foo :https://1.test/ https://2.test/\r\n")
	srv.expect("PRIVMSG #foo :one\r\n")
	srv.expect("PRIVMSG #foo :two\r\n")
	srv.conn.Close()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.maxInFlight != 1 {
		t.Errorf("max in flight = %d, want 1", res.maxInFlight)
	}
}

// TestRelay_PartialLineBeforeEOF verifies that an unterminated final
// line is still handled.
func TestRelay_PartialLineBeforeEOF(t *testing.T) {
	ln, addr := listen(t)
	out := &bytes.Buffer{}
	done := start(context.Background(), newRelay(addr, &fakeResolver{}, out))

	srv := accept(t, ln)
	srv.expectRegistration()
	srv.send(":u!u@h NOTICE tb :bye")
	srv.conn.Close()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), ">> :u!u@h NOTICE tb :bye\n") {
		t.Errorf("partial line not echoed:\n%s", out.String())
	}
}

// TestRelay_DialFailureIsFatal verifies that a refused connection ends
// Run with a fatal dial error.
func TestRelay_DialFailureIsFatal(t *testing.T) {
	ln, addr := listen(t)
	ln.Close()

	err := newRelay(addr, &fakeResolver{}, io.Discard).Run(context.Background())
	var ne *tberr.NetworkError
	if !tberr.As(err, &ne) || ne.Op != "dial" {
		t.Fatalf("err = %v, want dial NetworkError", err)
	}
	if !tberr.IsFatal(err) {
		t.Error("dial failure should be fatal")
	}
}

// TestRelay_ConnectRetry verifies that extra connect attempts recover
// from a failed first dial.
func TestRelay_ConnectRetry(t *testing.T) {
	ln, addr := listen(t)
	m := newRelay(addr, &fakeResolver{}, io.Discard)
	d := &flakyDialer{TCPDialer: transport.TCPDialer{Timeout: 2 * time.Second}}
	m.Dialer = d
	m.Attempts = 2
	m.MaxBackoff = 2 * time.Second
	done := start(context.Background(), m)

	srv := accept(t, ln)
	srv.expectRegistration()
	srv.conn.Close()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.calls != 2 {
		t.Errorf("dial calls = %d, want 2", d.calls)
	}
}

// TestRelay_RegistrationFailureIsFatal verifies that a write failure
// during registration ends Run with an error.
func TestRelay_RegistrationFailureIsFatal(t *testing.T) {
	client, server := net.Pipe()
	server.Close()
	defer client.Close()

	m := newRelay("irc.test:6667", &fakeResolver{}, io.Discard)
	m.Dialer = &connDialer{conn: client}

	err := m.Run(context.Background())
	var ne *tberr.NetworkError
	if !tberr.As(err, &ne) || ne.Op != "register" {
		t.Fatalf("err = %v, want register NetworkError", err)
	}
	if !tberr.IsFatal(err) {
		t.Error("registration failure should be fatal")
	}
}

// TestRelay_WriteFailureIsNotFatal verifies that a failed reply is
// reported and the loop keeps reading.
func TestRelay_WriteFailureIsNotFatal(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	server.SetDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck

	out := &bytes.Buffer{}
	m := newRelay("irc.test:6667", &fakeResolver{}, out)
	m.Dialer = &connDialer{conn: &failingWrites{Conn: client, n: 3}}
	done := start(context.Background(), m)

	srv := newIRCServer(t, server)
	srv.expectRegistration()
	srv.send("PING :one\r\n")
	srv.send("PING :two\r\n")
	server.Close()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Count(out.String(), "error: write irc.test:6667"); got != 2 {
		t.Errorf("write errors reported = %d, transcript:\n%s", got, out.String())
	}
	if got := m.Metrics.Snapshot().WriteFailures; got != 2 {
		t.Errorf("write failures = %d, want 2", got)
	}
}

// TestRelay_ContextCancel verifies that cancelling the context closes
// the connection and Run returns cleanly.
func TestRelay_ContextCancel(t *testing.T) {
	ln, addr := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(ctx, newRelay(addr, &fakeResolver{}, io.Discard))

	srv := accept(t, ln)
	srv.expectRegistration()
	cancel()

	if err := wait(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
