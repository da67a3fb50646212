// Package session represents one chat server connection from the
// moment it is dialed until the read side fails.
//
// A Session owns the connection exclusively.  Reads and writes go
// through ReadLine and Send, which are meant to be called from a single
// goroutine, so there is never more than one read and one write in
// flight.
package session

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/google/uuid"

	tberr "titlebot/internal/errors"
	"titlebot/internal/metrics"
	"titlebot/util"
)

// Config is the immutable identity of a session.
type Config struct {
	Server  string
	Nick    string
	User    string
	Name    string
	Channel string // without the leading '#'
}

// Session binds a live connection to its configuration and to the
// console transcript.
type Session struct {
	ID      string
	Conn    net.Conn
	Config  Config
	Stdout  io.Writer // transcript: ">>" received, "<<" sent, "error:" failures
	Logger  *util.Logger
	Metrics *metrics.Collector

	reader *bufio.Reader
}

// New creates a Session over conn.  cfg is copied.
func New(conn net.Conn, cfg Config, stdout io.Writer, logger *util.Logger, m *metrics.Collector) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Conn:    conn,
		Config:  cfg,
		Stdout:  stdout,
		Logger:  logger,
		Metrics: m,
		reader:  bufio.NewReader(conn),
	}
}

// ReadLine blocks for the next line from the server, terminator
// included.  A final unterminated line is returned before io.EOF.
func (s *Session) ReadLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if line == "" && err != nil {
		return "", err
	}
	s.Metrics.LineRead()
	s.echo(">> ", line)
	return line, nil
}

// Send writes one complete frame.  The frame must already carry its
// terminator.
func (s *Session) Send(frame string) error {
	if _, err := io.WriteString(s.Conn, frame); err != nil {
		return tberr.Wrap("write", s.Config.Server, err)
	}
	s.Metrics.FrameSent()
	s.echo("<< ", frame)
	return nil
}

// Report prints a failure to the transcript.
func (s *Session) Report(err error) {
	fmt.Fprintf(s.Stdout, "error: %v\n", err)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.Conn.Close()
}

func (s *Session) echo(prefix, text string) {
	fmt.Fprintf(s.Stdout, "%s%s\n", prefix, strings.TrimRight(text, "\r\n"))
}
