// Package metrics provides lightweight, lock-free counters for tracking
// what a titlebot session has done.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one session.
type Collector struct {
	linesRead       atomic.Int64
	framesSent      atomic.Int64
	keepalives      atomic.Int64
	channelMessages atomic.Int64
	linksSeen       atomic.Int64
	titlesResolved  atomic.Int64
	resolveFailures atomic.Int64
	writeFailures   atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Protocol traffic ─────────────────────────────────────────────────

// LineRead records one line received from the server.
func (c *Collector) LineRead() {
	if c == nil {
		return
	}
	c.linesRead.Add(1)
}

// FrameSent records one frame written to the server.
func (c *Collector) FrameSent() {
	if c == nil {
		return
	}
	c.framesSent.Add(1)
}

// KeepaliveAnswered records a PONG sent in reply to a PING.
func (c *Collector) KeepaliveAnswered() {
	if c == nil {
		return
	}
	c.keepalives.Add(1)
}

// ChannelMessage records a line addressed to the joined channel.
func (c *Collector) ChannelMessage() {
	if c == nil {
		return
	}
	c.channelMessages.Add(1)
}

// ── Title pipeline ───────────────────────────────────────────────────

// LinksSeen records n links found in a channel message.
func (c *Collector) LinksSeen(n int) {
	if c == nil {
		return
	}
	c.linksSeen.Add(int64(n))
}

// TitleResolved records a successful title lookup.
func (c *Collector) TitleResolved() {
	if c == nil {
		return
	}
	c.titlesResolved.Add(1)
}

// ResolveFailed records a failed title lookup.
func (c *Collector) ResolveFailed(msg string) {
	if c == nil {
		return
	}
	c.resolveFailures.Add(1)
	c.recordError(msg)
}

// WriteFailed records a failed write on the server connection.
func (c *Collector) WriteFailed(msg string) {
	if c == nil {
		return
	}
	c.writeFailures.Add(1)
	c.recordError(msg)
}

func (c *Collector) recordError(msg string) {
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	LinesRead        int64  `json:"lines_read"`
	FramesSent       int64  `json:"frames_sent"`
	Keepalives       int64  `json:"keepalives"`
	ChannelMessages  int64  `json:"channel_messages"`
	LinksSeen        int64  `json:"links_seen"`
	TitlesResolved   int64  `json:"titles_resolved"`
	ResolveFailures  int64  `json:"resolve_failures"`
	WriteFailures    int64  `json:"write_failures"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		LinesRead:       c.linesRead.Load(),
		FramesSent:      c.framesSent.Load(),
		Keepalives:      c.keepalives.Load(),
		ChannelMessages: c.channelMessages.Load(),
		LinksSeen:       c.linksSeen.Load(),
		TitlesResolved:  c.titlesResolved.Load(),
		ResolveFailures: c.resolveFailures.Load(),
		WriteFailures:   c.writeFailures.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as a compact JSON string.
func (c *Collector) JSON() string {
	data, _ := json.Marshal(c.Snapshot())
	return string(data)
}
