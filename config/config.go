// Package config defines the runtime configuration for titlebot and
// provides helpers for parsing and validating it.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	tberr "titlebot/internal/errors"
)

// Config holds every tuneable for a single titlebot session.  It is
// filled in before the session starts and never modified afterwards.
type Config struct {
	// ── Identity ─────────────────────────────────────────────────────
	Server  string `yaml:"server"`  // host:port
	Nick    string `yaml:"nick"`    //
	User    string `yaml:"user"`    //
	Name    string `yaml:"name"`    // display ("real") name
	Channel string `yaml:"channel"` // without the leading '#'

	// ── Title fetching ───────────────────────────────────────────────
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`     // 0 = unbounded
	FetchConcurrency int           `yaml:"fetch_concurrency"` // 1 = strictly sequential

	// ── Connection ───────────────────────────────────────────────────
	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string `yaml:"tunnel"` // raw user@host[:port]
	TunnelEnabled  bool   `yaml:"-"`
	TunnelUser     string `yaml:"-"`
	TunnelHost     string `yaml:"-"`
	TunnelPort     int    `yaml:"-"`
	SSHKeyPath     string `yaml:"ssh_key"`
	SSHPassword    bool   `yaml:"ssh_password"` // true → prompt interactively
	UseSSHAgent    bool   `yaml:"ssh_agent"`
	StrictHostKey  bool   `yaml:"strict_hostkey"`
	KnownHostsPath string `yaml:"known_hosts"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int `yaml:"verbose"`
}

// Normalize trims whitespace, strips a leading '#' from the channel,
// fills unset numeric fields with defaults and expands the tunnel spec.
func (c *Config) Normalize() error {
	c.Server = strings.TrimSpace(c.Server)
	c.Nick = strings.TrimSpace(c.Nick)
	c.User = strings.TrimSpace(c.User)
	c.Channel = strings.TrimPrefix(strings.TrimSpace(c.Channel), "#")

	if c.FetchConcurrency == 0 {
		c.FetchConcurrency = DefaultFetchConcurrency
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = DefaultConnectAttempts
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnTimeout
	}

	if c.TunnelSpec != "" {
		user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
		if err != nil {
			return &tberr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
		}
		c.TunnelEnabled = true
		c.TunnelUser = user
		c.TunnelHost = host
		c.TunnelPort = port
	}
	return nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that every required setting is present and that the
// values are usable.  The first problem found is returned as a
// *errors.ConfigError.
func (c *Config) Validate() error {
	required := []struct {
		field, value, hint string
	}{
		{"server", c.Server, "set server: host:port in the settings file or pass --server"},
		{"nick", c.Nick, "pass --nick or set TITLEBOT_NICK"},
		{"user", c.User, "pass --user or set TITLEBOT_USER"},
		{"name", c.Name, "pass --name or set TITLEBOT_NAME"},
		{"channel", c.Channel, "pass --channel without the leading #"},
	}
	for _, r := range required {
		if r.value == "" {
			return &tberr.ConfigError{Field: r.field, Message: "is required", Hint: r.hint}
		}
	}

	host, port, err := net.SplitHostPort(c.Server)
	if err != nil || host == "" || port == "" {
		return &tberr.ConfigError{
			Field:   "server",
			Value:   c.Server,
			Message: "must be host:port",
			Hint:    "e.g. irc.libera.chat:6667",
		}
	}
	if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		return &tberr.ConfigError{Field: "server", Value: c.Server, Message: "port out of range 1-65535"}
	}

	if strings.ContainsAny(c.Nick, " \r\n") {
		return &tberr.ConfigError{Field: "nick", Value: c.Nick, Message: "must not contain spaces or line breaks"}
	}
	if strings.ContainsAny(c.User, " \r\n") {
		return &tberr.ConfigError{Field: "user", Value: c.User, Message: "must not contain spaces or line breaks"}
	}
	if strings.ContainsAny(c.Name, "\r\n") {
		return &tberr.ConfigError{Field: "name", Value: c.Name, Message: "must not contain line breaks"}
	}
	if strings.ContainsAny(c.Channel, " ,\a\r\n") {
		return &tberr.ConfigError{Field: "channel", Value: c.Channel, Message: "must not contain spaces, commas or control characters"}
	}

	if c.FetchConcurrency < 1 {
		return &tberr.ConfigError{Field: "fetch-concurrency", Value: c.FetchConcurrency, Message: "must be at least 1"}
	}
	if c.FetchTimeout < 0 {
		return &tberr.ConfigError{Field: "fetch-timeout", Value: c.FetchTimeout, Message: "must not be negative", Hint: "use 0 to disable the timeout"}
	}
	if c.ConnectAttempts < 1 {
		return &tberr.ConfigError{Field: "connect-attempts", Value: c.ConnectAttempts, Message: "must be at least 1"}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &tberr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	return nil
}
