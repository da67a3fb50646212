package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the settings file and environment variables.

const (
	// DefaultSettingsFile is read when --config is not given.
	DefaultSettingsFile = "Settings.yaml"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultFetchConcurrency resolves one link at a time.
	DefaultFetchConcurrency = 1

	// DefaultFetchTimeout of zero leaves fetches unbounded.
	DefaultFetchTimeout = 0 * time.Second

	// DefaultConnectAttempts makes a connect failure immediately fatal.
	DefaultConnectAttempts = 1

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultMaxConnectBackoff caps the wait between connect attempts.
	DefaultMaxConnectBackoff = 60 * time.Second
)
