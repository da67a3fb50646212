package config

// loader.go - configuration loading from the settings file and from
// environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Settings file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML settings file at path onto cfg.  Keys
// absent from the file leave cfg untouched.  When optional is true a
// missing file is not an error.
func LoadFile(path string, cfg *Config, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading settings %s: %w", path, err)
	}
	return Decode(data, cfg)
}

// Decode parses YAML settings onto cfg.  Unknown keys are rejected so
// that typos surface at startup.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty file
		}
		return fmt.Errorf("parsing settings: %w", err)
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TITLEBOT_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TITLEBOT_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("TITLEBOT_NICK"); v != "" {
		cfg.Nick = v
	}
	if v := os.Getenv("TITLEBOT_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("TITLEBOT_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("TITLEBOT_CHANNEL"); v != "" {
		cfg.Channel = v
	}

	// Fetching
	if v := envDuration("TITLEBOT_FETCH_TIMEOUT"); v > 0 {
		cfg.FetchTimeout = v
	}
	if v := envInt("TITLEBOT_FETCH_CONCURRENCY"); v > 0 {
		cfg.FetchConcurrency = v
	}

	// Connection
	if v := envInt("TITLEBOT_CONNECT_ATTEMPTS"); v > 0 {
		cfg.ConnectAttempts = v
	}
	if v := envDuration("TITLEBOT_CONNECT_TIMEOUT"); v > 0 {
		cfg.ConnectTimeout = v
	}

	// SSH tunnel
	if v := os.Getenv("TITLEBOT_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("TITLEBOT_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("TITLEBOT_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("TITLEBOT_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("TITLEBOT_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("TITLEBOT_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("TITLEBOT_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

// envDuration accepts Go duration syntax ("1500ms", "10s") or a bare
// number of seconds.
func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
