// Package cmd wires up the CLI flags and dispatches to the relay core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"titlebot/config"
	"titlebot/internal/core"
	"titlebot/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X titlebot/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

type options struct {
	configPath  string
	dryRun      bool
	showVersion bool
	showHelp    bool
}

// Execute parses args, assembles the configuration and runs the bot
// until the server connection ends or ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	cfg, opts, fs, err := parse(args)
	if err != nil {
		return err
	}

	if opts.showHelp {
		printUsage(os.Stderr, fs)
		return nil
	}
	if opts.showVersion {
		fmt.Printf("titlebot %s\n", version)
		return nil
	}

	if err := cfg.Normalize(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	defer logger.Sync() //nolint:errcheck

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	if opts.dryRun {
		fmt.Printf("titlebot: would connect to %s as %s and join #%s\n",
			cfg.Server, cfg.Nick, cfg.Channel)
		return nil
	}

	logger.Verbose("starting: server=%s nick=%s channel=#%s concurrency=%d",
		cfg.Server, cfg.Nick, cfg.Channel, cfg.FetchConcurrency)
	return mode.Run(ctx)
}

// parse layers defaults, the settings file, the environment and the
// flags that were actually given, in that order of precedence.
func parse(args []string) (*config.Config, *options, *flag.FlagSet, error) {
	cli := &config.Config{}
	opts := &options{}
	fs := flag.NewFlagSet("titlebot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.configPath, "config", config.DefaultSettingsFile, "Settings file (YAML)")

	// ── identity ─────────────────────────────────────────────────
	fs.StringVarP(&cli.Server, "server", "s", "", "Chat server host:port")
	fs.StringVarP(&cli.Nick, "nick", "n", "", "Nickname")
	fs.StringVarP(&cli.User, "user", "u", "", "User name")
	fs.StringVar(&cli.Name, "name", "", "Display (real) name")
	fs.StringVarP(&cli.Channel, "channel", "c", "", "Channel to join, without the leading #")

	// ── fetching ─────────────────────────────────────────────────
	fs.DurationVar(&cli.FetchTimeout, "fetch-timeout", config.DefaultFetchTimeout, "Per-page fetch timeout (0 = none)")
	fs.IntVar(&cli.FetchConcurrency, "fetch-concurrency", config.DefaultFetchConcurrency, "Pages fetched in parallel per message")

	// ── connection ───────────────────────────────────────────────
	fs.IntVar(&cli.ConnectAttempts, "connect-attempts", config.DefaultConnectAttempts, "Connection attempts before giving up")
	fs.DurationVar(&cli.ConnectTimeout, "connect-timeout", config.DefaultConnTimeout, "Timeout for a single connection attempt")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cli.TunnelSpec, "tunnel", "T", "", "Reach the server via SSH [user@]host[:port]")
	fs.StringVar(&cli.SSHKeyPath, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&cli.SSHPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&cli.UseSSHAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&cli.StrictHostKey, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&cli.KnownHostsPath, "known-hosts", "", "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cli.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	fs.BoolVar(&opts.dryRun, "dry-run", false, "Validate configuration and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, nil, fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}
	if opts.showHelp || opts.showVersion {
		return cli, opts, fs, nil
	}

	// ── layer sources ────────────────────────────────────────────
	cfg := &config.Config{}
	if err := config.LoadFile(opts.configPath, cfg, !fs.Changed("config")); err != nil {
		return nil, nil, nil, err
	}
	config.LoadFromEnv(cfg)
	applyFlags(fs, cli, cfg)
	return cfg, opts, fs, nil
}

// applyFlags copies every flag the user set from cli onto cfg.
func applyFlags(fs *flag.FlagSet, cli, cfg *config.Config) {
	overrides := map[string]func(){
		"server":            func() { cfg.Server = cli.Server },
		"nick":              func() { cfg.Nick = cli.Nick },
		"user":              func() { cfg.User = cli.User },
		"name":              func() { cfg.Name = cli.Name },
		"channel":           func() { cfg.Channel = cli.Channel },
		"fetch-timeout":     func() { cfg.FetchTimeout = cli.FetchTimeout },
		"fetch-concurrency": func() { cfg.FetchConcurrency = cli.FetchConcurrency },
		"connect-attempts":  func() { cfg.ConnectAttempts = cli.ConnectAttempts },
		"connect-timeout":   func() { cfg.ConnectTimeout = cli.ConnectTimeout },
		"tunnel":            func() { cfg.TunnelSpec = cli.TunnelSpec },
		"ssh-key":           func() { cfg.SSHKeyPath = cli.SSHKeyPath },
		"ssh-password":      func() { cfg.SSHPassword = cli.SSHPassword },
		"ssh-agent":         func() { cfg.UseSSHAgent = cli.UseSSHAgent },
		"strict-hostkey":    func() { cfg.StrictHostKey = cli.StrictHostKey },
		"known-hosts":       func() { cfg.KnownHostsPath = cli.KnownHostsPath },
		"verbose":           func() { cfg.Verbose = cli.Verbose },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `titlebot – channel link title relay v%s

Joins one chat channel and answers every link posted there with the
title of the page it points to.

Usage:
  titlebot [options]

Settings are read from %s (or --config), then TITLEBOT_*
environment variables, then flags.

Options:
`, version, config.DefaultSettingsFile)
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
  titlebot                                         Use Settings.yaml
  titlebot -s irc.libera.chat:6667 -n tb -u tb --name "Title Bot" -c mychan
  titlebot --fetch-timeout 10s --fetch-concurrency 4
  titlebot -T ops@bastion -s irc.internal:6667     Reach the server via SSH
`)
}
