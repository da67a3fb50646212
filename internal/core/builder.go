package core

import (
	"titlebot/config"
	"titlebot/internal/metrics"
	"titlebot/internal/session"
	"titlebot/internal/title"
	"titlebot/internal/transport"
	"titlebot/tunnel"
	"titlebot/util"
)

// Build assembles the relay from a normalized, validated configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	return &RelayMode{
		Dialer:   buildDialer(cfg, logger),
		Resolver: title.NewHTTPResolver(cfg.FetchTimeout),
		Session: session.Config{
			Server:  cfg.Server,
			Nick:    cfg.Nick,
			User:    cfg.User,
			Name:    cfg.Name,
			Channel: cfg.Channel,
		},
		Attempts:    cfg.ConnectAttempts,
		MaxBackoff:  config.DefaultMaxConnectBackoff,
		Concurrency: cfg.FetchConcurrency,
		Logger:      logger,
		Metrics:     metrics.New(),
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnectTimeout,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.ConnectTimeout}
}
