package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"titlebot/tunnel"
	"titlebot/util"
)

// SSHDialer reaches the chat server through an SSH bastion.  The
// tunnel comes up on the first Dial and goes down on Close.
type SSHDialer struct {
	tunnel *tunnel.SSHTunnel
	config *tunnel.SSHConfig
	logger *util.Logger

	mu sync.Mutex
	up bool
}

// NewSSHDialer returns a dialer that forwards through cfg's gateway.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		config: cfg,
		logger: logger,
	}
}

func (d *SSHDialer) ensureTunnel(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.up {
		return nil
	}
	d.logger.Verbose("opening SSH tunnel via %s@%s:%d",
		d.config.User, d.config.Host, d.config.Port)
	if err := d.tunnel.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}
	d.up = true
	return nil
}

// Dial opens address on the far side of the bastion.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.ensureTunnel(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the SSH session if one was opened.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.up {
		return nil
	}
	d.up = false
	return d.tunnel.Close()
}
