// Package tunnel carries the chat connection through an SSH gateway
// for servers that are only reachable from a bastion host.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel through which TCP connections
// can be forwarded.
type Tunnel interface {
	Connect(ctx context.Context) error
	Dial(ctx context.Context, network, address string) (net.Conn, error)
	Close() error
	IsAlive() bool
}

var _ Tunnel = (*SSHTunnel)(nil)
