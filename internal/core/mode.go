// Package core is the orchestration layer.  It composes a transport,
// a title resolver and a chat session into the running bot and
// provides a builder that assembles it from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  core  →  cmd (CLI)
//
// The irc, linkscan and title packages sit beside session and hold no
// connection state of their own.
package core

import "context"

// Mode is a complete operational mode of titlebot.  It owns its full
// lifecycle from connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
