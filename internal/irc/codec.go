// Package irc formats outgoing protocol frames and classifies incoming
// lines.  Every function is pure; nothing here touches a connection.
package irc

import (
	"strings"
)

// Terminator ends every frame written to the server, on every platform.
const Terminator = "\r\n"

const (
	pingMarker    = "PING"
	pongMarker    = "PONG"
	privmsgMarker = "PRIVMSG #"
)

// FormatCommand builds "VERB arg1 arg2...\r\n".
func FormatCommand(verb string, args ...string) string {
	var b strings.Builder
	b.WriteString(verb)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	b.WriteString(Terminator)
	return b.String()
}

// lineBreaks turns CR and LF inside a payload into spaces so that one
// frame is always exactly one protocol line.
var lineBreaks = strings.NewReplacer("\r", " ", "\n", " ")

// FormatChannelMessage builds "PRIVMSG #channel :text\r\n".
func FormatChannelMessage(channel, text string) string {
	return FormatCommand("PRIVMSG", "#"+channel, ":"+lineBreaks.Replace(text))
}

// Nick builds the nickname registration frame.
func Nick(nick string) string { return FormatCommand("NICK", nick) }

// User builds the user registration frame "USER <user> 0 * :<name>".
func User(user, name string) string {
	return FormatCommand("USER", user, "0", "*", ":"+name)
}

// Join builds "JOIN #channel".
func Join(channel string) string { return FormatCommand("JOIN", "#"+channel) }

// IsKeepaliveRequest reports whether line begins with PING.
func IsKeepaliveRequest(line string) bool {
	return strings.HasPrefix(line, pingMarker)
}

// KeepaliveReply turns a PING line into its PONG frame.  Only the
// leading marker is rewritten; the rest of the line is kept with
// trailing whitespace stripped.
func KeepaliveReply(line string) string {
	rest := strings.TrimPrefix(line, pingMarker)
	return pongMarker + strings.TrimRight(rest, " \t\r\n") + Terminator
}

// ChannelBody returns everything after the first "PRIVMSG #channel" in
// line.  Further occurrences of the marker belong to the body.  The
// boolean is false when the marker is absent.
func ChannelBody(line, channel string) (string, bool) {
	_, body, found := strings.Cut(line, privmsgMarker+channel)
	if !found {
		return "", false
	}
	return body, true
}
