package logging

import "strings"

// Sanitize makes a user-provided string (username, display name, remote
// address, chat text) safe to embed in a log line. Newlines and tabs become
// spaces and other control characters, including ESC, are removed so input
// cannot forge log entries or inject terminal sequences into the log view.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
		case r >= 0x80 && r < 0xa0:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
