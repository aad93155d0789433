package terminal

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wire-level introducers and terminators understood by the browser client.
// These bytes must not change: the client renderer matches them exactly.
const (
	commandIntroducer  = "\x1b]GRBBS;"
	commandTerminator  = '\x07'
	downloadIntroducer = "\x1b_GRBBS_DOWNLOAD;"
	downloadTerminator = "\x1b\\"
	modeIntroducer     = "\x1b[?"
)

// ErrMalformedControlSequence is wrapped by every MalformedSequenceError.
var ErrMalformedControlSequence = errors.New("malformed control sequence")

// RunKind classifies a contiguous slice of an outbound fragment.
type RunKind int

const (
	// RunText is plain text, subject to link-speed pacing.
	RunText RunKind = iota
	// RunModeToggle is a DEC private mode toggle (ESC [ ? n h|l) used to
	// show and hide client UI elements.
	RunModeToggle
	// RunCommand is a named client command (ESC ] GRBBS; ... BEL), e.g. LINE_EDIT.
	RunCommand
	// RunDownload is an out-of-band download trigger (ESC _ GRBBS_DOWNLOAD; ... ESC \).
	RunDownload
)

func (k RunKind) String() string {
	switch k {
	case RunText:
		return "text"
	case RunModeToggle:
		return "mode-toggle"
	case RunCommand:
		return "command"
	case RunDownload:
		return "download"
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// IsControl reports whether runs of this kind bypass pacing.
func (k RunKind) IsControl() bool {
	return k != RunText
}

// Run is one classified piece of an outbound fragment.
type Run struct {
	Kind RunKind
	Text string
}

// MalformedSequenceError reports a control sequence whose introducer was
// recognized but whose terminator never arrived within the fragment.
type MalformedSequenceError struct {
	Kind   RunKind
	Offset int
}

func (e *MalformedSequenceError) Error() string {
	return fmt.Sprintf("unterminated %s control sequence at offset %d", e.Kind, e.Offset)
}

func (e *MalformedSequenceError) Unwrap() error {
	return ErrMalformedControlSequence
}

// SplitRuns splits s into alternating plain-text and control runs. The
// concatenation of all returned runs is always s.
//
// If a control introducer is found without its terminator, SplitRuns returns
// every run it could classify, followed by the remainder of s as a single
// RunText run, together with a *MalformedSequenceError.
func SplitRuns(s string) ([]Run, error) {
	var (
		runs      []Run
		err       error
		textStart int
	)
	flushText := func(end int) {
		if end > textStart {
			runs = append(runs, Run{Kind: RunText, Text: s[textStart:end]})
		}
	}

	i := 0
	for i < len(s) {
		j := strings.IndexByte(s[i:], 0x1b)
		if j < 0 {
			break
		}
		i += j

		kind, n := matchControl(s[i:])
		switch {
		case n > 0:
			flushText(i)
			runs = append(runs, Run{Kind: kind, Text: s[i : i+n]})
			i += n
			textStart = i
		case n < 0:
			err = &MalformedSequenceError{Kind: kind, Offset: i}
			i = len(s)
		default:
			i++
		}
	}
	flushText(len(s))
	return runs, err
}

// matchControl inspects t, which starts with ESC. It returns the length of the
// control sequence at the start of t, 0 if t does not start with one, or -1 if
// an introducer matched but the sequence is not properly terminated.
func matchControl(t string) (RunKind, int) {
	switch {
	case strings.HasPrefix(t, commandIntroducer):
		end := strings.IndexByte(t[len(commandIntroducer):], commandTerminator)
		if end < 0 {
			return RunCommand, -1
		}
		return RunCommand, len(commandIntroducer) + end + 1

	case strings.HasPrefix(t, downloadIntroducer):
		body := t[len(downloadIntroducer):]
		end := strings.IndexByte(body, 0x1b)
		if end < 0 || !strings.HasPrefix(body[end:], downloadTerminator) {
			// The body may not contain ESC other than as part of ST.
			return RunDownload, -1
		}
		return RunDownload, len(downloadIntroducer) + end + len(downloadTerminator)

	case strings.HasPrefix(t, modeIntroducer):
		k := len(modeIntroducer)
		for k < len(t) && t[k] >= '0' && t[k] <= '9' {
			k++
		}
		if k == len(t) {
			return RunModeToggle, -1
		}
		if k > len(modeIntroducer) && (t[k] == 'h' || t[k] == 'l') {
			return RunModeToggle, k + 1
		}
	}
	return RunText, 0
}

// ModeToggle builds the sequence that shows (on) or hides a client UI element.
func ModeToggle(code int, on bool) string {
	final := "l"
	if on {
		final = "h"
	}
	return modeIntroducer + strconv.Itoa(code) + final
}

// Command builds a named client command. Arguments are base64 encoded so
// they can never contain the terminator.
func Command(name string, args ...string) string {
	var b strings.Builder
	b.WriteString(commandIntroducer)
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(';')
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(a)))
	}
	b.WriteByte(commandTerminator)
	return b.String()
}

// Client UI mode codes used by the core.
const (
	ModeTopMenu         = 2031
	ModeMultilineEditor = 2034
)
