package terminal

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// DefaultMultilineTimeout bounds how long ProcessMultilineInput waits for the
// client's editor submission.
const DefaultMultilineTimeout = 300 * time.Second

const multilineTimeoutMessage = "\r\n\x1b[31m[Error] Input timed out.\x1b[0m\r\n"

// Channel gives BBS logic blocking, socket-like I/O over a session's queues.
//
// Send and Write may be called from any goroutine. The read methods (Recv and
// the ProcessInput family) belong to the session's logic task and must not be
// called concurrently with each other.
type Channel struct {
	s *Session

	timeout          atomic.Int64 // nanoseconds; 0 waits forever
	multilineTimeout time.Duration

	// reader state, owned by the logic task
	pending []byte
	skipLF  bool
}

func newChannel(s *Session, timeout, multilineTimeout time.Duration) *Channel {
	if multilineTimeout <= 0 {
		multilineTimeout = DefaultMultilineTimeout
	}
	c := &Channel{s: s, multilineTimeout: multilineTimeout}
	c.SetTimeout(timeout)
	return c
}

// SetTimeout sets the timeout for subsequent reads. Zero or a negative
// duration waits indefinitely.
func (c *Channel) SetTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.timeout.Store(int64(d))
}

// Timeout returns the current read timeout (0 = none).
func (c *Channel) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// Send queues text for the client. It never blocks. Text sent after the
// session has been torn down is dropped.
func (c *Channel) Send(text string) {
	if text == "" || !c.s.Active() {
		return
	}
	c.s.capture.Append(text)
	c.s.outbox.push(text)
}

// Write implements io.Writer on top of Send. Invalid UTF-8 is discarded.
// It never returns an error.
func (c *Channel) Write(p []byte) (int, error) {
	c.Send(strings.ToValidUTF8(string(p), ""))
	return len(p), nil
}

// Recv returns between 1 and n bytes of client input. It blocks until input
// arrives, the timeout elapses (ErrTimeout) or the session is torn down
// (io.EOF). Bytes already buffered are still returned after teardown.
func (c *Channel) Recv(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	var deadline time.Time
	if d := c.Timeout(); d > 0 {
		deadline = time.Now().Add(d)
	}

	for len(c.pending) == 0 {
		var wait time.Duration
		if !deadline.IsZero() {
			wait = time.Until(deadline)
			if wait <= 0 {
				return nil, ErrTimeout
			}
		}
		chunk, err := c.s.inbox.pop(wait, c.s.done)
		if err != nil {
			return nil, err
		}
		c.pending = append(c.pending, chunk...)
	}

	k := min(n, len(c.pending))
	out := make([]byte, k)
	copy(out, c.pending[:k])
	c.pending = c.pending[k:]
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return out, nil
}

// ProcessInput reads one line, echoing accepted characters back to the
// client. On ErrTimeout the characters typed so far are returned along with
// the error; on io.EOF the caller must end the session.
func (c *Channel) ProcessInput() (string, error) {
	return c.readLine(true)
}

// HideProcessInput is ProcessInput without echo, for secrets.
func (c *Channel) HideProcessInput() (string, error) {
	return c.readLine(false)
}

// ProcessMultilineInput opens the client's multiline editor and waits for the
// whole submission, which arrives as a single input event. Keystrokes typed
// ahead stay queued for the next line read.
func (c *Channel) ProcessMultilineInput() (string, error) {
	c.Send(ModeToggle(ModeMultilineEditor, true))

	text, err := c.s.submissions.pop(c.multilineTimeout, c.s.done)
	if errors.Is(err, ErrTimeout) {
		c.Send(multilineTimeoutMessage)
		return "", err
	}
	return text, err
}

func (c *Channel) readLine(echo bool) (string, error) {
	var (
		line    []rune
		partial []byte // bytes of an incomplete UTF-8 sequence
	)

	for {
		b, err := c.Recv(1)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return string(line), err
			}
			return "", err
		}
		ch := b[0]

		if c.skipLF {
			c.skipLF = false
			if ch == '\n' {
				continue
			}
		}

		switch ch {
		case '\r', '\n':
			c.skipLF = ch == '\r'
			if echo {
				c.Send("\r\n")
			}
			return string(line), nil

		case '\b', 0x7f:
			partial = partial[:0]
			if len(line) == 0 {
				continue
			}
			r := line[len(line)-1]
			line = line[:len(line)-1]
			if echo {
				c.Send(eraseSequence(RuneWidth(r)))
			}

		default:
			partial = append(partial, ch)
			for len(partial) > 0 && utf8.FullRune(partial) {
				r, size := utf8.DecodeRune(partial)
				partial = partial[size:]
				if r == utf8.RuneError && size == 1 {
					continue
				}
				line = append(line, r)
				if echo {
					c.Send(string(r))
				}
			}
		}
	}
}

// RuneWidth returns the number of terminal columns r occupies. Wide,
// fullwidth and ambiguous East Asian characters take two columns, matching
// CJK terminal fonts.
func RuneWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth, width.EastAsianAmbiguous:
		return 2
	}
	return 1
}

// eraseSequence moves back w columns, blanks them and moves back again.
func eraseSequence(w int) string {
	back := strings.Repeat("\b", w)
	return back + strings.Repeat(" ", w) + back
}
