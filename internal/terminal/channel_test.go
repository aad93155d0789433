package terminal

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestRecvReassemblesInput(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	s.Deliver("hello ")
	s.Deliver("world")

	var got []byte
	for len(got) < len("hello world") {
		b, err := c.Recv(4)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if len(b) == 0 || len(b) > 4 {
			t.Fatalf("Recv(4) returned %d bytes", len(b))
		}
		got = append(got, b...)
	}
	if string(got) != "hello world" {
		t.Errorf("reassembled %q", got)
	}
}

func TestRecvTimeout(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()
	c.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	_, err := c.Recv(1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Recv returned after %v, before the timeout", elapsed)
	}

	// The session stays usable after a timeout.
	s.Deliver("x")
	b, err := c.Recv(1)
	if err != nil || string(b) != "x" {
		t.Errorf("Recv after timeout = %q, %v", b, err)
	}
}

func TestRecvEOFOnClose(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Recv(1)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close("")

	select {
	case err := <-errCh:
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake on close")
	}
}

func TestRecvReturnsBufferedBytesAfterClose(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	s.Deliver("abc")
	if b, err := c.Recv(1); err != nil || string(b) != "a" {
		t.Fatalf("Recv = %q, %v", b, err)
	}
	s.Close("")

	b, err := c.Recv(8)
	if err != nil || string(b) != "bc" {
		t.Errorf("buffered bytes after close = %q, %v", b, err)
	}
	if _, err := c.Recv(1); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF once drained, got %v", err)
	}
}

func TestDeliverAfterCloseIsDropped(t *testing.T) {
	s := newIdleSession(t)
	s.Close("")
	s.Deliver("late")
	if n := s.inbox.len(); n != 0 {
		t.Errorf("inbox has %d items after close", n)
	}
}

func TestProcessInputEcho(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	s.Deliver("hi there\r")
	line, err := c.ProcessInput()
	if err != nil {
		t.Fatalf("ProcessInput: %v", err)
	}
	if line != "hi there" {
		t.Errorf("line = %q", line)
	}
	if echo := sent(s); echo != "hi there\r\n" {
		t.Errorf("echo = %q", echo)
	}
}

func TestProcessInputCRLF(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	s.Deliver("one\r\ntwo\n")
	first, err := c.ProcessInput()
	if err != nil || first != "one" {
		t.Fatalf("first line = %q, %v", first, err)
	}
	second, err := c.ProcessInput()
	if err != nil || second != "two" {
		t.Fatalf("second line = %q, %v (LF after CR must not end an empty line)", second, err)
	}
}

func TestProcessInputSplitUTF8(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	// "한" is ED 95 9C; deliver it across three input events.
	s.Deliver("\xed")
	s.Deliver("\x95")
	s.Deliver("\x9c\r")

	line, err := c.ProcessInput()
	if err != nil {
		t.Fatalf("ProcessInput: %v", err)
	}
	if line != "한" {
		t.Errorf("line = %q, want %q", line, "한")
	}
	if echo := sent(s); echo != "한\r\n" {
		t.Errorf("echo = %q", echo)
	}
}

func TestProcessInputDropsInvalidBytes(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	s.Deliver("a\xffb\r")
	line, err := c.ProcessInput()
	if err != nil || line != "ab" {
		t.Errorf("line = %q, %v", line, err)
	}
}

func TestProcessInputBackspace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  string
		echo  string
	}{
		{"ascii", "ab\b\r", "a", "ab\b \b\r\n"},
		{"del", "ab\x7f\r", "a", "ab\b \b\r\n"},
		{"wide", "a한\b\r", "a", "a한\b\b  \b\b\r\n"},
		{"on empty line", "\b\bx\r", "x", "x\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newIdleSession(t)
			s.Deliver(tt.input)
			line, err := s.Channel().ProcessInput()
			if err != nil {
				t.Fatalf("ProcessInput: %v", err)
			}
			if line != tt.line {
				t.Errorf("line = %q, want %q", line, tt.line)
			}
			if echo := sent(s); echo != tt.echo {
				t.Errorf("echo = %q, want %q", echo, tt.echo)
			}
		})
	}
}

func TestHideProcessInput(t *testing.T) {
	s := newIdleSession(t)
	s.Deliver("secret\r")

	line, err := s.Channel().HideProcessInput()
	if err != nil || line != "secret" {
		t.Fatalf("HideProcessInput = %q, %v", line, err)
	}
	if echo := sent(s); echo != "" {
		t.Errorf("hidden input was echoed: %q", echo)
	}
}

func TestProcessInputTimeoutReturnsPartial(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()
	c.SetTimeout(20 * time.Millisecond)

	s.Deliver("par")
	line, err := c.ProcessInput()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if line != "par" {
		t.Errorf("partial line = %q", line)
	}
}

func TestProcessInputEOF(t *testing.T) {
	s := newIdleSession(t)
	s.Deliver("abc")
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Close("")
	}()

	line, err := s.Channel().ProcessInput()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if line != "" {
		t.Errorf("line on EOF = %q", line)
	}
}

func TestProcessMultilineInput(t *testing.T) {
	s := newIdleSession(t)
	s.DeliverSubmission("line one\nline two\n")

	text, err := s.Channel().ProcessMultilineInput()
	if err != nil {
		t.Fatalf("ProcessMultilineInput: %v", err)
	}
	if text != "line one\nline two\n" {
		t.Errorf("text = %q", text)
	}
	if out := sent(s); out != ModeToggle(ModeMultilineEditor, true) {
		t.Errorf("editor toggle = %q", out)
	}
}

func TestProcessMultilineInputTimeout(t *testing.T) {
	s := newSession("ml", testIdentity, SessionOptions{MultilineTimeout: 20 * time.Millisecond})
	t.Cleanup(func() { s.Close("") })

	text, err := s.Channel().ProcessMultilineInput()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if text != "" {
		t.Errorf("text = %q", text)
	}
	out := sent(s)
	if !strings.HasPrefix(out, "\x1b[?2034h") || !strings.Contains(out, "[Error] Input timed out.") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	c.Send("before")
	s.Close("")
	c.Send("after")

	if out := sent(s); out != "before" {
		t.Errorf("outbox = %q", out)
	}
}

func TestWriteDiscardsInvalidUTF8(t *testing.T) {
	s := newIdleSession(t)
	n, err := s.Channel().Write([]byte("ok\xff!"))
	if err != nil || n != 4 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if out := sent(s); out != "ok!" {
		t.Errorf("outbox = %q", out)
	}
}

func TestSendIsCaptured(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()

	c.Send("not captured")
	s.Capture().Start()
	c.Send("captured ")
	c.Send("text")

	if got := s.Capture().Stop(); got != "captured text" {
		t.Errorf("capture = %q", got)
	}
}

func TestRuneWidth(t *testing.T) {
	tests := []struct {
		r    rune
		want int
	}{
		{'a', 1},
		{'한', 2},
		{'日', 2},
		{'Ａ', 2}, // fullwidth A
		{'°', 2}, // ambiguous
		{'1', 1},
	}
	for _, tt := range tests {
		if got := RuneWidth(tt.r); got != tt.want {
			t.Errorf("RuneWidth(%q) = %d, want %d", tt.r, got, tt.want)
		}
	}
}

func TestProcessMultilineInputEmptySubmission(t *testing.T) {
	s := newIdleSession(t)
	s.DeliverSubmission("")

	text, err := s.Channel().ProcessMultilineInput()
	if err != nil || text != "" {
		t.Errorf("empty submission = %q, %v", text, err)
	}
}

func TestRecvSkipsEmptyEvents(t *testing.T) {
	s := newIdleSession(t)
	s.Deliver("")
	s.Deliver("z")

	b, err := s.Channel().Recv(1)
	if err != nil || string(b) != "z" {
		t.Errorf("Recv = %q, %v", b, err)
	}
}

func TestProcessMultilineInputIgnoresTypeAhead(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()
	s.Deliver("x")
	s.DeliverSubmission("line1\nline2")

	text, err := c.ProcessMultilineInput()
	if err != nil {
		t.Fatalf("ProcessMultilineInput: %v", err)
	}
	if text != "line1\nline2" {
		t.Errorf("submission = %q, want the editor payload", text)
	}

	// The keystroke is still there for the line reader.
	b, err := c.Recv(8)
	if err != nil || string(b) != "x" {
		t.Errorf("Recv after submission = %q, %v", b, err)
	}
}

func TestRecvNeverReturnsSubmission(t *testing.T) {
	s := newIdleSession(t)
	c := s.Channel()
	c.SetTimeout(30 * time.Millisecond)
	s.DeliverSubmission("memo text")

	if b, err := c.Recv(16); !errors.Is(err, ErrTimeout) {
		t.Errorf("Recv = %q, %v, want ErrTimeout", b, err)
	}
}
