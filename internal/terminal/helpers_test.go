package terminal

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type outputEvent struct {
	data string
	at   time.Time
}

// fakeTransport records everything the sender writes.
type fakeTransport struct {
	mu       sync.Mutex
	events   []outputEvent
	writeErr error
	reason   string
	closes   int

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{closed: make(chan struct{})}
}

func (t *fakeTransport) WriteOutput(ctx context.Context, data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.events = append(t.events, outputEvent{data: data, at: time.Now()})
	return nil
}

func (t *fakeTransport) Close(reason string) error {
	t.mu.Lock()
	t.closes++
	t.mu.Unlock()
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.closed)
	})
	return nil
}

func (t *fakeTransport) closeReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

func (t *fakeTransport) closeCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

func (t *fakeTransport) setWriteErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *fakeTransport) snapshot() []outputEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]outputEvent, len(t.events))
	copy(result, t.events)
	return result
}

func (t *fakeTransport) output() string {
	var b strings.Builder
	for _, e := range t.snapshot() {
		b.WriteString(e.data)
	}
	return b.String()
}

// waitOutput polls until the transport output contains want.
func (t *fakeTransport) waitOutput(tb testing.TB, want string, timeout time.Duration) {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(t.output(), want) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	tb.Fatalf("timed out waiting for output %q; got %q", want, t.output())
}

func (t *fakeTransport) waitClosed(tb testing.TB, timeout time.Duration) {
	tb.Helper()
	select {
	case <-t.closed:
	case <-time.After(timeout):
		tb.Fatal("transport was not closed")
	}
}

var testIdentity = Identity{UserID: 1, Username: "alice", DisplayName: "alice", MenuMode: "2"}

// newIdleSession returns a session that was never started, for exercising
// the Channel directly against its queues.
func newIdleSession(t *testing.T) *Session {
	t.Helper()
	s := newSession("test-session", testIdentity, SessionOptions{Rates: DefaultRateModel()})
	t.Cleanup(func() { s.Close("") })
	return s
}

// sent returns and clears everything queued for output.
func sent(s *Session) string {
	return strings.Join(s.outbox.drain(), "")
}

// startSession admits and starts a session, tearing it down at test end.
func startSession(t *testing.T, r *Registry, id Identity, logic Logic) (*Session, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	s, err := r.Admit(id, SessionOptions{Transport: tr})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	s.Start(logic)
	t.Cleanup(func() {
		s.Close("")
		s.Wait()
	})
	return s, tr
}

// blockingLogic reads lines until EOF and reports each read result.
func blockingLogic(results chan<- error) LogicFunc {
	return func(ctx context.Context, s *Session) error {
		for {
			_, err := s.Channel().Recv(1)
			if err == ErrTimeout {
				continue
			}
			if err != nil {
				results <- err
				return err
			}
		}
	}
}

// idleLogic waits for teardown.
func idleLogic(ctx context.Context, s *Session) error {
	<-ctx.Done()
	return ctx.Err()
}
