package terminal

import (
	"context"
	"errors"
	"io"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gluk-w/grbbs/internal/auth"
)

// Identity is the authenticated user behind a session.
type Identity struct {
	UserID      uint
	Username    string
	DisplayName string
	MenuMode    string
}

// IsGuest reports whether this is an anonymous guest identity. Guests are
// exempt from one-login-per-user eviction.
func (id Identity) IsGuest() bool {
	return auth.IsGuestName(id.Username)
}

// Transport delivers terminal output to the client. WriteOutput is only ever
// called from the session's sender task. Close is called once, after the
// sender has flushed.
type Transport interface {
	WriteOutput(ctx context.Context, data string) error
	Close(reason string) error
}

// Logic is the business state machine driven against a session's Channel.
// Run returns when the user logs off or the channel reports io.EOF. ctx is
// cancelled when the session is torn down.
type Logic interface {
	Run(ctx context.Context, s *Session) error
}

// LogicFunc adapts a function to the Logic interface.
type LogicFunc func(ctx context.Context, s *Session) error

// Run calls f(ctx, s).
func (f LogicFunc) Run(ctx context.Context, s *Session) error {
	return f(ctx, s)
}

// flushTimeout bounds the unthrottled flush of queued output at teardown.
const flushTimeout = 2 * time.Second

// Session is one connected terminal: a Channel, its input and output queues,
// a logic task and a sender task.
//
// Lifecycle:
//  1. Created by Registry.Admit (not yet running).
//  2. Start launches the logic and sender goroutines.
//  3. Close (transport closed, kick, eviction, logoff, fatal error) marks the
//     session inactive, wakes blocked reads with io.EOF and removes it from
//     the registry. Close is idempotent.
//  4. The sender flushes what was queued before teardown and closes the
//     transport. Wait returns once both goroutines have exited.
type Session struct {
	// ID is a unique identifier for this session (UUID).
	ID string
	// RemoteAddr is the client address reported by the transport.
	RemoteAddr string
	// ConnectTime is when the session was admitted.
	ConnectTime time.Time

	mu       sync.RWMutex
	identity Identity
	speed    string

	inbox       *fragmentQueue // keystrokes
	submissions *fragmentQueue // multiline editor payloads
	outbox      *fragmentQueue
	channel *Channel
	capture *Capture

	transport Transport
	rates     *RateModel
	metrics   *Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	active    atomic.Bool
	started   atomic.Bool
	closeOnce sync.Once
	notice    string // set once by Close, read by the sender after done
	onClose   func(*Session)

	releaseOnce sync.Once
	wg        sync.WaitGroup
}

// SessionOptions configures a new session.
type SessionOptions struct {
	Transport        Transport
	RemoteAddr       string
	Rates            *RateModel
	Speed            string
	ReadTimeout      time.Duration
	MultilineTimeout time.Duration
	CaptureLimit     int
	Metrics          *Metrics
}

func newSession(id string, identity Identity, opts SessionOptions) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	speed := opts.Speed
	if speed == "" {
		speed = FullSpeed
	}
	s := &Session{
		ID:          id,
		RemoteAddr:  opts.RemoteAddr,
		ConnectTime: time.Now(),
		identity:    identity,
		speed:       speed,
		inbox:       newFragmentQueue(),
		submissions: newFragmentQueue(),
		outbox:      newFragmentQueue(),
		capture:     NewCapture(opts.CaptureLimit),
		transport:   opts.Transport,
		rates:       opts.Rates,
		metrics:     opts.Metrics,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	s.channel = newChannel(s, opts.ReadTimeout, opts.MultilineTimeout)
	s.active.Store(true)
	return s
}

// Identity returns the session's user.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetDisplayName renames a guest session. Registered users keep the name
// they logged in with.
func (s *Session) SetDisplayName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.identity.IsGuest() {
		return ErrNotGuest
	}
	s.identity.DisplayName = name
	return nil
}

// SetMenuMode records the UI mode the user switched to.
func (s *Session) SetMenuMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity.MenuMode = mode
}

// Speed returns the current link-speed profile name.
func (s *Session) Speed() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// SetSpeed changes the link-speed profile used for text paced from now on.
// Unknown names are unthrottled.
func (s *Session) SetSpeed(profile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = profile
}

// Channel returns the session's blocking I/O façade.
func (s *Session) Channel() *Channel {
	return s.channel
}

// Capture returns the session-logging capture buffer.
func (s *Session) Capture() *Capture {
	return s.capture
}

// Active reports whether the session is still running.
func (s *Session) Active() bool {
	return s.active.Load()
}

// Done returns a channel closed when teardown begins.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Deliver queues raw keystrokes from the client. Input for a torn-down
// session is dropped.
func (s *Session) Deliver(input string) {
	if !s.Active() {
		return
	}
	s.inbox.push(input)
}

// DeliverSubmission queues one multiline editor submission. Each call is one
// input event, even when empty. Submissions are only ever returned by
// ProcessMultilineInput, never by Recv.
func (s *Session) DeliverSubmission(text string) {
	if !s.Active() {
		return
	}
	s.submissions.push(text)
}

// Notify sends text from outside the logic task, e.g. a sysop broadcast.
func (s *Session) Notify(text string) {
	s.channel.Send(text)
}

// Start launches the logic and sender tasks. It must be called at most once.
func (s *Session) Start(logic Logic) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	if !s.Active() {
		// Closed before it ever ran. Close may have seen started already set,
		// so release here too; releaseTransport runs once.
		s.releaseTransport()
		return
	}
	s.wg.Add(2)
	go s.runSender()
	go s.runLogic(logic)
}

func (s *Session) runLogic(logic Logic) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[terminal] session %s logic panic: %v\n%s", s.ID, r, debug.Stack())
			s.metrics.panicked()
		}
		s.Close("")
	}()

	err := logic.Run(s.ctx, s)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		log.Printf("[terminal] session %s logic ended: %v", s.ID, err)
	}
}

// Close tears the session down. A non-empty notice is queued as the last
// output before the transport closes; delivery is best-effort.
func (s *Session) Close(notice string) {
	s.closeOnce.Do(func() {
		s.notice = notice
		if notice != "" {
			s.outbox.push(notice)
		}
		s.active.Store(false)
		close(s.done)
		s.cancel()
		if s.onClose != nil {
			s.onClose(s)
		}
		if !s.started.Load() {
			s.releaseTransport()
		}
	})
}

// releaseTransport closes the transport with the teardown notice. Only the
// first call has any effect.
func (s *Session) releaseTransport() {
	s.releaseOnce.Do(func() {
		if s.transport == nil {
			return
		}
		if err := s.transport.Close(s.notice); err != nil {
			log.Printf("[terminal] session %s transport close: %v", s.ID, err)
		}
	})
}

// Wait blocks until the logic and sender tasks have exited.
func (s *Session) Wait() {
	s.wg.Wait()
}
