package terminal

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Default notices sent to a session right before it is forcibly closed.
const (
	DefaultEvictNotice = "\r\nYou have been logged in from another location.\r\n"
	DefaultKickNotice  = "\r\nYou have been disconnected by the SysOp.\r\n"
)

// PresenceInfo is a point-in-time view of one admitted session.
type PresenceInfo struct {
	SessionID   string    `json:"sid"`
	UserID      uint      `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Addr        string    `json:"addr"`
	MenuMode    string    `json:"menu_mode"`
	Speed       string    `json:"speed"`
	ConnectTime time.Time `json:"connect_time"`
}

// Duration returns how long the session had been connected at now.
func (p PresenceInfo) Duration(now time.Time) time.Duration {
	return now.Sub(p.ConnectTime)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Ceiling is the maximum number of concurrently admitted sessions.
	// Zero means unlimited.
	Ceiling int
	// Rates maps speed profiles to per-character delays.
	Rates *RateModel
	// DefaultSpeed is the profile new sessions start with.
	DefaultSpeed string
	// ReadTimeout is the initial Channel timeout (0 = none).
	ReadTimeout time.Duration
	// MultilineTimeout bounds ProcessMultilineInput.
	MultilineTimeout time.Duration
	// CaptureLimit caps the session-logging buffer in bytes (0 = unlimited).
	CaptureLimit int
	// EvictNotice and KickNotice render the final message for a session.
	// When nil the Default notices are used.
	EvictNotice func(Identity) string
	KickNotice  func(Identity) string
	// OnEvict, if set, is called after a session has been closed because
	// its user logged in again.
	OnEvict func(evicted *Session)
	Metrics *Metrics
}

// Registry is the process-wide table of admitted sessions. It enforces the
// admission ceiling and one session per registered user.
type Registry struct {
	mu     sync.Mutex
	byID   map[string]*Session
	byUser map[string]string // username → session ID, registered users only

	// count mirrors len(byID); both change together under mu.
	count   atomic.Int64
	ceiling atomic.Int64

	cfg RegistryConfig
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Rates == nil {
		cfg.Rates = DefaultRateModel()
	}
	if cfg.EvictNotice == nil {
		cfg.EvictNotice = func(Identity) string { return DefaultEvictNotice }
	}
	if cfg.KickNotice == nil {
		cfg.KickNotice = func(Identity) string { return DefaultKickNotice }
	}
	r := &Registry{
		byID:   make(map[string]*Session),
		byUser: make(map[string]string),
		cfg:    cfg,
	}
	r.SetCeiling(cfg.Ceiling)
	return r
}

// Rates returns the registry's speed-profile table.
func (r *Registry) Rates() *RateModel {
	return r.cfg.Rates
}

// SetCeiling changes the admission ceiling. Already admitted sessions are
// not affected. Negative values are treated as zero (unlimited).
func (r *Registry) SetCeiling(n int) {
	if n < 0 {
		n = 0
	}
	r.ceiling.Store(int64(n))
}

// Ceiling returns the admission ceiling (0 = unlimited).
func (r *Registry) Ceiling() int {
	return int(r.ceiling.Load())
}

// SetDefaultSpeed changes the profile sessions admitted from now on start with.
func (r *Registry) SetDefaultSpeed(profile string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.DefaultSpeed = profile
}

// DefaultSpeed returns the profile new sessions start with.
func (r *Registry) DefaultSpeed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.DefaultSpeed == "" {
		return FullSpeed
	}
	return r.cfg.DefaultSpeed
}

// Count returns the number of admitted sessions.
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// Admit creates and registers a session for identity. The returned session
// is not started. When the ceiling is reached Admit returns an
// *AdmissionRejectedError and no session is created. A registered user who
// already has a session is logged out of it first.
func (r *Registry) Admit(identity Identity, opts SessionOptions) (*Session, error) {
	r.mu.Lock()

	if c := r.ceiling.Load(); c > 0 && r.count.Load() >= c {
		active := r.count.Load()
		r.mu.Unlock()
		r.cfg.Metrics.rejected()
		log.Printf("[registry] rejected %s: %d/%d sessions", identity.Username, active, c)
		return nil, &AdmissionRejectedError{Ceiling: int(c), Active: int(active)}
	}

	var evicted *Session
	if !identity.IsGuest() {
		if prevID, ok := r.byUser[identity.Username]; ok {
			evicted = r.removeLocked(prevID)
		}
	}

	if opts.Rates == nil {
		opts.Rates = r.cfg.Rates
	}
	if opts.Speed == "" {
		opts.Speed = r.cfg.DefaultSpeed
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = r.cfg.ReadTimeout
	}
	if opts.MultilineTimeout == 0 {
		opts.MultilineTimeout = r.cfg.MultilineTimeout
	}
	if opts.CaptureLimit == 0 {
		opts.CaptureLimit = r.cfg.CaptureLimit
	}
	if opts.Metrics == nil {
		opts.Metrics = r.cfg.Metrics
	}

	s := newSession(uuid.New().String(), identity, opts)
	s.onClose = func(s *Session) { r.Remove(s.ID) }
	r.byID[s.ID] = s
	if !identity.IsGuest() {
		r.byUser[identity.Username] = s.ID
	}
	r.count.Add(1)
	r.mu.Unlock()

	r.cfg.Metrics.admitted()

	// The evicted session is already out of the table; closing it only
	// signals its tasks, so it happens outside the lock.
	if evicted != nil {
		evicted.Close(r.cfg.EvictNotice(evicted.Identity()))
		r.cfg.Metrics.evicted()
		log.Printf("[registry] evicted session %s (%s logged in again as %s)", evicted.ID, identity.Username, s.ID)
		if r.cfg.OnEvict != nil {
			r.cfg.OnEvict(evicted)
		}
	}

	log.Printf("[registry] admitted session %s for %s (%d active)", s.ID, identity.Username, r.Count())
	return s, nil
}

// Remove drops a session from the registry. It reports whether the session
// was present; removing an unknown or already removed ID is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s := r.removeLocked(id)
	r.mu.Unlock()
	return s != nil
}

func (r *Registry) removeLocked(id string) *Session {
	s, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	if username := s.Identity().Username; r.byUser[username] == id {
		delete(r.byUser, username)
	}
	r.count.Add(-1)
	r.cfg.Metrics.removed()
	return s
}

// Get returns the session with id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// snapshot copies the current sessions, oldest first.
func (r *Registry) snapshot() []*Session {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ConnectTime.Before(sessions[j].ConnectTime)
	})
	return sessions
}

// ListPresence returns a snapshot of every admitted session, oldest first.
func (r *Registry) ListPresence() []PresenceInfo {
	sessions := r.snapshot()
	result := make([]PresenceInfo, 0, len(sessions))
	for _, s := range sessions {
		id := s.Identity()
		result = append(result, PresenceInfo{
			SessionID:   s.ID,
			UserID:      id.UserID,
			Username:    id.Username,
			DisplayName: id.DisplayName,
			Addr:        s.RemoteAddr,
			MenuMode:    id.MenuMode,
			Speed:       s.Speed(),
			ConnectTime: s.ConnectTime,
		})
	}
	return result
}

// Kick forcibly disconnects a session. A logic task blocked reading from the
// session's Channel wakes with io.EOF. Kick reports whether the session was
// found.
func (r *Registry) Kick(id string) bool {
	r.mu.Lock()
	s := r.removeLocked(id)
	r.mu.Unlock()
	if s == nil {
		return false
	}

	s.Close(r.cfg.KickNotice(s.Identity()))
	r.cfg.Metrics.kicked()
	log.Printf("[registry] kicked session %s (%s)", id, s.Identity().Username)
	return true
}

// Broadcast sends text to every admitted session. It may be called
// concurrently with the sessions' own output.
func (r *Registry) Broadcast(text string) int {
	sessions := r.snapshot()
	for _, s := range sessions {
		s.Notify(text)
	}
	return len(sessions)
}

// CloseAll tears down every session, e.g. on server shutdown, and waits for
// their tasks to exit.
func (r *Registry) CloseAll(notice string) {
	sessions := r.snapshot()
	for _, s := range sessions {
		s.Close(notice)
	}
	for _, s := range sessions {
		s.Wait()
	}
}
