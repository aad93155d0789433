package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	SessionDuration = 12 * time.Hour
	SessionCookie   = "grbbs_session"
	BcryptCost      = 12
)

// GuestUsername is the login id shared by all anonymous users.
const GuestUsername = "GUEST"

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsGuestName reports whether username is the shared guest login.
func IsGuestName(username string) bool {
	return strings.EqualFold(username, GuestUsername)
}

// GuestDisplayName derives a stable, non-reversible name for a guest
// connecting from ip: GUEST(<first 7 hex digits of sha256(ip-salt)>).
func GuestDisplayName(ip, salt string) string {
	sum := sha256.Sum256([]byte(ip + "-" + salt))
	return GuestUsername + "(" + hex.EncodeToString(sum[:])[:7] + ")"
}

// Principal is who a browser session belongs to: a registered user, or a
// guest identified only by display name.
type Principal struct {
	UserID    uint
	GuestName string
}

// IsGuest reports whether the principal is an anonymous guest.
func (p Principal) IsGuest() bool {
	return p.UserID == 0
}

type sessionEntry struct {
	Principal
	ExpiresAt time.Time
}

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]sessionEntry),
	}
}

// Create starts a browser session for a registered user.
func (s *SessionStore) Create(userID uint) (string, error) {
	return s.create(Principal{UserID: userID})
}

// CreateGuest starts a browser session for an anonymous guest.
func (s *SessionStore) CreateGuest(displayName string) (string, error) {
	return s.create(Principal{GuestName: displayName})
}

func (s *SessionStore) create(p Principal) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	id := hex.EncodeToString(b)
	s.mu.Lock()
	s.sessions[id] = sessionEntry{
		Principal: p,
		ExpiresAt: time.Now().Add(SessionDuration),
	}
	s.mu.Unlock()
	return id, nil
}

func (s *SessionStore) Get(sessionID string) (Principal, bool) {
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.ExpiresAt) {
		return Principal{}, false
	}
	return entry.Principal, true
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *SessionStore) DeleteByUserID(userID uint) {
	s.mu.Lock()
	for id, entry := range s.sessions {
		if entry.UserID == userID {
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
}

func (s *SessionStore) Cleanup() {
	now := time.Now()
	s.mu.Lock()
	for id, entry := range s.sessions {
		if now.After(entry.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
}
