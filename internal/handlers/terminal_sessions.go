package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gluk-w/grbbs/internal/access"
	"github.com/gluk-w/grbbs/internal/middleware"
	"github.com/gluk-w/grbbs/internal/terminal"
	"github.com/gluk-w/grbbs/internal/texts"
	"github.com/go-chi/chi/v5"
)

// maxBroadcastLength bounds a sysop broadcast message in bytes.
const maxBroadcastLength = 1024

// sessionInfo is the JSON representation of an admitted session for API responses.
type sessionInfo struct {
	terminal.PresenceInfo
	DurationSeconds int64 `json:"duration_seconds"`
}

// ListSessions returns every admitted session, oldest first.
// GET /api/v1/admin/sessions
func ListSessions(w http.ResponseWriter, r *http.Request) {
	if Registry == nil {
		writeJSON(w, http.StatusOK, map[string][]sessionInfo{"sessions": {}})
		return
	}

	now := time.Now()
	presence := Registry.ListPresence()
	result := make([]sessionInfo, 0, len(presence))
	for _, p := range presence {
		result = append(result, sessionInfo{
			PresenceInfo:    p,
			DurationSeconds: int64(max(p.Duration(now), 0) / time.Second),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": result,
		"count":    len(result),
		"ceiling":  Registry.Ceiling(),
	})
}

// KickSession forcibly disconnects a session.
// DELETE /api/v1/admin/sessions/{sessionId}
func KickSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Missing session ID")
		return
	}
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Terminal not initialized")
		return
	}

	s := Registry.Get(sessionID)
	if s == nil || !Registry.Kick(sessionID) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	id := s.Identity()
	details := ""
	if sysop := middleware.GetUser(r); sysop != nil {
		details = "by " + sysop.Username
	}
	access.GetRecorder().Log(access.Entry{
		EventType:   access.EventKicked,
		SessionID:   s.ID,
		UserID:      id.UserID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		RemoteAddr:  s.RemoteAddr,
		Details:     details,
		Duration:    time.Since(s.ConnectTime),
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "kicked"})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

// Broadcast sends a sysop message to every admitted session.
// POST /api/v1/admin/broadcast
func Broadcast(w http.ResponseWriter, r *http.Request) {
	var body broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	message := strings.TrimSpace(body.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if len(message) > maxBroadcastLength {
		writeError(w, http.StatusBadRequest, "Message too long")
		return
	}
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Terminal not initialized")
		return
	}

	// Plain-text rendering, since recipients may be in any menu mode.
	text := "\r\n" + catalog().Render("notice.broadcast", "1", map[string]string{"message": message})
	n := Registry.Broadcast(text)

	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

func catalog() *texts.Catalog {
	if BBS.Texts != nil {
		return BBS.Texts
	}
	return texts.Default()
}
