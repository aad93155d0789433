package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gluk-w/grbbs/internal/access"
)

// GetAccessLog returns paginated access events, newest first.
// Sysop-only endpoint.
//
// Query parameters:
//
//	event_type - CONNECT, DISCONNECT, REJECTED, EVICTED or KICKED
//	username   - filter by login id
//	session_id - filter by session
//	since      - RFC3339 timestamp, only entries after this time
//	until      - RFC3339 timestamp, only entries before this time
//	limit      - max entries to return (default 50, max 1000)
//	offset     - pagination offset
func GetAccessLog(w http.ResponseWriter, r *http.Request) {
	recorder := access.GetRecorder()
	if recorder == nil {
		writeError(w, http.StatusServiceUnavailable, "Access log not initialized")
		return
	}

	q := r.URL.Query()
	opts := access.QueryOptions{
		EventType: q.Get("event_type"),
		Username:  q.Get("username"),
		SessionID: q.Get("session_id"),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since timestamp (use RFC3339)")
			return
		}
		opts.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid until timestamp (use RFC3339)")
			return
		}
		opts.Until = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		opts.Offset = n
	}

	result, err := recorder.Query(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query access log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
