package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/coder/websocket"
	"github.com/gluk-w/grbbs/internal/access"
	"github.com/gluk-w/grbbs/internal/bbs"
	"github.com/gluk-w/grbbs/internal/config"
	"github.com/gluk-w/grbbs/internal/database"
	"github.com/gluk-w/grbbs/internal/logging"
	"github.com/gluk-w/grbbs/internal/middleware"
	"github.com/gluk-w/grbbs/internal/terminal"
)

// StatusServerFull is the WebSocket close code sent when the admission
// ceiling is reached.
const StatusServerFull websocket.StatusCode = 4429

// Registry and BBS are set from main.go during init.
var (
	Registry *terminal.Registry
	BBS      bbs.Config
)

// Client → server control messages (text frames).
type clientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Speed   string `json:"speed,omitempty"`
}

// Server → client events (text frames).
type serverEvent struct {
	Type        string   `json:"type"`
	SessionID   string   `json:"session_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Speed       string   `json:"speed,omitempty"`
	Profiles    []string `json:"profiles,omitempty"`
	Message     string   `json:"message,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	Content     *string  `json:"content,omitempty"`
}

// wsTransport carries a session's output over a browser WebSocket: terminal
// output as binary frames, events as JSON text frames.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteOutput(ctx context.Context, data string) error {
	return t.conn.Write(ctx, websocket.MessageBinary, []byte(data))
}

func (t *wsTransport) writeEvent(ctx context.Context, ev serverEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.conn.Write(ctx, websocket.MessageText, b)
}

// Close tells the client why it is being disconnected (if there is a reason)
// and closes the socket.
func (t *wsTransport) Close(reason string) error {
	if reason != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		t.writeEvent(ctx, serverEvent{Type: "force_disconnect", Message: terminalPlainText(reason)})
		cancel()
	}
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

var sgrPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// terminalPlainText strips escape sequences and surrounding line breaks.
func terminalPlainText(s string) string {
	s = sgrPattern.ReplaceAllString(s, "")
	return string(trimCRLF([]byte(s)))
}

func trimCRLF(b []byte) []byte {
	for len(b) > 0 && (b[0] == '\r' || b[0] == '\n') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == '\r' || b[len(b)-1] == '\n') {
		b = b[:len(b)-1]
	}
	return b
}

// TerminalWS admits the authenticated user to the BBS and bridges the
// WebSocket to the session until either side goes away.
//
// Client binary frames are keystrokes. Client text frames are JSON control
// messages: multiline_submit, set_speed, toggle_logging, current_log_buffer.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "Terminal not initialized")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ws] failed to accept terminal websocket: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(config.Cfg.WSReadLimit)

	ctx := r.Context()
	addr := remoteHost(r)
	menuMode := user.MenuMode
	if menuMode == "" {
		menuMode = "2"
	}
	identity := terminal.Identity{
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: middleware.GetDisplayName(r),
		MenuMode:    menuMode,
	}

	tr := &wsTransport{conn: conn}
	s, err := Registry.Admit(identity, terminal.SessionOptions{Transport: tr, RemoteAddr: addr})
	if err != nil {
		var rejected *terminal.AdmissionRejectedError
		if errors.As(err, &rejected) {
			access.GetRecorder().Log(access.Entry{
				EventType:   access.EventRejected,
				UserID:      identity.UserID,
				Username:    identity.Username,
				DisplayName: identity.DisplayName,
				RemoteAddr:  addr,
				Details:     fmt.Sprintf("active=%d ceiling=%d", rejected.Active, rejected.Ceiling),
			})
			conn.Close(StatusServerFull, "server full")
			return
		}
		log.Printf("[ws] admission failed for %s: %v", logging.Sanitize(identity.Username), err)
		conn.Close(websocket.StatusInternalError, "admission failed")
		return
	}

	access.GetRecorder().Log(access.Entry{
		EventType:   access.EventConnect,
		SessionID:   s.ID,
		UserID:      identity.UserID,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		RemoteAddr:  addr,
	})

	var lastLogin *time.Time
	if !identity.IsGuest() && database.DB != nil {
		prev, err := database.TouchLastLogin(identity.UserID, time.Now())
		if err != nil {
			log.Printf("[ws] update last login for %s: %v", logging.Sanitize(identity.Username), err)
		}
		lastLogin = prev
	}

	// Written before Start so it is the first frame the client sees.
	if err := tr.writeEvent(ctx, serverEvent{
		Type:        "session_info",
		SessionID:   s.ID,
		DisplayName: identity.DisplayName,
		Speed:       s.Speed(),
		Profiles:    Registry.Rates().Profiles(),
	}); err != nil {
		s.Close("")
	}
	s.Start(bbs.New(BBS, lastLogin))

	relayInput(ctx, conn, tr, s)

	s.Close("")
	s.Wait()

	access.GetRecorder().Log(access.Entry{
		EventType:   access.EventDisconnect,
		SessionID:   s.ID,
		UserID:      identity.UserID,
		Username:    identity.Username,
		DisplayName: s.Identity().DisplayName,
		RemoteAddr:  addr,
		Duration:    time.Since(s.ConnectTime),
	})
}

// relayInput feeds client frames into the session until the socket closes.
func relayInput(ctx context.Context, conn *websocket.Conn, tr *wsTransport, s *terminal.Session) {
	limiter := terminal.NewInputLimiter(config.Cfg.InputRateLimit, config.Cfg.InputRateBurst)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		// Rate limit: drop messages that exceed the allowed rate
		if !limiter.Allow() {
			continue
		}
		if len(data) > terminal.MaxInputMessageSize {
			log.Printf("[ws] input message too large: session=%s size=%d limit=%d", s.ID, len(data), terminal.MaxInputMessageSize)
			continue
		}

		if msgType == websocket.MessageBinary {
			s.Deliver(string(data))
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		handleClientMessage(ctx, tr, s, msg)
	}
}

func handleClientMessage(ctx context.Context, tr *wsTransport, s *terminal.Session, msg clientMessage) {
	switch msg.Type {
	case "multiline_submit":
		s.DeliverSubmission(msg.Content)

	case "set_speed":
		if len(msg.Speed) > 32 {
			return
		}
		s.SetSpeed(msg.Speed)
		log.Printf("[ws] session %s speed set to %s", s.ID, logging.Sanitize(msg.Speed))

	case "toggle_logging":
		toggleLogging(ctx, tr, s)

	case "current_log_buffer":
		content := s.Capture().Text()
		tr.writeEvent(ctx, serverEvent{Type: "log_content", Content: &content})
	}
}

// toggleLogging starts session logging, or stops it and saves what was
// captured to SessionLogDir.
func toggleLogging(ctx context.Context, tr *wsTransport, s *terminal.Session) {
	capture := s.Capture()
	if !capture.Active() {
		capture.Start()
		tr.writeEvent(ctx, serverEvent{Type: "logging_started"})
		return
	}

	text := capture.Stop()
	if text == "" {
		tr.writeEvent(ctx, serverEvent{Type: "logging_stopped", Message: "No log data to save."})
		return
	}

	filename, err := saveSessionLog(s.Identity().DisplayName, text, time.Now())
	if err != nil {
		log.Printf("[ws] session %s: save session log: %v", s.ID, err)
		tr.writeEvent(ctx, serverEvent{Type: "logging_stopped", Message: "Failed to save the log."})
		return
	}
	tr.writeEvent(ctx, serverEvent{Type: "log_saved", Filename: filename})
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// sessionLogFilename builds <bbs>_<name>_<YYYYmmdd_HHMMSS>.log with every
// character outside [A-Za-z0-9_-] replaced.
func sessionLogFilename(bbsName, displayName string, t time.Time) string {
	safe := func(s string) string {
		s = unsafeFilenameChars.ReplaceAllString(s, "_")
		if s == "" {
			return "_"
		}
		return s
	}
	return fmt.Sprintf("%s_%s_%s.log", safe(bbsName), safe(displayName), t.Format("20060102_150405"))
}

func saveSessionLog(displayName, text string, now time.Time) (string, error) {
	dir := config.Cfg.SessionLogDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create session log dir: %w", err)
	}
	name := sessionLogFilename(config.Cfg.BBSName, displayName, now)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write session log: %w", err)
	}
	return name, nil
}

// RecordEviction logs an EVICTED access event for a session closed because
// its user logged in elsewhere.
func RecordEviction(s *terminal.Session) {
	id := s.Identity()
	access.GetRecorder().Log(access.Entry{
		EventType:   access.EventEvicted,
		SessionID:   s.ID,
		UserID:      id.UserID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		RemoteAddr:  s.RemoteAddr,
		Duration:    time.Since(s.ConnectTime),
	})
}
