package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gluk-w/grbbs/internal/access"
	"github.com/gluk-w/grbbs/internal/bbs"
	"github.com/gluk-w/grbbs/internal/config"
	"github.com/gluk-w/grbbs/internal/database"
	"github.com/gluk-w/grbbs/internal/middleware"
	"github.com/gluk-w/grbbs/internal/terminal"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a fresh temp-file database as database.DB and installs an
// access recorder on it.
func setupTestDB(t *testing.T) *access.Recorder {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	prevDB := database.DB
	database.DB = db

	rec := access.NewRecorder(db, 0)
	prevRec := access.GetRecorder()
	access.SetGlobalForTest(rec)

	t.Cleanup(func() {
		access.SetGlobalForTest(prevRec)
		database.Close()
		database.DB = prevDB
	})
	return rec
}

// setupRegistry installs a fresh package Registry and BBS config.
func setupRegistry(t *testing.T, cfg terminal.RegistryConfig) *terminal.Registry {
	t.Helper()
	r := terminal.NewRegistry(cfg)
	prevReg, prevBBS := Registry, BBS
	Registry = r
	BBS = bbs.Config{BBSName: "TESTBBS", Registry: r}

	prevCfg := config.Cfg
	config.Cfg.BBSName = "TESTBBS"
	config.Cfg.SessionLogDir = t.TempDir()
	config.Cfg.WSReadLimit = 65536
	config.Cfg.InputRateLimit = 1000
	config.Cfg.InputRateBurst = 1000

	t.Cleanup(func() {
		r.CloseAll("")
		Registry, BBS = prevReg, prevBBS
		config.Cfg = prevCfg
	})
	return r
}

func createTestUser(t *testing.T, username, role string) *database.User {
	t.Helper()
	user := &database.User{Username: username, PasswordHash: "x", Role: role, MenuMode: "2"}
	if err := database.CreateUser(user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func guestUser() *database.User {
	return &database.User{Username: "GUEST", Role: database.RoleUser, MenuMode: "2"}
}

// setupTerminalServer serves TerminalWS as the given principal.
func setupTerminalServer(t *testing.T, user *database.User, displayName string) *httptest.Server {
	t.Helper()
	mux := chi.NewRouter()
	mux.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, middleware.WithUserForTest(r, user, displayName))
		})
	})
	mux.Get("/ws/terminal", TerminalWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func dialTerminal(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := fmt.Sprintf("ws%s/ws/terminal", strings.TrimPrefix(ts.URL, "http"))
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial terminal WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readEvent reads frames until a JSON event of the given type arrives,
// collecting the terminal output seen on the way.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, eventType string) (serverEvent, string) {
	t.Helper()
	var output strings.Builder
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %s event: %v (output so far %q)", eventType, err, output.String())
		}
		if msgType == websocket.MessageBinary {
			output.Write(data)
			continue
		}
		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("invalid event %q: %v", data, err)
		}
		if ev.Type == eventType {
			return ev, output.String()
		}
	}
}

// readOutputUntil reads binary frames until the accumulated output contains want.
func readOutputUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) string {
	t.Helper()
	var output strings.Builder
	for !strings.Contains(output.String(), want) {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for output %q: %v (got %q)", want, err, output.String())
		}
		if msgType == websocket.MessageBinary {
			output.Write(data)
		}
	}
	return output.String()
}

// readUntilClosed drains the connection and returns the close status.
func readUntilClosed(ctx context.Context, conn *websocket.Conn) websocket.StatusCode {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func sendJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v interface{}) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func countEvents(t *testing.T, rec *access.Recorder, eventType string) int64 {
	t.Helper()
	res, err := rec.Query(access.QueryOptions{EventType: eventType})
	if err != nil {
		t.Fatalf("query access log: %v", err)
	}
	return res.Total
}

// newChiRequest creates a request with chi URL params set.
func newChiRequest(method, url string, params map[string]string) *http.Request {
	r := httptest.NewRequest(method, url, nil)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
	}
}
