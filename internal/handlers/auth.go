package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gluk-w/grbbs/internal/auth"
	"github.com/gluk-w/grbbs/internal/config"
	"github.com/gluk-w/grbbs/internal/database"
	"github.com/gluk-w/grbbs/internal/logging"
	"github.com/gluk-w/grbbs/internal/middleware"
)

// SessionStore is set from main.go during init.
var SessionStore *auth.SessionStore

func setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(auth.SessionDuration.Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if auth.IsGuestName(body.Username) {
		writeError(w, http.StatusBadRequest, "Use guest login for the GUEST account")
		return
	}

	user, err := database.GetUserByUsername(body.Username)
	if err != nil || !auth.CheckPassword(body.Password, user.PasswordHash) {
		log.Printf("Login failed for %s from %s", logging.Sanitize(body.Username), remoteHost(r))
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	sessionID, err := SessionStore.Create(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	setSessionCookie(w, r, sessionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.Username,
		"role":         user.Role,
		"menu_mode":    user.MenuMode,
	})
}

// GuestLogin starts an anonymous session. The guest's display name is
// derived from the client address so repeat visits look the same.
func GuestLogin(w http.ResponseWriter, r *http.Request) {
	name := auth.GuestDisplayName(remoteHost(r), config.Cfg.GuestIDSalt)

	sessionID, err := SessionStore.CreateGuest(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	setSessionCookie(w, r, sessionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           0,
		"username":     auth.GuestUsername,
		"display_name": name,
		"role":         database.RoleUser,
		"menu_mode":    "2",
	})
}

func Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookie)
	if err == nil {
		SessionStore.Delete(cookie.Value)
	}
	clearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": middleware.GetDisplayName(r),
		"role":         user.Role,
		"menu_mode":    user.MenuMode,
		"last_login":   user.LastLogin,
	})
}
