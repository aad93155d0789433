package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gluk-w/grbbs/internal/auth"
	"github.com/gluk-w/grbbs/internal/config"
	"github.com/gluk-w/grbbs/internal/database"
)

type contextKey string

const (
	userContextKey        contextKey = "user"
	displayNameContextKey contextKey = "display_name"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequireAuth resolves the session cookie to a user. Guests are represented
// by an unsaved User with ID 0 and the shared guest username.
func RequireAuth(store *auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Cfg.AuthDisabled {
				user, err := database.GetFirstSysop()
				if err != nil {
					writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "No sysop user found"})
					return
				}
				next.ServeHTTP(w, withUser(r, user, user.Username))
				return
			}

			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
				return
			}

			principal, ok := store.Get(cookie.Value)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
				return
			}

			if principal.IsGuest() {
				guest := &database.User{Username: auth.GuestUsername, Role: database.RoleUser, MenuMode: "2"}
				next.ServeHTTP(w, withUser(r, guest, principal.GuestName))
				return
			}

			user, err := database.GetUserByID(principal.UserID)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
				return
			}
			next.ServeHTTP(w, withUser(r, user, user.Username))
		})
	}
}

func RequireSysop(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r)
		if user == nil || !user.IsSysop() {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "SysOp access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUser(r *http.Request) *database.User {
	user, _ := r.Context().Value(userContextKey).(*database.User)
	return user
}

// GetDisplayName returns the name shown to other users for the request's
// principal.
func GetDisplayName(r *http.Request) string {
	name, _ := r.Context().Value(displayNameContextKey).(string)
	return name
}

func withUser(r *http.Request, user *database.User, displayName string) *http.Request {
	ctx := context.WithValue(r.Context(), userContextKey, user)
	ctx = context.WithValue(ctx, displayNameContextKey, displayName)
	return r.WithContext(ctx)
}
