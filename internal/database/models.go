package database

import "time"

// User roles.
const (
	RoleSysop = "sysop"
	RoleUser  = "user"
)

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type User struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:64" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"not null;default:user" json:"role"`
	MenuMode     string     `gorm:"not null;default:2" json:"menu_mode"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsSysop reports whether the user may use the operator API.
func (u *User) IsSysop() bool {
	return u.Role == RoleSysop
}

// AccessEvent is one row of the connection access log.
type AccessEvent struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType   string    `gorm:"not null;index;size:32" json:"event_type"`
	SessionID   string    `gorm:"size:64;index" json:"session_id"`
	UserID      uint      `json:"user_id"`
	Username    string    `gorm:"size:64;index" json:"username"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	RemoteAddr  string    `gorm:"size:64" json:"remote_addr"`
	Details     string    `json:"details"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
