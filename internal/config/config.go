package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/grbbs.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"/app/data/grbbs.log"`
	AuthDisabled bool   `envconfig:"AUTH_DISABLED" default:"false"`
	BBSName      string `envconfig:"BBS_NAME" default:"GRBBS"`
	GuestIDSalt  string `envconfig:"GUEST_ID_SALT" default:"grbbs"`

	// Terminal session settings
	MaxConcurrentClients int            `envconfig:"MAX_CONCURRENT_CLIENTS" default:"4"`
	SpeedProfiles        map[string]int `envconfig:"SPEED_PROFILES" default:"300:300,2400:2400,4800:4800,9600:9600"`
	DefaultSpeed         string         `envconfig:"DEFAULT_SPEED" default:"full"`
	InputTimeout         string         `envconfig:"INPUT_TIMEOUT" default:""`
	MultilineTimeout     string         `envconfig:"MULTILINE_TIMEOUT" default:"300s"`
	SessionLogDir        string         `envconfig:"SESSION_LOG_DIR" default:"/app/data/session_logs"`
	SessionLogMaxBytes   int            `envconfig:"SESSION_LOG_MAX_BYTES" default:"10485760"`

	// WebSocket input limits
	WSReadLimit    int64   `envconfig:"WS_READ_LIMIT" default:"65536"`
	InputRateLimit float64 `envconfig:"INPUT_RATE_LIMIT" default:"100"`
	InputRateBurst int     `envconfig:"INPUT_RATE_BURST" default:"200"`

	// Access log retention
	AccessLogRetentionDays int    `envconfig:"ACCESS_LOG_RETENTION_DAYS" default:"90"`
	AccessLogPurgeSchedule string `envconfig:"ACCESS_LOG_PURGE_SCHEDULE" default:"@daily"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("GRBBS", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// SpeedTable returns the configured link-speed profiles (name → bps).
func (s Settings) SpeedTable() map[string]int {
	table := make(map[string]int, len(s.SpeedProfiles))
	for name, bps := range s.SpeedProfiles {
		if bps > 0 {
			table[name] = bps
		}
	}
	return table
}

// InputTimeoutDuration returns the default read timeout for new sessions.
// Zero means reads wait indefinitely.
func (s Settings) InputTimeoutDuration() time.Duration {
	return ParseDuration(s.InputTimeout, 0)
}

// MultilineTimeoutDuration returns how long the multiline editor may stay open.
func (s Settings) MultilineTimeoutDuration() time.Duration {
	return ParseDuration(s.MultilineTimeout, 300*time.Second)
}

// AccessLogRetention returns the access-log retention period.
func (s Settings) AccessLogRetention() time.Duration {
	if s.AccessLogRetentionDays <= 0 {
		return 0
	}
	return time.Duration(s.AccessLogRetentionDays) * 24 * time.Hour
}

// ParseDuration parses s, returning fallback when s is empty or invalid.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		log.Printf("invalid duration %q, using %v", s, fallback)
		return fallback
	}
	return d
}
