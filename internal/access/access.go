// Package access records terminal connection events (connect, disconnect,
// rejection, eviction, kick) in the database for sysop review, and purges old
// records on a schedule.
package access

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gluk-w/grbbs/internal/database"
	"github.com/gluk-w/grbbs/internal/logging"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Event types.
const (
	EventConnect    = "CONNECT"
	EventDisconnect = "DISCONNECT"
	EventRejected   = "REJECTED"
	EventEvicted    = "EVICTED"
	EventKicked     = "KICKED"
)

// DefaultRetentionDays is the default number of days to keep access events.
const DefaultRetentionDays = 90

// Entry contains the fields needed to record an access event.
type Entry struct {
	EventType   string
	SessionID   string
	UserID      uint
	Username    string
	DisplayName string
	RemoteAddr  string
	Details     string
	Duration    time.Duration
}

// Recorder writes access events to the database and the standard logger.
type Recorder struct {
	mu            sync.RWMutex
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time // injectable clock for testing

	cron *cron.Cron
}

// NewRecorder creates a Recorder that writes to db. If retentionDays is 0,
// DefaultRetentionDays is used.
func NewRecorder(db *gorm.DB, retentionDays int) *Recorder {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Recorder{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Log records an access event. A nil Recorder discards the event.
func (r *Recorder) Log(entry Entry) error {
	if r == nil {
		return nil
	}
	record := database.AccessEvent{
		EventType:   entry.EventType,
		SessionID:   entry.SessionID,
		UserID:      entry.UserID,
		Username:    entry.Username,
		DisplayName: entry.DisplayName,
		RemoteAddr:  entry.RemoteAddr,
		Details:     entry.Details,
		DurationMs:  entry.Duration.Milliseconds(),
		CreatedAt:   r.nowFn(),
	}

	r.mu.RLock()
	err := r.db.Create(&record).Error
	r.mu.RUnlock()
	if err != nil {
		log.Printf("[access] failed to write access event: %v", err)
		return err
	}

	log.Printf("[access] %s session=%s user=%s name=%s addr=%s details=%s",
		entry.EventType,
		entry.SessionID,
		logging.Sanitize(entry.Username),
		logging.Sanitize(entry.DisplayName),
		logging.Sanitize(entry.RemoteAddr),
		logging.Sanitize(entry.Details),
	)
	return nil
}

// QueryOptions specifies filters for retrieving access events.
type QueryOptions struct {
	EventType string
	Username  string
	SessionID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// QueryResult contains access events and pagination metadata.
type QueryResult struct {
	Entries []database.AccessEvent `json:"entries"`
	Total   int64                  `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// Query retrieves access events matching opts, newest first.
func (r *Recorder) Query(opts QueryOptions) (*QueryResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx := r.db.Model(&database.AccessEvent{})

	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.Username != "" {
		tx = tx.Where("username = ?", opts.Username)
	}
	if opts.SessionID != "" {
		tx = tx.Where("session_id = ?", opts.SessionID)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var entries []database.AccessEvent
	if err := tx.Order("created_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return &QueryResult{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

// PurgeOlderThan removes events older than days (the configured retention
// when days <= 0). It returns the number of records deleted.
func (r *Recorder) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = r.retentionDays
	}
	cutoff := r.nowFn().AddDate(0, 0, -days)

	r.mu.Lock()
	result := r.db.Where("created_at < ?", cutoff).Delete(&database.AccessEvent{})
	r.mu.Unlock()
	if result.Error != nil {
		log.Printf("[access] purge failed: %v", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("[access] purged %d access events older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// StartPurgeSchedule runs PurgeOlderThan on the cron schedule spec
// (e.g. "@daily", "0 3 * * *"). Call Stop to end it.
func (r *Recorder) StartPurgeSchedule(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.PurgeOlderThan(0); err != nil {
			log.Printf("[access] scheduled purge: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("parse purge schedule %q: %w", spec, err)
	}

	r.mu.Lock()
	if r.cron != nil {
		r.cron.Stop()
	}
	r.cron = c
	r.mu.Unlock()

	c.Start()
	log.Printf("[access] purge scheduled %q (retention %d days)", spec, r.retentionDays)
	return nil
}

// Stop ends the purge schedule and waits for a running purge to finish.
func (r *Recorder) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// RetentionDays returns the configured retention period.
func (r *Recorder) RetentionDays() int {
	return r.retentionDays
}

// SetNowFunc sets the clock function used for testing.
func (r *Recorder) SetNowFunc(fn func() time.Time) {
	r.nowFn = fn
}
