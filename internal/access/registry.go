package access

import (
	"sync"

	"gorm.io/gorm"
)

var (
	globalRecorder *Recorder
	registryMu     sync.RWMutex
)

// InitGlobal creates and stores the global Recorder instance.
// Call this once during application startup after the database is initialized.
func InitGlobal(db *gorm.DB, retentionDays int) *Recorder {
	registryMu.Lock()
	defer registryMu.Unlock()
	globalRecorder = NewRecorder(db, retentionDays)
	return globalRecorder
}

// GetRecorder returns the global Recorder instance, or nil before InitGlobal.
func GetRecorder() *Recorder {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return globalRecorder
}

// SetGlobalForTest sets the global Recorder for tests.
func SetGlobalForTest(r *Recorder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	globalRecorder = r
}
