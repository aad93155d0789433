package terminal

import (
	"strings"
	"sync"
	"time"
)

// CaptureEntry is one captured output fragment.
type CaptureEntry struct {
	// Elapsed is the time since capture start in seconds.
	Elapsed float64 `json:"elapsed"`
	Data    string  `json:"data"`
}

// Capture records a session's outbound text while the user has session
// logging switched on. It is safe for concurrent use.
type Capture struct {
	mu        sync.Mutex
	active    bool
	entries   []CaptureEntry
	size      int
	startTime time.Time
	maxBytes  int
}

// NewCapture creates an inactive capture. If maxBytes <= 0 there is no limit
// on the amount of captured text.
func NewCapture(maxBytes int) *Capture {
	return &Capture{maxBytes: maxBytes}
}

// Start clears any previous content and begins capturing.
func (c *Capture) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.entries = nil
	c.size = 0
	c.startTime = time.Now()
}

// Stop ends capturing and returns the captured text.
func (c *Capture) Stop() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.textLocked()
	c.active = false
	c.entries = nil
	c.size = 0
	return text
}

// Active reports whether output is currently being captured.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Append records data if capturing is on.
func (c *Capture) Append(data string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || data == "" {
		return
	}
	if c.maxBytes > 0 && c.size+len(data) > c.maxBytes {
		return // drop if at capacity
	}
	c.entries = append(c.entries, CaptureEntry{
		Elapsed: time.Since(c.startTime).Seconds(),
		Data:    data,
	})
	c.size += len(data)
}

// Text returns the captured text without stopping the capture.
func (c *Capture) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textLocked()
}

func (c *Capture) textLocked() string {
	var b strings.Builder
	b.Grow(c.size)
	for _, e := range c.entries {
		b.WriteString(e.Data)
	}
	return b.String()
}
