package terminal

import (
	"sort"
	"time"
)

// FullSpeed is the profile name for unthrottled output.
const FullSpeed = "full"

// bitsPerChar models 8N1 framing: start bit, eight data bits, stop bit.
const bitsPerChar = 10

// RateModel maps link-speed profile names to a per-character output delay.
// A RateModel is immutable after construction and safe for concurrent use.
type RateModel struct {
	delays map[string]time.Duration
}

// CharDelay returns the time one character occupies on a link of bps bits
// per second. Non-positive rates mean unthrottled.
func CharDelay(bps int) time.Duration {
	if bps <= 0 {
		return 0
	}
	return bitsPerChar * time.Second / time.Duration(bps)
}

// NewRateModel builds a model from a profile→bps table. The FullSpeed profile
// is always present with a zero delay.
func NewRateModel(bps map[string]int) *RateModel {
	m := &RateModel{delays: make(map[string]time.Duration, len(bps)+1)}
	for name, rate := range bps {
		m.delays[name] = CharDelay(rate)
	}
	m.delays[FullSpeed] = 0
	return m
}

// DefaultRateModel returns the classic modem speeds.
func DefaultRateModel() *RateModel {
	return NewRateModel(map[string]int{
		"300":  300,
		"2400": 2400,
		"4800": 4800,
		"9600": 9600,
	})
}

// Delay returns the per-character delay for profile. Unknown profiles are
// unthrottled.
func (m *RateModel) Delay(profile string) time.Duration {
	if m == nil {
		return 0
	}
	return m.delays[profile]
}

// Has reports whether profile is configured.
func (m *RateModel) Has(profile string) bool {
	if m == nil {
		return false
	}
	_, ok := m.delays[profile]
	return ok
}

// Profiles returns the configured profile names, slowest first, with
// FullSpeed last.
func (m *RateModel) Profiles() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.delays))
	for name := range m.delays {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		di, dj := m.delays[names[i]], m.delays[names[j]]
		if di == 0 || dj == 0 {
			if di == dj {
				return names[i] < names[j]
			}
			return dj == 0
		}
		if di != dj {
			return di > dj
		}
		return names[i] < names[j]
	})
	return names
}
