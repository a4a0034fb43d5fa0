package alarm

import (
	"sync"
	"time"
)

// DefaultDedupWindow is the minimum interval between publishes of the same
// (device, code) alarm.
const DefaultDedupWindow = 1000 * time.Millisecond

// Deduplicator rate-limits repeated alarm emission. A rejected alarm is
// dropped from the publish path only; it still counts as produced and is
// still stored. This guards against burst duplicates inside one transport
// redelivery window.
type Deduplicator struct {
	mu       sync.Mutex
	window   time.Duration
	lastEmit map[Key]time.Time
}

func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Deduplicator{
		window:   window,
		lastEmit: make(map[Key]time.Time),
	}
}

// Admit reports whether the alarm may be published. Admission records the
// emission time; rejection leaves the recorded time untouched so a burst
// cannot push the window forward indefinitely.
func (d *Deduplicator) Admit(deviceID, code string) bool {
	key := Key{DeviceID: deviceID, Code: code}
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastEmit[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.lastEmit[key] = now
	return true
}
