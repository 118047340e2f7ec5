package provider

import (
	"sync"
	"time"
)

// budget enforces a profile's per-minute and per-hour request ceilings with
// fixed counting windows: each window admits at most its limit and the count
// resets only when the window expires, so no 60-second (or one-hour) span
// ever sees more attempts than the configured ceiling. Slots are consumed on
// attempt, not on success, so a failing-but-accepting provider cannot absorb
// unbounded retries.
type budget struct {
	mu     sync.Mutex
	minute *countWindow
	hour   *countWindow
}

// countWindow is one fixed counting window. The window opens on the first
// acquisition after expiry; there is no continuous refill.
type countWindow struct {
	limit int
	span  time.Duration
	start time.Time
	used  int
}

func newBudget(perMinute, perHour int) *budget {
	b := &budget{}
	if perMinute > 0 {
		b.minute = &countWindow{limit: perMinute, span: time.Minute}
	}
	if perHour > 0 {
		b.hour = &countWindow{limit: perHour, span: time.Hour}
	}
	return b
}

func (w *countWindow) roll(now time.Time) {
	if w.start.IsZero() || now.Sub(w.start) >= w.span {
		w.start = now
		w.used = 0
	}
}

func (w *countWindow) exhausted(now time.Time) bool {
	w.roll(now)
	return w.used >= w.limit
}

// tryAcquire consumes one slot from each configured window. It returns
// false, consuming nothing, when either window is already exhausted at now.
func (b *budget) tryAcquire(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.minute != nil && b.minute.exhausted(now) {
		return false
	}
	if b.hour != nil && b.hour.exhausted(now) {
		return false
	}
	if b.minute != nil {
		b.minute.used++
	}
	if b.hour != nil {
		b.hour.used++
	}
	return true
}
