package request

import (
	"sync"
	"time"
)

// deadline fires fn once after d unless disarmed first. A non-positive d
// never fires.
type deadline struct {
	d  time.Duration
	fn func()

	mu    sync.Mutex
	timer *time.Timer
}

func newDeadline(d time.Duration, fn func()) *deadline {
	return &deadline{d: d, fn: fn}
}

func (dl *deadline) arm() {
	if dl.d <= 0 {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.timer != nil {
		return
	}
	dl.timer = time.AfterFunc(dl.d, dl.fn)
}

// disarm reports whether the deadline was stopped before firing.
func (dl *deadline) disarm() bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.timer == nil {
		return false
	}
	stopped := dl.timer.Stop()
	dl.timer = nil
	return stopped
}
