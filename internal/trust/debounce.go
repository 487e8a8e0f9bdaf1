package trust

import (
	"sync"
	"time"
)

// debouncer runs the last function handed to it once calls stop arriving
// for the configured duration.
type debouncer struct {
	mx    sync.Mutex
	after time.Duration
	timer *time.Timer
}

func newDebouncer(after time.Duration) *debouncer {
	return &debouncer{after: after}
}

func (d *debouncer) add(f func()) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.after, f)
}

// stop cancels a pending call.
func (d *debouncer) stop() {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
