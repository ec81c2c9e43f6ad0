package sample

import (
	"sync"
	"time"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
)

// Latest holds the most recently decoded frame. The lock is only held
// while copying in or out.
type Latest struct {
	mu  sync.Mutex
	f   ecu.Frame
	at  time.Time
	set bool
}

// Set replaces the stored frame.
func (l *Latest) Set(f ecu.Frame, at time.Time) {
	l.mu.Lock()
	l.f, l.at, l.set = f, at, true
	l.mu.Unlock()
}

// Get returns a copy of the stored frame, its capture time and whether
// any frame has been stored yet.
func (l *Latest) Get() (ecu.Frame, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f, l.at, l.set
}

// Publish implements ecu.Sink.
func (l *Latest) Publish(f ecu.Frame, at time.Time) { l.Set(f, at) }

// Reset forgets the stored frame.
func (l *Latest) Reset() {
	l.mu.Lock()
	l.f, l.at, l.set = ecu.Frame{}, time.Time{}, false
	l.mu.Unlock()
}
