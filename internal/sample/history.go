// Package sample holds the consumer side of the decoded frame stream: a
// latest-frame cell for point-in-time display and per-channel circular
// histories for time-series plots.
package sample

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the number of samples kept per channel.
const DefaultCapacity = 512

// Sample is one history entry. A Value of +Inf marks a slot that holds
// no value; renderers stop walking back in time when they reach one.
type Sample struct {
	Value float64   `json:"value"`
	Alert bool      `json:"alert"`
	At    time.Time `json:"at"`
}

// NoValue is the sentinel returned for slots never written or out of range.
var NoValue = Sample{Value: math.Inf(1)}

// Valid reports whether s carries a value.
func (s Sample) Valid() bool { return !math.IsInf(s.Value, 1) }

// MarshalJSON encodes the sentinel value as null since JSON has no Inf.
func (s Sample) MarshalJSON() ([]byte, error) {
	type wire struct {
		Value *float64   `json:"value"`
		Alert bool       `json:"alert"`
		At    *time.Time `json:"at,omitempty"`
	}
	w := wire{Alert: s.Alert}
	if s.Valid() {
		v := s.Value
		w.Value = &v
	}
	if !s.At.IsZero() {
		at := s.At
		w.At = &at
	}
	return json.Marshal(w)
}

// History is a fixed-capacity ring of samples indexed by a monotonically
// increasing head. Capacity must be a power of two.
//
// Push must be called from a single goroutine. Readers may call At,
// Snapshot and Changed concurrently with it.
type History struct {
	mu    sync.RWMutex
	slots []Sample
	mask  uint64
	head  uint64

	changed atomic.Bool
}

// NewHistory allocates a history holding capacity samples.
func NewHistory(capacity int) (*History, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("sample: capacity %d is not a power of two", capacity)
	}
	slots := make([]Sample, capacity)
	for i := range slots {
		slots[i] = NoValue
	}
	return &History{slots: slots, mask: uint64(capacity - 1)}, nil
}

// Push stores a sample as the most recent entry.
func (h *History) Push(value float64, alert bool, at time.Time) {
	h.mu.Lock()
	h.slots[h.head&h.mask] = Sample{Value: value, Alert: alert, At: at}
	h.head++
	h.mu.Unlock()
	h.changed.Store(true)
}

// At returns the i-th most recent sample; 0 is the newest. Indexes that
// were never written or fall beyond the capacity return NoValue.
func (h *History) At(i int) Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || uint64(i) >= h.head || i >= len(h.slots) {
		return NoValue
	}
	return h.slots[(h.head-1-uint64(i))&h.mask]
}

// Len returns the number of retrievable samples.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.head < uint64(len(h.slots)) {
		return int(h.head)
	}
	return len(h.slots)
}

// Cap returns the number of slots.
func (h *History) Cap() int { return len(h.slots) }

// Changed reports whether a sample was pushed since the previous call.
func (h *History) Changed() bool { return h.changed.Swap(false) }

// Snapshot returns up to n samples, newest first, stopping at the first
// slot without a value. n <= 0 means the whole capacity.
func (h *History) Snapshot(n int) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.slots) {
		n = len(h.slots)
	}
	if uint64(n) > h.head {
		n = int(h.head)
	}
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		s := h.slots[(h.head-1-uint64(i))&h.mask]
		if !s.Valid() {
			break
		}
		out = append(out, s)
	}
	return out
}
