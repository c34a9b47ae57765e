// Package buffer implements the DoubleBuffer (active/shadow ring pair
// with an atomic swap) and the watermark/backpressure policy of
// spec.md §4.6.
package buffer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/onionmixer/modembridge/internal/ring"
)

// Level is a discretized fill level used to drive backpressure
// decisions, per spec.md §4.6.
type Level int

const (
	Empty Level = iota
	Low
	Normal
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case Empty:
		return "EMPTY"
	case Low:
		return "LOW"
	case Normal:
		return "NORMAL"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// WatermarkLevel classifies available bytes against capacity. Thresholds
// are the ones spec.md §4.6 specifies: LOW <= 20%, NORMAL <= 60%,
// HIGH <= 80%, CRITICAL above that.
func WatermarkLevel(available, capacity int) Level {
	if available <= 0 {
		return Empty
	}
	pct := float64(available) / float64(capacity)
	switch {
	case pct <= 0.20:
		return Low
	case pct <= 0.60:
		return Normal
	case pct <= 0.80:
		return High
	default:
		return Critical
	}
}

// DoubleBuffer is a pair of SyncedRings (active, shadow) behind an
// atomic index, so a reader draining the shadow ring never observes a
// swap mid-read: the swap only ever happens while the DoubleBuffer's own
// lock is held, and the index readers use is loaded atomically.
type DoubleBuffer struct {
	mu      sync.Mutex
	rings   [2]*ring.SyncedRing
	active  atomic.Int32 // index into rings of the active (write) side
	swapped uint64       // diagnostic counter
}

// NewDoubleBuffer allocates a DoubleBuffer whose two rings each have the
// given capacity.
func NewDoubleBuffer(capacity int) *DoubleBuffer {
	return &DoubleBuffer{
		rings: [2]*ring.SyncedRing{
			ring.NewSyncedRing(capacity),
			ring.NewSyncedRing(capacity),
		},
	}
}

// Active returns the current active (write-side) ring.
func (d *DoubleBuffer) Active() *ring.SyncedRing {
	return d.rings[d.active.Load()]
}

// Shadow returns the current shadow (drain-side) ring.
func (d *DoubleBuffer) Shadow() *ring.SyncedRing {
	return d.rings[1-d.active.Load()]
}

// CanSwap reports whether a swap is currently permitted: the shadow
// side is empty, meaning the scheduler has already drained everything
// handed to it on the last swap so handing it a fresh batch can't
// abandon unread bytes, or override is set (used during scheduler-
// driven starvation recovery, per spec.md §4.6).
func (d *DoubleBuffer) CanSwap(override bool) bool {
	return override || d.Shadow().IsEmpty()
}

// Swap exchanges active and shadow if CanSwap(override) holds, and
// reports whether it did. The exchange itself is an atomic index flip
// guarded by d.mu so concurrent writers never observe a torn state.
func (d *DoubleBuffer) Swap(override bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.CanSwap(override) {
		return false
	}
	d.active.Store(1 - d.active.Load())
	d.swapped++
	return true
}

// SwapCount returns the number of swaps performed, for diagnostics/tests.
func (d *DoubleBuffer) SwapCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swapped
}

// WriteTimed appends to the active ring, swapping in the shadow first if
// the active ring is currently full and a swap is possible; this is how
// a producer keeps making progress while the scheduler drains the
// shadow side (spec.md §4.6: "enables write-while-drain").
func (d *DoubleBuffer) WriteTimed(data []byte, deadline time.Time) int {
	active := d.Active()
	if active.IsFull() {
		d.Swap(false)
		active = d.Active()
	}
	return active.WriteTimed(data, deadline)
}

// Watermark reports the fill level of the shadow ring (the side the
// scheduler is draining, and therefore the one backpressure decisions
// care about) against its capacity.
func (d *DoubleBuffer) Watermark() Level {
	shadow := d.Shadow()
	return WatermarkLevel(shadow.Available(), shadow.Cap())
}

// Backlog returns the combined available bytes across both rings.
func (d *DoubleBuffer) Backlog() int {
	return d.rings[0].Available() + d.rings[1].Available()
}

// Close closes both underlying rings, waking any blocked waiters.
func (d *DoubleBuffer) Close() {
	d.rings[0].Close()
	d.rings[1].Close()
}
