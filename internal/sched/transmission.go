package sched

import "time"

// TransmissionCtrl drives periodic injection of a fixed payload (a
// timestamp or keepalive line) onto the serial side, independent of
// application traffic. The ticking/due-time bookkeeping mirrors the
// teacher's delayed-chunk timer in its traffic shaper, adapted here to
// a single recurring injection instead of a per-byte delay queue.
type TransmissionCtrl struct {
	Enabled     bool
	Immediate   bool
	FirstDelay  time.Duration
	MinInterval time.Duration
	Prefix      string
	Suffix      string

	nextDueAt time.Time
	lastSent  time.Time
	totalSent uint64
}

// NewTransmissionCtrl returns a disabled controller; callers set
// fields then call Arm to schedule the first injection.
func NewTransmissionCtrl() *TransmissionCtrl {
	return &TransmissionCtrl{}
}

// Arm schedules the first due time relative to now, honoring
// Immediate (fire right away) vs FirstDelay.
func (t *TransmissionCtrl) Arm(now time.Time) {
	if !t.Enabled {
		return
	}
	if t.Immediate {
		t.nextDueAt = now
		return
	}
	t.nextDueAt = now.Add(t.FirstDelay)
}

// Due reports whether an injection is due at now.
func (t *TransmissionCtrl) Due(now time.Time) bool {
	if !t.Enabled || t.nextDueAt.IsZero() {
		return false
	}
	return !now.Before(t.nextDueAt)
}

// Fire renders the next payload (Prefix + payload + Suffix), advances
// the due time by MinInterval, and records bookkeeping. Callers are
// expected to have already confirmed Due(now).
func (t *TransmissionCtrl) Fire(now time.Time, payload string) string {
	t.lastSent = now
	t.totalSent++
	t.nextDueAt = now.Add(t.MinInterval)
	return t.Prefix + payload + t.Suffix
}

// TotalSent returns the lifetime count of injections fired.
func (t *TransmissionCtrl) TotalSent() uint64 { return t.totalSent }

// LastSent returns the time of the most recent injection.
func (t *TransmissionCtrl) LastSent() time.Time { return t.lastSent }
