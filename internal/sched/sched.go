// Package sched implements the bidirectional fair scheduler of
// spec.md §4.7: quantum-based round robin between the serial->telnet
// and telnet->serial pipelines, with adaptive quantum sizing, EMA
// latency tracking, and starvation recovery.
package sched

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/onionmixer/modembridge/internal/buffer"
)

// Violation is the three-valued latency verdict of spec.md §9's
// resolution of the original code's overloaded return codes: a plain
// bool cannot distinguish "fine", "elevated but tolerable", and "must
// collapse the quantum now", so detect_violation gets its own type.
type Violation int

const (
	NoViolation Violation = iota
	Warning
	ErrorViolation
)

func (v Violation) String() string {
	switch v {
	case NoViolation:
		return "none"
	case Warning:
		return "warning"
	case ErrorViolation:
		return "error"
	default:
		return "unknown"
	}
}

const (
	BaseQuantum  = 50 * time.Millisecond
	MinQuantum   = 10 * time.Millisecond
	MaxQuantum   = 200 * time.Millisecond
	StarvationMs = 500 * time.Millisecond

	WeightBalanceRatio    = 0.6 // favor serial slightly on ties
	MaxBytesPerQuantum    = 1024
	ChunkSize             = 256
	LatencyWarningMs      = 100.0
	LatencyErrorMs        = 200.0
	BacklogHighBytes      = 4096
	BacklogLowBytes       = 512
	BacklogImbalanceRatio = 3.0
)

// latencyStats tracks one direction's exponential moving average of
// service latency (α=0.9) plus the observed maximum, per spec.md §4.7.
type latencyStats struct {
	ema     float64
	max     float64
	samples uint64
}

func (l *latencyStats) record(elapsed time.Duration) {
	ms := float64(elapsed) / float64(time.Millisecond)
	if l.samples == 0 {
		l.ema = ms
	} else {
		l.ema = 0.9*l.ema + 0.1*ms
	}
	if ms > l.max {
		l.max = ms
	}
	l.samples++
}

func (l *latencyStats) violation() Violation {
	if l.max > LatencyErrorMs {
		return ErrorViolation
	}
	if l.ema > LatencyWarningMs {
		return Warning
	}
	return NoViolation
}

// State is the fair scheduler's mutable run state, mirroring spec.md
// §3's SchedulerState. It is driven by one goroutine (the management
// thread) and is not internally synchronized — callers needing
// concurrent access must add their own lock.
type State struct {
	Current     buffer.Direction
	quantum     time.Duration
	consecutive int
	lastService [2]time.Time
	stats       [2]latencyStats

	// limiter bounds bytes written per quantum to MaxBytesPerQuantum,
	// the same token-bucket-with-capped-burst shape the teacher's
	// shaper.go uses for writeWithTokenBucket: rate derived from
	// BaseQuantum so a full quantum's worth of tokens regenerates once
	// per quantum, burst capped at MaxBytesPerQuantum.
	limiter *rate.Limiter
}

// New returns scheduler state starting on serial->telnet with the
// base quantum.
func New() *State {
	bytesPerSec := float64(MaxBytesPerQuantum) / BaseQuantum.Seconds()
	return &State{
		Current: buffer.SerialToTelnet,
		quantum: BaseQuantum,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), MaxBytesPerQuantum),
	}
}

// BudgetBytes reports how many bytes may be drained right now without
// exceeding the quantum's byte budget, capped at want and at the
// limiter's burst size, mirroring the teacher's burst-capped write loop.
func (s *State) BudgetBytes(want int) int {
	burst := s.limiter.Burst()
	if want > burst {
		want = burst
	}
	if !s.limiter.AllowN(time.Now(), want) {
		// Not enough tokens for the full request; take whatever a
		// single token's worth of burst allows this instant.
		if want > 1 && s.limiter.AllowN(time.Now(), 1) {
			return 1
		}
		return 0
	}
	return want
}

// Quantum returns the current quantum duration.
func (s *State) Quantum() time.Duration { return s.quantum }

func other(d buffer.Direction) buffer.Direction {
	if d == buffer.SerialToTelnet {
		return buffer.TelnetToSerial
	}
	return buffer.SerialToTelnet
}

// IsStarving reports whether dir has gone unserviced longer than
// starvation_threshold_ms as of now.
func (s *State) IsStarving(dir buffer.Direction, now time.Time) bool {
	last := s.lastService[dir]
	if last.IsZero() {
		return false
	}
	return now.Sub(last) > StarvationMs
}

// ShouldForceSwitch reports whether the scheduler must abandon the
// current direction in favor of cand regardless of remaining quantum,
// because cand is starving or the current direction has breached the
// latency error threshold.
func (s *State) ShouldForceSwitch(cand buffer.Direction, now time.Time) bool {
	if s.IsStarving(cand, now) {
		return true
	}
	return s.stats[s.Current].violation() == ErrorViolation
}

// PickDirection implements spec.md §4.7 step 1: stick with the active
// pipeline while it has data and budget left in its timeslice, unless
// a force-switch condition fires.
func (s *State) PickDirection(pipelines [2]*buffer.Pipeline, now time.Time) buffer.Direction {
	cur := pipelines[s.Current]
	alt := other(s.Current)

	if s.ShouldForceSwitch(alt, now) {
		return alt
	}
	if cur.HasData() && cur.BytesInTimeslice() < MaxBytesPerQuantum {
		return s.Current
	}
	return alt
}

// BeginIteration records the quantum start for the chosen direction,
// switching Current if needed.
func (s *State) BeginIteration(dir buffer.Direction, pipelines [2]*buffer.Pipeline, now time.Time) {
	if dir != s.Current {
		s.consecutive = 0
	}
	s.Current = dir
	pipelines[dir].BeginTimeslice(now)
}

// EndIteration records the elapsed service time for dir, updates its
// EMA/max latency, the last-service timestamp, and recomputes the
// quantum per spec.md §4.7 step 5.
func (s *State) EndIteration(dir buffer.Direction, elapsed time.Duration, now time.Time, backlogs [2]int) {
	s.stats[dir].record(elapsed)
	s.lastService[dir] = now
	s.recomputeQuantum(backlogs)
}

func (s *State) recomputeQuantum(backlogs [2]int) {
	total := backlogs[0] + backlogs[1]
	q := s.quantum

	switch {
	case total > BacklogHighBytes:
		q = time.Duration(float64(q) * 0.5)
	case total < BacklogLowBytes:
		q = time.Duration(float64(q) * 1.5)
	}

	imbalance := backlogRatio(backlogs[0], backlogs[1])
	if imbalance > BacklogImbalanceRatio {
		q = time.Duration(float64(q) * 0.7)
	}

	for _, st := range s.stats {
		if st.violation() == ErrorViolation {
			q = MinQuantum
		}
	}

	if q < MinQuantum {
		q = MinQuantum
	}
	if q > MaxQuantum {
		q = MaxQuantum
	}
	s.quantum = q
}

func backlogRatio(a, b int) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	lo, hi := float64(a), float64(b)
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == 0 {
		return float64(hi + 1)
	}
	return hi / lo
}

// ApplyStarvationRecovery implements spec.md §4.7's starvation
// handling: a single starving direction gets the max quantum for its
// next iteration; both starving simultaneously collapses to the min
// quantum to force rapid alternation.
func (s *State) ApplyStarvationRecovery(now time.Time) {
	serialStarving := s.IsStarving(buffer.SerialToTelnet, now)
	telnetStarving := s.IsStarving(buffer.TelnetToSerial, now)

	switch {
	case serialStarving && telnetStarving:
		s.quantum = MinQuantum
	case serialStarving:
		s.Current = buffer.SerialToTelnet
		s.quantum = MaxQuantum
	case telnetStarving:
		s.Current = buffer.TelnetToSerial
		s.quantum = MaxQuantum
	}
}

// Weights returns the fair-queue tie-break weights of spec.md §4.7:
// 5/5 by default, shifting to 7/3 toward whichever direction has at
// least twice the other's backlog.
func Weights(backlogs [2]int) (serial, telnet float64) {
	serial, telnet = 5, 5
	if backlogs[buffer.SerialToTelnet] >= 2*backlogs[buffer.TelnetToSerial] && backlogs[buffer.SerialToTelnet] > 0 {
		return 7, 3
	}
	if backlogs[buffer.TelnetToSerial] >= 2*backlogs[buffer.SerialToTelnet] && backlogs[buffer.TelnetToSerial] > 0 {
		return 3, 7
	}
	return serial, telnet
}
