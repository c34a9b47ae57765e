// Package sysfsm implements the orchestrator-wide system state machine
// of spec.md §4.5: the states every thread reads to decide whether to
// read, write, or hold, and the carrier-coupling rules that drive
// transitions from DCD changes.
package sysfsm

import (
	"sync"
	"time"

	"github.com/onionmixer/modembridge/internal/bridgeerr"
)

// State is one of the system's lifecycle states.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Connecting
	Negotiating
	DataTransfer
	Flushing
	ShuttingDown
	Terminated
	Error
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Initializing:
		return "INITIALIZING"
	case Ready:
		return "READY"
	case Connecting:
		return "CONNECTING"
	case Negotiating:
		return "NEGOTIATING"
	case DataTransfer:
		return "DATA_TRANSFER"
	case Flushing:
		return "FLUSHING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Terminated:
		return "TERMINATED"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// defaultTimeouts holds the per-state timeout of spec.md §4.5; states
// not listed here never time out on their own.
var defaultTimeouts = map[State]time.Duration{
	Connecting:   30 * time.Second,
	Negotiating:  15 * time.Second,
	Flushing:     5 * time.Second,
	ShuttingDown: 10 * time.Second,
}

// Connecting and Negotiating each carry a Flushing edge beyond the
// happy-path table of spec.md §4.5, because carrier coupling
// (CarrierDropped) must be able to force either state straight to
// FLUSHING when the line drops mid-connect or mid-negotiation, not
// just from DATA_TRANSFER.
var allowedTransitions = map[State]map[State]bool{
	Uninitialized: {Initializing: true},
	Initializing:  {Ready: true, Error: true},
	Ready:         {Connecting: true, ShuttingDown: true},
	Connecting:    {Negotiating: true, Ready: true, Error: true, Flushing: true},
	Negotiating:   {DataTransfer: true, Ready: true, Error: true, Flushing: true},
	DataTransfer:  {Flushing: true, Ready: true, Error: true},
	Flushing:      {Ready: true, ShuttingDown: true},
	ShuttingDown:  {Terminated: true},
	Error:         {Ready: true, Terminated: true},
}

// Machine is the orchestrator's single system state machine. It is
// safe for concurrent use: every thread (serial, telnet, management)
// may call Transition or read State from its own goroutine.
type Machine struct {
	mu            sync.Mutex
	state         State
	enteredAt     time.Time
	timeouts      map[State]time.Duration
	consecutiveTO map[State]int
}

// New returns a Machine in UNINITIALIZED state with spec.md's default
// per-state timeouts.
func New() *Machine {
	timeouts := make(map[State]time.Duration, len(defaultTimeouts))
	for k, v := range defaultTimeouts {
		timeouts[k] = v
	}
	return &Machine{
		state:         Uninitialized,
		enteredAt:     time.Time{},
		timeouts:      timeouts,
		consecutiveTO: make(map[State]int),
	}
}

// SetTimeout overrides the timeout configured for one state.
func (m *Machine) SetTimeout(s State, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts[s] = d
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition attempts to move from the current state to next. It
// returns a PROTOCOL-kind bridgeerr.Error if the edge is not in
// spec.md §4.5's transition table.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(next)
}

func (m *Machine) transitionLocked(next State) error {
	if m.state == next {
		return nil
	}
	edges := allowedTransitions[m.state]
	if !edges[next] {
		return bridgeerr.New(bridgeerr.Protocol, "illegal system transition %s -> %s", m.state, next)
	}
	m.state = next
	m.enteredAt = time.Now()
	if next == DataTransfer {
		// Reaching a healthy data-transfer session clears every
		// state's timeout-streak counter.
		m.consecutiveTO = make(map[State]int)
	}
	return nil
}

// CheckTimeout compares now against the time the current state was
// entered. If the configured timeout for the state has elapsed, it
// records the timeout, attempts the recovery edge (back to READY,
// except from Negotiating/Connecting which already target READY on
// failure), and escalates to ERROR after repeated timeouts in the same
// state. FLUSHING and SHUTTING_DOWN have no ERROR edge, so they keep
// taking their recovery edge instead. Returns whether a timeout fired
// and the state transitioned to.
func (m *Machine) CheckTimeout(now time.Time) (fired bool, to State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	timeout, ok := m.timeouts[m.state]
	if !ok || timeout <= 0 {
		return false, m.state
	}
	if m.enteredAt.IsZero() || now.Sub(m.enteredAt) < timeout {
		return false, m.state
	}

	m.consecutiveTO[m.state]++
	const maxConsecutiveTimeouts = 3
	if m.consecutiveTO[m.state] >= maxConsecutiveTimeouts && m.transitionLocked(Error) == nil {
		return true, m.state
	}

	recovery := Ready
	if m.state == Flushing || m.state == ShuttingDown {
		// Flushing times out forward toward READY same as others;
		// SHUTTING_DOWN has nowhere to recover to but TERMINATED.
		if m.state == ShuttingDown {
			recovery = Terminated
		}
	}
	m.transitionLocked(recovery)
	return true, m.state
}

// CarrierRaised implements the DCD-rising coupling of spec.md §4.5:
// from READY it drives the sequence toward CONNECTING. The caller
// (orchestrator) still performs the actual telnet connect and feeds
// NEGOTIATING/DATA_TRANSFER transitions once it completes.
func (m *Machine) CarrierRaised() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready {
		return nil
	}
	return m.transitionLocked(Connecting)
}

// CarrierDropped implements the DCD-falling coupling: any state past
// READY is forced to FLUSHING. It only changes state; the machine
// leaves FLUSHING through CheckTimeout's recovery edge to READY. The
// orchestrator does not send NO CARRIER to the modem side or close the
// telnet socket on this path.
func (m *Machine) CarrierDropped() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Uninitialized, Initializing, Ready, ShuttingDown, Terminated:
		return nil
	default:
		return m.transitionLocked(Flushing)
	}
}
