package buffer

import "time"

// Direction identifies one of the two directional byte flows the
// bridge moves: modem-client output toward the remote host, or remote
// host output toward the modem client.
type Direction int

const (
	SerialToTelnet Direction = iota
	TelnetToSerial
)

func (d Direction) String() string {
	if d == SerialToTelnet {
		return "serial->telnet"
	}
	return "telnet->serial"
}

// PipelineState is the activity state of one direction's Pipeline.
type PipelineState int

const (
	Idle PipelineState = iota
	Active
	Blocked
	Errored
)

func (s PipelineState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Active:
		return "ACTIVE"
	case Blocked:
		return "BLOCKED"
	case Errored:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Pipeline owns one DoubleBuffer for one Direction and tracks the
// per-timeslice accounting the fair scheduler needs, per spec.md §3/§4.6.
type Pipeline struct {
	Direction Direction
	Buffer    *DoubleBuffer

	state             PipelineState
	bytesProcessed    uint64
	bytesInTimeslice  int
	lastTimesliceAt   time.Time
	backpressurePaused bool
}

// NewPipeline allocates a Pipeline for dir with a DoubleBuffer of the
// given per-ring capacity.
func NewPipeline(dir Direction, ringCapacity int) *Pipeline {
	return &Pipeline{
		Direction:       dir,
		Buffer:          NewDoubleBuffer(ringCapacity),
		state:           Idle,
		lastTimesliceAt: time.Time{},
	}
}

// State returns the pipeline's current activity state.
func (p *Pipeline) State() PipelineState { return p.state }

// SetState updates the pipeline's activity state.
func (p *Pipeline) SetState(s PipelineState) { p.state = s }

// HasData reports whether the drain side currently has anything queued.
func (p *Pipeline) HasData() bool { return !p.Buffer.Shadow().IsEmpty() }

// BeginTimeslice resets the per-timeslice byte counter and records the
// start time, called when the scheduler picks this pipeline to run.
func (p *Pipeline) BeginTimeslice(now time.Time) {
	p.bytesInTimeslice = 0
	p.lastTimesliceAt = now
}

// RecordDrain accounts n freshly drained bytes against both the
// lifetime and the current-timeslice counters.
func (p *Pipeline) RecordDrain(n int) {
	p.bytesProcessed += uint64(n)
	p.bytesInTimeslice += n
}

// BytesInTimeslice returns bytes drained since BeginTimeslice.
func (p *Pipeline) BytesInTimeslice() int { return p.bytesInTimeslice }

// BytesProcessed returns the lifetime drained byte count.
func (p *Pipeline) BytesProcessed() uint64 { return p.bytesProcessed }

// Paused reports whether backpressure has told the upstream reader for
// this pipeline to stop issuing new reads.
func (p *Pipeline) Paused() bool { return p.backpressurePaused }

// SetPaused toggles the backpressure-pause flag.
func (p *Pipeline) SetPaused(v bool) { p.backpressurePaused = v }
