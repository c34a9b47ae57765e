package sched

import (
	"testing"
	"time"

	"github.com/onionmixer/modembridge/internal/buffer"
)

func newPipelines() [2]*buffer.Pipeline {
	return [2]*buffer.Pipeline{
		buffer.NewPipeline(buffer.SerialToTelnet, 4096),
		buffer.NewPipeline(buffer.TelnetToSerial, 4096),
	}
}

func TestPickDirectionStaysWhileDataAndBudgetRemain(t *testing.T) {
	s := New()
	pipelines := newPipelines()
	pipelines[buffer.SerialToTelnet].Buffer.Active().Write([]byte("hello"))
	pipelines[buffer.SerialToTelnet].Buffer.Swap(true)

	now := time.Now()
	dir := s.PickDirection(pipelines, now)
	if dir != buffer.SerialToTelnet {
		t.Fatalf("dir = %v, want serial->telnet", dir)
	}
}

func TestPickDirectionSwitchesWhenEmpty(t *testing.T) {
	s := New()
	pipelines := newPipelines()
	now := time.Now()
	dir := s.PickDirection(pipelines, now)
	if dir != buffer.TelnetToSerial {
		t.Fatalf("dir = %v, want telnet->serial (no data on serial side)", dir)
	}
}

func TestLatencyEMAAndViolation(t *testing.T) {
	var l latencyStats
	for i := 0; i < 5; i++ {
		l.record(250 * time.Millisecond)
	}
	if l.violation() != ErrorViolation {
		t.Fatalf("violation = %v, want ErrorViolation", l.violation())
	}
}

func TestLatencyWarningBelowErrorThreshold(t *testing.T) {
	var l latencyStats
	for i := 0; i < 10; i++ {
		l.record(150 * time.Millisecond)
	}
	if l.violation() != Warning {
		t.Fatalf("violation = %v, want Warning", l.violation())
	}
}

func TestRecomputeQuantumShrinksUnderHighBacklog(t *testing.T) {
	s := New()
	s.quantum = BaseQuantum
	s.recomputeQuantum([2]int{3000, 3000})
	if s.quantum >= BaseQuantum {
		t.Fatalf("quantum = %v, want shrunk below base", s.quantum)
	}
}

func TestRecomputeQuantumGrowsUnderLowBacklog(t *testing.T) {
	s := New()
	s.quantum = BaseQuantum
	s.recomputeQuantum([2]int{10, 10})
	if s.quantum <= BaseQuantum {
		t.Fatalf("quantum = %v, want grown above base", s.quantum)
	}
}

func TestRecomputeQuantumClampsToMin(t *testing.T) {
	s := New()
	s.quantum = MinQuantum
	s.stats[buffer.SerialToTelnet].max = 300 // force ErrorViolation
	s.recomputeQuantum([2]int{10, 10})
	if s.quantum != MinQuantum {
		t.Fatalf("quantum = %v, want clamped to MinQuantum", s.quantum)
	}
}

func TestStarvationRecoveryBothStarvingCollapsesQuantum(t *testing.T) {
	s := New()
	past := time.Now().Add(-time.Second)
	s.lastService[buffer.SerialToTelnet] = past
	s.lastService[buffer.TelnetToSerial] = past

	s.ApplyStarvationRecovery(time.Now())
	if s.quantum != MinQuantum {
		t.Fatalf("quantum = %v, want MinQuantum when both starving", s.quantum)
	}
}

func TestStarvationRecoveryOneDirection(t *testing.T) {
	s := New()
	s.lastService[buffer.SerialToTelnet] = time.Now()
	s.lastService[buffer.TelnetToSerial] = time.Now().Add(-time.Second)

	s.ApplyStarvationRecovery(time.Now())
	if s.Current != buffer.TelnetToSerial {
		t.Fatalf("current = %v, want telnet->serial recovered", s.Current)
	}
	if s.quantum != MaxQuantum {
		t.Fatalf("quantum = %v, want MaxQuantum", s.quantum)
	}
}

func TestWeightsShiftTowardHeavierBacklog(t *testing.T) {
	serial, telnet := Weights([2]int{100, 10})
	if serial != 7 || telnet != 3 {
		t.Fatalf("weights = %v/%v, want 7/3", serial, telnet)
	}
}

func TestWeightsDefaultOnBalancedBacklog(t *testing.T) {
	serial, telnet := Weights([2]int{10, 10})
	if serial != 5 || telnet != 5 {
		t.Fatalf("weights = %v/%v, want 5/5", serial, telnet)
	}
}

func TestBudgetBytesCapsAtBurstAndWant(t *testing.T) {
	s := New()
	if got := s.BudgetBytes(ChunkSize); got != ChunkSize {
		t.Fatalf("first call: got %d, want %d (fresh burst covers one chunk)", got, ChunkSize)
	}
}

func TestBudgetBytesExhaustsAfterManyChunks(t *testing.T) {
	s := New()
	drained := 0
	for i := 0; i < 10; i++ {
		drained += s.BudgetBytes(ChunkSize)
	}
	if drained > MaxBytesPerQuantum+ChunkSize {
		t.Fatalf("drained %d bytes with no time passing, want roughly capped near MaxBytesPerQuantum", drained)
	}
}
