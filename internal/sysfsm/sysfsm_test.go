package sysfsm

import (
	"testing"
	"time"
)

func TestHappyPathTransitions(t *testing.T) {
	m := New()
	path := []State{Initializing, Ready, Connecting, Negotiating, DataTransfer, Flushing, Ready}
	for _, s := range path {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %v: %v", s, err)
		}
	}
	if m.State() != Ready {
		t.Fatalf("state = %v, want READY", m.State())
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	m := New()
	if err := m.Transition(DataTransfer); err == nil {
		t.Fatal("expected error jumping straight to DATA_TRANSFER")
	}
	if m.State() != Uninitialized {
		t.Fatalf("state changed despite rejected transition: %v", m.State())
	}
}

func TestCarrierCoupling(t *testing.T) {
	m := New()
	m.Transition(Initializing)
	m.Transition(Ready)

	if err := m.CarrierRaised(); err != nil {
		t.Fatal(err)
	}
	if m.State() != Connecting {
		t.Fatalf("state = %v, want CONNECTING", m.State())
	}

	m.Transition(Negotiating)
	m.Transition(DataTransfer)

	if err := m.CarrierDropped(); err != nil {
		t.Fatal(err)
	}
	if m.State() != Flushing {
		t.Fatalf("state = %v, want FLUSHING", m.State())
	}
}

func TestCarrierDroppedNoOpBeforeReady(t *testing.T) {
	m := New()
	if err := m.CarrierDropped(); err != nil {
		t.Fatal(err)
	}
	if m.State() != Uninitialized {
		t.Fatalf("state changed: %v", m.State())
	}
}

func TestTimeoutEscalatesToError(t *testing.T) {
	m := New()
	m.SetTimeout(Connecting, time.Millisecond)
	m.Transition(Initializing)
	m.Transition(Ready)
	m.Transition(Connecting)

	now := time.Now().Add(time.Second)
	for i := 0; i < 2; i++ {
		fired, to := m.CheckTimeout(now)
		if !fired {
			t.Fatalf("round %d: expected timeout to fire", i)
		}
		if to != Ready {
			t.Fatalf("round %d: state = %v, want READY", i, to)
		}
		m.Transition(Connecting)
		now = now.Add(time.Second)
	}
	fired, to := m.CheckTimeout(now)
	if !fired || to != Error {
		t.Fatalf("expected escalation to ERROR, got fired=%v to=%v", fired, to)
	}
}
