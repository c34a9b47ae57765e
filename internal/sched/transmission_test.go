package sched

import (
	"testing"
	"time"
)

func TestTransmissionCtrlFirstDelay(t *testing.T) {
	tc := NewTransmissionCtrl()
	tc.Enabled = true
	tc.FirstDelay = time.Second
	tc.MinInterval = 2 * time.Second

	base := time.Now()
	tc.Arm(base)

	if tc.Due(base) {
		t.Fatal("should not be due before FirstDelay elapses")
	}
	if !tc.Due(base.Add(time.Second)) {
		t.Fatal("should be due once FirstDelay elapses")
	}
}

func TestTransmissionCtrlFireAdvancesDueTime(t *testing.T) {
	tc := NewTransmissionCtrl()
	tc.Enabled = true
	tc.Immediate = true
	tc.MinInterval = 500 * time.Millisecond
	tc.Prefix = "[ts] "

	base := time.Now()
	tc.Arm(base)
	if !tc.Due(base) {
		t.Fatal("immediate should be due right away")
	}
	out := tc.Fire(base, "12:00:00")
	if out != "[ts] 12:00:00" {
		t.Fatalf("out = %q", out)
	}
	if tc.Due(base.Add(100 * time.Millisecond)) {
		t.Fatal("should not be due again before MinInterval elapses")
	}
	if !tc.Due(base.Add(600 * time.Millisecond)) {
		t.Fatal("should be due again after MinInterval elapses")
	}
	if tc.TotalSent() != 1 {
		t.Fatalf("total sent = %d, want 1", tc.TotalSent())
	}
}

func TestTransmissionCtrlDisabledNeverDue(t *testing.T) {
	tc := NewTransmissionCtrl()
	tc.Arm(time.Now())
	if tc.Due(time.Now().Add(time.Hour)) {
		t.Fatal("disabled controller should never be due")
	}
}
