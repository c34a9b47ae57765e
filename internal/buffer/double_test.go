package buffer

import (
	"testing"
	"time"
)

func TestWatermarkMonotone(t *testing.T) {
	cap := 100
	prev := Empty
	for avail := 0; avail <= cap; avail += 5 {
		lvl := WatermarkLevel(avail, cap)
		if lvl < prev {
			t.Fatalf("watermark regressed at avail=%d: %v < %v", avail, lvl, prev)
		}
		prev = lvl
	}
}

func TestWatermarkBoundaries(t *testing.T) {
	cases := []struct {
		avail, cap int
		want       Level
	}{
		{0, 100, Empty},
		{20, 100, Low},
		{21, 100, Normal},
		{60, 100, Normal},
		{61, 100, High},
		{80, 100, High},
		{81, 100, Critical},
		{100, 100, Critical},
	}
	for _, c := range cases {
		if got := WatermarkLevel(c.avail, c.cap); got != c.want {
			t.Errorf("WatermarkLevel(%d,%d) = %v, want %v", c.avail, c.cap, got, c.want)
		}
	}
}

func TestDoubleBufferSwapRequiresEmptyShadowUnlessOverride(t *testing.T) {
	d := NewDoubleBuffer(16)
	d.Active().Write([]byte("data"))
	if !d.Swap(true) {
		t.Fatal("expected initial override swap to succeed")
	}
	// "data" is now on the shadow side, undrained; active has fresh writes.
	d.Active().Write([]byte("more"))

	if d.Swap(false) {
		t.Fatal("expected swap to be refused while shadow still has undrained data")
	}
	if !d.Swap(true) {
		t.Fatal("expected override swap to succeed")
	}
	if d.SwapCount() != 2 {
		t.Fatalf("swap count = %d, want 2", d.SwapCount())
	}
}

func TestDoubleBufferWriteWhileDrain(t *testing.T) {
	d := NewDoubleBuffer(4)
	if n := d.WriteTimed([]byte("abcd"), time.Now().Add(time.Second)); n != 4 {
		t.Fatalf("initial fill: got %d", n)
	}
	// Active is now full; a further write must trigger an (empty-shadow)
	// swap so the producer keeps making progress.
	if n := d.WriteTimed([]byte("ef"), time.Now().Add(time.Second)); n != 2 {
		t.Fatalf("write-while-drain: got %d, want 2", n)
	}
	if d.SwapCount() != 1 {
		t.Fatalf("expected exactly one swap, got %d", d.SwapCount())
	}
}
