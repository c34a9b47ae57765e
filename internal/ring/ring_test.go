package ring

import (
	"testing"
	"time"
)

func TestByteRingBoundary(t *testing.T) {
	r := NewByteRing(8)
	if n := r.Write([]byte("12345678")); n != 8 {
		t.Fatalf("full write: got %d, want 8", n)
	}
	if !r.IsFull() {
		t.Fatal("expected full")
	}
	if n := r.Write([]byte("9")); n != 0 {
		t.Fatalf("overflow write: got %d, want 0", n)
	}

	out := make([]byte, 8)
	if n := r.Read(out); n != 8 || string(out) != "12345678" {
		t.Fatalf("read: got %d %q", n, out)
	}
	if !r.IsEmpty() {
		t.Fatal("expected empty")
	}
}

func TestByteRingFreePlusOneShortWrite(t *testing.T) {
	r := NewByteRing(4)
	r.Write([]byte("ab"))
	free := r.Free()
	if free != 2 {
		t.Fatalf("free: got %d, want 2", free)
	}
	data := make([]byte, free+1)
	for i := range data {
		data[i] = 'x'
	}
	if n := r.Write(data); n != free {
		t.Fatalf("short write: got %d, want %d", n, free)
	}
}

func TestByteRingInvariant(t *testing.T) {
	r := NewByteRing(16)
	var written, read int
	ops := []struct {
		write string
		read  int
	}{
		{"abc", 1},
		{"defgh", 2},
		{"", 10},
		{"ijklmnop", 3},
	}
	for _, op := range ops {
		written += r.Write([]byte(op.write))
		buf := make([]byte, op.read)
		read += r.Read(buf)
		if r.Available() != written-read {
			t.Fatalf("invariant broken: available=%d want=%d", r.Available(), written-read)
		}
		if r.Available() < 0 || r.Available() > r.Cap() {
			t.Fatalf("count out of bounds: %d", r.Available())
		}
	}
}

func TestSyncedRingWriteTimedTimeout(t *testing.T) {
	s := NewSyncedRing(2)
	s.Write([]byte("ab"))

	start := time.Now()
	n := s.WriteTimed([]byte("c"), start.Add(30*time.Millisecond))
	if n != 0 {
		t.Fatalf("expected timeout short-circuit, got n=%d", n)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestSyncedRingWriteTimedWakesOnRead(t *testing.T) {
	s := NewSyncedRing(2)
	s.Write([]byte("ab"))

	done := make(chan int, 1)
	go func() {
		done <- s.WriteTimed([]byte("c"), time.Now().Add(2*time.Second))
	}()

	time.Sleep(20 * time.Millisecond)
	buf := make([]byte, 1)
	if n := s.Read(buf); n != 1 {
		t.Fatalf("read: got %d", n)
	}

	select {
	case n := <-done:
		if n != 1 {
			t.Fatalf("expected writer to place 1 byte, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("writer never woke up after read freed space")
	}
}

func TestSyncedRingReadTimedWakesOnWrite(t *testing.T) {
	s := NewSyncedRing(4)

	done := make(chan int, 1)
	go func() {
		buf := make([]byte, 4)
		done <- s.ReadTimed(buf, time.Now().Add(2*time.Second))
	}()

	time.Sleep(20 * time.Millisecond)
	s.Write([]byte("hi"))

	select {
	case n := <-done:
		if n != 2 {
			t.Fatalf("expected reader to drain 2 bytes, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("reader never woke up after write")
	}
}
