//go:build !windows

package serial

import (
	"os"
	"testing"
)

func TestParseLockPID(t *testing.T) {
	pid, ok := parseLockPID([]byte("      1234\n"))
	if !ok || pid != 1234 {
		t.Fatalf("pid=%d ok=%v, want 1234/true", pid, ok)
	}
	if _, ok := parseLockPID([]byte("not-a-pid")); ok {
		t.Fatal("expected parse failure on garbage content")
	}
}

func TestProcessAliveForSelf(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Fatal("own process should report alive")
	}
}

func TestLockPathFor(t *testing.T) {
	got := lockPathFor("/dev/ttyS0")
	want := "/var/lock/LCK..ttyS0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
