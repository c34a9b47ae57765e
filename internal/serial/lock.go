//go:build !windows

package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/onionmixer/modembridge/internal/bridgeerr"
)

const lockDir = "/var/lock"

// lockFile is a UUCP-style exclusive serial device lock: a file named
// LCK..<devname> in /var/lock containing the owning PID, reclaimed if
// the recorded PID is no longer alive.
type lockFile struct {
	path string
}

func lockPathFor(device string) string {
	return filepath.Join(lockDir, "LCK.."+filepath.Base(device))
}

// acquireLock creates the lock file for device, reclaiming it first if
// the PID it names is dead.
func acquireLock(device string) (*lockFile, error) {
	path := lockPathFor(device)

	if existing, err := os.ReadFile(path); err == nil {
		if pid, ok := parseLockPID(existing); ok && !processAlive(pid) {
			os.Remove(path)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.Serial, err, "lock %s held by another process", device)
	}
	fmt.Fprintf(f, "%10d\n", os.Getpid())
	f.Close()
	return &lockFile{path: path}, nil
}

func (l *lockFile) release() {
	if l == nil {
		return
	}
	os.Remove(l.path)
}

func parseLockPID(data []byte) (int, bool) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// processAlive reports whether pid is a live process, via the
// POSIX kill(pid, 0) idiom.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
