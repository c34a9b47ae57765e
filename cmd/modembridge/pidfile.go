//go:build !windows
// +build !windows

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

const defaultPIDFilePath = "/var/run/modembridge.pid"

// PIDFile is an exclusive process lock file held open for the process
// lifetime, mirroring the UUCP-style stale-PID reclaim the serial
// package uses for its device locks.
type PIDFile struct {
	path string
	f    *os.File
}

// AcquirePIDFile creates path with the current PID, reclaiming it first
// if the PID it names is no longer alive.
func AcquirePIDFile(path string) (*PIDFile, error) {
	if existing, err := os.ReadFile(path); err == nil {
		if pid, ok := parsePID(existing); ok && !pidAlive(pid) {
			os.Remove(path)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("pidfile %s: %w (is another instance running?)", path, err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &PIDFile{path: path, f: f}, nil
}

// Release removes the pidfile and closes the held handle.
func (p *PIDFile) Release() {
	if p == nil {
		return
	}
	if p.f != nil {
		p.f.Close()
	}
	os.Remove(p.path)
}

func parsePID(data []byte) (int, bool) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
