//go:build !windows

// Package serial implements SerialEndpoint: the raw character-device
// side of the bridge, with termios configuration, modem control
// signal lines, and a UUCP-style lock file.
package serial

import (
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/onionmixer/modembridge/internal/bridgeerr"
)

const (
	hardwareSettleDelay = 50 * time.Millisecond
	readPollTimeout     = 100 * time.Millisecond
	writeRetryCount     = 3
	writeRetryDelay     = 100 * time.Millisecond
	txChunkSize         = 64
	txChunkDelay        = 5 * time.Millisecond
)

// Endpoint is one open serial character device.
type Endpoint struct {
	device string
	file   *os.File
	fd     int
	cfg    Config
	lock   *lockFile

	// writeMu serializes the write-family methods: spec.md §5 has the
	// serial thread as the endpoint's sole owner for everything except
	// the scheduler-driven telnet->serial drain, which the management
	// thread writes out directly (see orchestrator.dispatch), so two
	// goroutines can call into these concurrently.
	writeMu sync.Mutex
}

// Open opens device non-blocking, reconfigures termios, switches to
// blocking reads, raises DTR, and gives the line a brief hardware
// settle delay. The termios settings found on the device are not
// saved, and Close does not restore them.
func Open(device string, cfg Config) (*Endpoint, error) {
	lock, err := acquireLock(device)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		lock.release()
		return nil, bridgeerr.Wrap(bridgeerr.Serial, err, "open %s", device)
	}

	e := &Endpoint{device: device, fd: fd, file: os.NewFile(uintptr(fd), device), lock: lock}
	if err := e.Configure(cfg); err != nil {
		e.Close()
		return nil, err
	}

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err == nil {
		unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags&^unix.O_NONBLOCK)
	}

	if err := e.SetDTR(true); err != nil {
		e.Close()
		return nil, err
	}
	time.Sleep(hardwareSettleDelay)
	return e, nil
}

// Configure applies speed/parity/data-bits/stop-bits/flow-control in
// raw mode with VMIN=1/VTIME=0, draining pending I/O first
// (TCSADRAIN).
func (e *Endpoint) Configure(cfg Config) error {
	t, err := unix.IoctlGetTermios(e.fd, ioctlGetTermios)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.Serial, err, "get termios")
	}
	applyTermios(t, cfg)
	if err := unix.IoctlSetTermios(e.fd, ioctlSetTermios, t); err != nil {
		return bridgeerr.Wrap(bridgeerr.Serial, err, "set termios")
	}
	e.cfg = cfg
	return nil
}

// Read waits up to 100ms for readability via poll, then reads once.
// Returns (0, nil) on timeout, per spec.md §4.2.
func (e *Endpoint) Read(buf []byte) (int, error) {
	pfd := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(readPollTimeout/time.Millisecond))
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.Serial, err, "poll")
	}
	if n == 0 {
		return 0, nil
	}
	if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
		return 0, bridgeerr.New(bridgeerr.Hangup, "serial device hangup")
	}
	rn, err := unix.Read(e.fd, buf)
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.Serial, err, "read")
	}
	return rn, nil
}

// Write writes all of buf, waiting for write-readiness on EAGAIN, and
// drains the line afterward to guarantee egress. Safe for concurrent
// use by multiple callers; each call's bytes are written as one
// uninterrupted unit.
func (e *Endpoint) Write(buf []byte) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	total := 0
	for total < len(buf) {
		n, err := unix.Write(e.fd, buf[total:])
		if err != nil {
			if err == unix.EAGAIN {
				pfd := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLOUT}}
				unix.Poll(pfd, int(readPollTimeout/time.Millisecond))
				continue
			}
			return total, bridgeerr.Wrap(bridgeerr.Serial, err, "write")
		}
		total += n
	}
	if err := tcdrain(e.fd); err != nil {
		return total, bridgeerr.Wrap(bridgeerr.Serial, err, "tcdrain")
	}
	return total, nil
}

// WriteRobust retries up to 3 times with 100ms spacing, checking DCD
// before each attempt; it reports HANGUP if carrier drops mid-retry.
func (e *Endpoint) WriteRobust(buf []byte) (int, error) {
	for attempt := 0; attempt < writeRetryCount; attempt++ {
		dcd, err := e.GetDCD()
		if err != nil {
			return 0, err
		}
		if !dcd {
			return 0, bridgeerr.New(bridgeerr.Hangup, "carrier lost before write")
		}
		n, err := e.Write(buf)
		if err == nil {
			return n, nil
		}
		if !bridgeerr.Is(err, bridgeerr.Serial) {
			return n, err
		}
		time.Sleep(writeRetryDelay)
	}
	return 0, bridgeerr.New(bridgeerr.Partial, "write_robust exhausted retries")
}

// WriteBuffered chunks buf into txChunkSize pieces with an inter-chunk
// delay, checking DCD every 4 chunks; it returns the partial count
// written if carrier drops mid-stream.
func (e *Endpoint) WriteBuffered(buf []byte) (int, error) {
	written := 0
	chunks := 0
	for written < len(buf) {
		end := written + txChunkSize
		if end > len(buf) {
			end = len(buf)
		}
		if chunks%4 == 0 {
			dcd, err := e.GetDCD()
			if err != nil {
				return written, err
			}
			if !dcd {
				return written, bridgeerr.New(bridgeerr.Hangup, "carrier lost mid-stream")
			}
		}
		n, err := e.Write(buf[written:end])
		written += n
		if err != nil {
			return written, err
		}
		chunks++
		time.Sleep(txChunkDelay)
	}
	return written, nil
}

// tcdrain waits for all output written to fd to be transmitted. Linux
// has no dedicated syscall for this; glibc's tcdrain is itself
// implemented as TCSBRK with a non-zero argument, which this mirrors.
func tcdrain(fd int) error {
	return unix.IoctlSetInt(fd, unix.TCSBRK, 1)
}

// Close releases the lock file and closes the device.
func (e *Endpoint) Close() error {
	if e.lock != nil {
		e.lock.release()
	}
	if e.file == nil {
		return nil
	}
	return e.file.Close()
}

// Fd returns the underlying file descriptor, for readiness-notifier
// wiring in the orchestrator.
func (e *Endpoint) Fd() int { return e.fd }
