//go:build !windows

package serial

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/onionmixer/modembridge/internal/bridgeerr"
)

// WriteWithDeadline behaves like Write but bounds total blocking time
// by deadline. It widens the readiness wait to watch writability (the
// plain Read path only ever watches POLLIN) and returns a TIMEOUT
// error if deadline passes before every byte is written.
func (e *Endpoint) WriteWithDeadline(buf []byte, deadline time.Time) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	total := 0
	for total < len(buf) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return total, bridgeerr.New(bridgeerr.Timeout, "write deadline exceeded")
		}

		n, err := unix.Write(e.fd, buf[total:])
		if err != nil {
			if err == unix.EAGAIN {
				pfd := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLOUT}}
				ms := int(remaining / time.Millisecond)
				if ms <= 0 {
					ms = 1
				}
				if _, perr := unix.Poll(pfd, ms); perr != nil {
					return total, bridgeerr.Wrap(bridgeerr.Serial, perr, "poll for writability")
				}
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
