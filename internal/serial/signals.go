//go:build !windows

package serial

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/onionmixer/modembridge/internal/bridgeerr"
)

// DtrDropHangupDuration is how long DTR is held low to physically
// hang up the line, per spec.md §4.2.
const DtrDropHangupDuration = time.Second

func (e *Endpoint) modemBits() (int, error) {
	bits, err := unix.IoctlGetInt(e.fd, unix.TIOCMGET)
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.Serial, err, "TIOCMGET")
	}
	return bits, nil
}

func (e *Endpoint) setModemBit(bit int, on bool) error {
	bits, err := e.modemBits()
	if err != nil {
		return err
	}
	if on {
		bits |= bit
	} else {
		bits &^= bit
	}
	if err := unix.IoctlSetPointerInt(e.fd, unix.TIOCMSET, bits); err != nil {
		return bridgeerr.Wrap(bridgeerr.Serial, err, "TIOCMSET")
	}
	return nil
}

// SetDTR raises or lowers the DTR signal.
func (e *Endpoint) SetDTR(on bool) error { return e.setModemBit(unix.TIOCM_DTR, on) }

// SetRTS raises or lowers the RTS signal.
func (e *Endpoint) SetRTS(on bool) error { return e.setModemBit(unix.TIOCM_RTS, on) }

// GetDCD reports whether Data Carrier Detect is currently asserted.
func (e *Endpoint) GetDCD() (bool, error) {
	bits, err := e.modemBits()
	if err != nil {
		return false, err
	}
	return bits&unix.TIOCM_CD != 0, nil
}

// GetCTS reports whether Clear To Send is currently asserted.
func (e *Endpoint) GetCTS() (bool, error) {
	bits, err := e.modemBits()
	if err != nil {
		return false, err
	}
	return bits&unix.TIOCM_CTS != 0, nil
}

// GetDSR reports whether Data Set Ready is currently asserted.
func (e *Endpoint) GetDSR() (bool, error) {
	bits, err := e.modemBits()
	if err != nil {
		return false, err
	}
	return bits&unix.TIOCM_DSR != 0, nil
}

// DtrDropHangup physically hangs up the line by dropping DTR for
// DtrDropHangupDuration, then raising it again.
func (e *Endpoint) DtrDropHangup() error {
	if err := e.SetDTR(false); err != nil {
		return err
	}
	time.Sleep(DtrDropHangupDuration)
	return e.SetDTR(true)
}
