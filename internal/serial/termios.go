//go:build !windows

package serial

import "golang.org/x/sys/unix"

// ioctlGetTermios/ioctlSetTermios mirror the teacher's own naming for
// the termios ioctl request numbers. Both are the Linux requests:
// TCGETS, and TCSETSW, which applies the new settings once pending
// output has drained (tcsetattr's TCSADRAIN).
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETSW
)

// Parity selects the serial line's parity mode.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// Flow selects the serial line's flow-control mode.
type Flow int

const (
	FlowNone Flow = iota
	FlowXonXoff
	FlowRTSCTS
	FlowBoth
)

// Config is the full set of line parameters SerialEndpoint.Configure
// applies, per spec.md §6's recognized BAUDRATE/BIT_PARITY/BIT_DATA/
// BIT_STOP/FLOW config keys.
type Config struct {
	Baud     uint32
	Parity   Parity
	DataBits int
	StopBits int
	Flow     Flow
}

var baudConstants = map[uint32]uint32{
	300:    unix.B300,
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

func applyTermios(t *unix.Termios, cfg Config) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Oflag |= unix.OPOST | unix.ONLCR
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CREAD | unix.CLOCAL

	switch cfg.DataBits {
	case 7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}
	if cfg.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}
	switch cfg.Parity {
	case ParityEven:
		t.Cflag |= unix.PARENB
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	}
	switch cfg.Flow {
	case FlowXonXoff:
		t.Iflag |= unix.IXON | unix.IXOFF
	case FlowRTSCTS:
		t.Cflag |= unix.CRTSCTS
	case FlowBoth:
		t.Iflag |= unix.IXON | unix.IXOFF
		t.Cflag |= unix.CRTSCTS
	}

	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if b, ok := baudConstants[cfg.Baud]; ok {
		t.Ispeed = b
		t.Ospeed = b
		t.Cflag &^= unix.CBAUD
		t.Cflag |= b
	}
}
