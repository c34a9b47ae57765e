//go:build !windows

package serial

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestApplyTermiosSetsRawModeAndVMinVTime(t *testing.T) {
	var term unix.Termios
	applyTermios(&term, Config{Baud: 9600, Parity: ParityNone, DataBits: 8, StopBits: 1, Flow: FlowNone})

	if term.Lflag&unix.ICANON != 0 {
		t.Fatal("expected ICANON cleared for raw mode")
	}
	if term.Cc[unix.VMIN] != 1 || term.Cc[unix.VTIME] != 0 {
		t.Fatalf("VMIN/VTIME = %d/%d, want 1/0", term.Cc[unix.VMIN], term.Cc[unix.VTIME])
	}
}

func TestApplyTermiosParityAndDataBits(t *testing.T) {
	var term unix.Termios
	applyTermios(&term, Config{Baud: 9600, Parity: ParityEven, DataBits: 7, StopBits: 2, Flow: FlowNone})

	if term.Cflag&unix.PARENB == 0 {
		t.Fatal("expected PARENB set for even parity")
	}
	if term.Cflag&unix.PARODD != 0 {
		t.Fatal("expected PARODD clear for even parity")
	}
	if term.Cflag&unix.CSTOPB == 0 {
		t.Fatal("expected CSTOPB set for 2 stop bits")
	}
	if term.Cflag&unix.CS7 == 0 {
		t.Fatal("expected CS7 set for 7 data bits")
	}
}

func TestApplyTermiosFlowControl(t *testing.T) {
	var term unix.Termios
	applyTermios(&term, Config{Baud: 9600, DataBits: 8, StopBits: 1, Flow: FlowRTSCTS})
	if term.Cflag&unix.CRTSCTS == 0 {
		t.Fatal("expected CRTSCTS set for RTS/CTS flow control")
	}

	var term2 unix.Termios
	applyTermios(&term2, Config{Baud: 9600, DataBits: 8, StopBits: 1, Flow: FlowXonXoff})
	if term2.Iflag&(unix.IXON|unix.IXOFF) == 0 {
		t.Fatal("expected IXON|IXOFF set for software flow control")
	}
}
