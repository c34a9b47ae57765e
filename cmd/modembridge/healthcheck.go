//go:build !windows
// +build !windows

package main

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/creack/pty"

	"github.com/onionmixer/modembridge/internal/serial"
)

// runHealthCheck runs two self-tests without any real hardware or
// remote host: a pty pair stands in for the modem's serial line and is
// read through serial.Endpoint, and a loopback TCP echo listener checks
// plain TCP round-tripping (telnet.Endpoint is not involved). It prints
// a short report and returns an exit code suitable for os.Exit.
func runHealthCheck() int {
	fmt.Println("modembridge health check")

	ok := true
	if err := checkSerialLoopback(); err != nil {
		fmt.Printf("[FAIL] serial loopback: %v\n", err)
		ok = false
	} else {
		fmt.Println("[ OK ] serial loopback (pty)")
	}

	if err := checkTelnetLoopback(); err != nil {
		fmt.Printf("[FAIL] telnet loopback: %v\n", err)
		ok = false
	} else {
		fmt.Println("[ OK ] telnet loopback (tcp)")
	}

	if ok {
		fmt.Println("health check passed")
		return exitOK
	}
	fmt.Println("health check failed")
	return exitConnection
}

// checkSerialLoopback opens a pty pair, points a serial.Endpoint at the
// slave side, writes known bytes into the master side, and confirms
// they arrive unchanged.
func checkSerialLoopback() error {
	master, slave, err := pty.Open()
	if err != nil {
		return fmt.Errorf("opening pty: %w", err)
	}
	defer master.Close()
	defer slave.Close()

	ep, err := serial.Open(slave.Name(), serial.Config{
		Baud: 9600, Parity: serial.ParityNone, DataBits: 8, StopBits: 1, Flow: serial.FlowNone,
	})
	if err != nil {
		return fmt.Errorf("opening serial endpoint on %s: %w", slave.Name(), err)
	}
	defer ep.Close()

	want := []byte("HEALTHCHECK\r\n")
	if _, err := master.Write(want); err != nil {
		return fmt.Errorf("writing to pty master: %w", err)
	}

	got := make([]byte, len(want))
	read := 0
	deadline := time.Now().Add(2 * time.Second)
	for read < len(want) && time.Now().Before(deadline) {
		n, err := ep.Read(got[read:])
		if err != nil {
			return fmt.Errorf("reading from serial endpoint: %w", err)
		}
		read += n
	}
	if !bytes.Equal(got[:read], want) {
		return fmt.Errorf("loopback mismatch: got %q, want %q", got[:read], want)
	}
	return nil
}

// checkTelnetLoopback starts a loopback TCP listener that echoes
// bytes back, dials it with net.DialTimeout, and confirms a round trip.
// No telnet option negotiation or IAC escaping takes place.
func checkTelnetLoopback() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				conn.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		return fmt.Errorf("dialing loopback listener: %w", err)
	}
	defer conn.Close()

	want := []byte("PING")
	if _, err := conn.Write(want); err != nil {
		return fmt.Errorf("writing: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len(want))
	if _, err := conn.Read(got); err != nil {
		return fmt.Errorf("reading echo: %w", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("echo mismatch: got %q, want %q", got, want)
	}
	return nil
}
