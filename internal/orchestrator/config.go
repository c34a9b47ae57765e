package orchestrator

import "github.com/onionmixer/modembridge/internal/serial"

// Config is everything the orchestrator needs to open its endpoints
// and start bridging, independent of how it was loaded (cmd/modembridge
// parses the KEY = VALUE config file into one of these).
type Config struct {
	SerialDevice string
	SerialCfg    serial.Config

	TelnetHost string
	TelnetPort int

	RingCapacity int // per-ring byte capacity for each Pipeline's DoubleBuffer

	DataLogEnabled bool
	DataLogPath    string
}

// DefaultConfig returns the factory defaults referenced by spec.md §6
// for any key missing or invalid in the config file.
func DefaultConfig() Config {
	return Config{
		SerialDevice: "/dev/ttyUSB0",
		SerialCfg: serial.Config{
			Baud:     9600,
			Parity:   serial.ParityNone,
			DataBits: 8,
			StopBits: 1,
			Flow:     serial.FlowNone,
		},
		TelnetHost:   "localhost",
		TelnetPort:   23,
		RingCapacity: 8192,
	}
}
