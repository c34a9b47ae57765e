package modem

import "time"

// State is the modem's top-level operating mode.
type State int

const (
	StateCommand State = iota
	StateOnline
	StateConnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateCommand:
		return "COMMAND"
	case StateOnline:
		return "ONLINE"
	case StateConnecting:
		return "CONNECTING"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

const maxCommandBuffer = 256

// escape-sequence guard timing, per spec.md §4.4.
const (
	escapeGuardSilence = time.Second
	escapeMaxGap       = 2 * time.Second
	escapePostSilence  = time.Second
)

// Emulator is the Hayes AT command parser and modem state machine. It
// owns no I/O itself: callers feed it bytes from the serial side and
// render whatever it emits back to the same side.
type Emulator struct {
	Registers Registers
	Echo      bool
	Verbose   bool
	Quiet     bool

	state    State
	cmdBuf   []byte
	infoLine string

	escapeCount   int
	lastPlusAt    time.Time
	lastAnyByteAt time.Time
	online        bool
}

// NewEmulator returns an Emulator in COMMAND state with factory
// defaults, echo and verbose on (the Hayes default since the Smartmodem).
func NewEmulator() *Emulator {
	return &Emulator{
		Registers: DefaultRegisters(),
		Echo:      true,
		Verbose:   true,
		infoLine:  "modembridge",
		state:     StateCommand,
	}
}

// State returns the emulator's current top-level mode.
func (e *Emulator) State() State { return e.state }

// SetOnline is called by the orchestrator when the telnet side
// reaches DATA_TRANSFER (carrier present) or leaves it (carrier
// dropped), so O and the escape sequence know whether going back
// online is meaningful.
func (e *Emulator) SetOnline(online bool) {
	e.online = online
	if online && e.state == StateConnecting {
		e.state = StateOnline
	}
}

// FeedCommandByte processes one input byte while in COMMAND state and
// returns any bytes to echo/emit to the serial side plus whether a
// complete line was just terminated and handled.
func (e *Emulator) FeedCommandByte(b byte) (emit []byte, lineHandled bool) {
	cr := byte(e.Registers[RegCR])
	bs := byte(e.Registers[RegBackspace])

	if b == cr || b == '\n' {
		var echoed []byte
		if e.Echo {
			echoed = []byte{b}
		}
		out := e.handleLine(string(e.cmdBuf))
		e.cmdBuf = e.cmdBuf[:0]
		return append(echoed, out...), true
	}
	if b == bs || b == 0x7F {
		if len(e.cmdBuf) > 0 {
			e.cmdBuf = e.cmdBuf[:len(e.cmdBuf)-1]
			if e.Echo {
				return []byte("\b \b"), false
			}
		}
		return nil, false
	}
	if len(e.cmdBuf) < maxCommandBuffer {
		e.cmdBuf = append(e.cmdBuf, b)
	}
	if e.Echo {
		return []byte{b}, false
	}
	return nil, false
}

func (e *Emulator) handleLine(line string) []byte {
	if len(line) == 0 {
		return []byte(FormatResult(ResultOK, e.Verbose, e.Quiet))
	}
	upper := NormalizeLine(line)
	if len(upper) < 2 || upper[:2] != "AT" {
		return []byte(FormatResult(ResultError, e.Verbose, e.Quiet))
	}
	cmds, err := ParseCommandLine(upper[2:])
	if err != nil {
		return []byte(FormatResult(ResultError, e.Verbose, e.Quiet))
	}

	// Inline text (I<n>, S<r>?) is emitted per command, but the line as
	// a whole gets one final result: OK, or the last non-OK result.
	var out []byte
	final := ResultOK
	for _, c := range cmds {
		result, text := e.apply(c)
		if text != "" {
			out = append(out, []byte(text)...)
		}
		if result != ResultOK {
			final = result
		}
	}
	out = append(out, []byte(FormatResult(final, e.Verbose, e.Quiet))...)
	return out
}

// apply executes one parsed Command against emulator state, returning
// the result code to report and any inline text to emit before it
// (used by I<n> and S<r>?).
func (e *Emulator) apply(c Command) (ResultCode, string) {
	switch c.Kind {
	case CmdAnswer:
		e.state = StateConnecting
		return ResultOK, ""
	case CmdDial:
		return ResultOK, ""
	case CmdEcho:
		e.Echo = c.Num != 0
		return ResultOK, ""
	case CmdHangup:
		e.state = StateCommand
		e.online = false
		return ResultOK, ""
	case CmdInfo:
		return ResultOK, e.infoLine + "\r\n"
	case CmdGoOnline:
		if e.online {
			e.state = StateOnline
			return ResultConnect, ""
		}
		return ResultNoCarrier, ""
	case CmdQuiet:
		e.Quiet = c.Num != 0
		return ResultOK, ""
	case CmdRegisterSet:
		if c.Num >= 0 && c.Num < len(e.Registers) {
			e.Registers[c.Num] = parseRegisterValue(c.Str)
		}
		return ResultOK, ""
	case CmdRegisterQuery:
		if c.Num >= 0 && c.Num < len(e.Registers) {
			return ResultOK, itoaPad3(e.Registers[c.Num]) + "\r\n"
		}
		return ResultOK, "000\r\n"
	case CmdVerbose:
		e.Verbose = c.Num != 0
		return ResultOK, ""
	case CmdReset, CmdFactoryDefaults:
		e.Registers = DefaultRegisters()
		e.Echo = true
		e.Verbose = true
		e.Quiet = false
		return ResultOK, ""
	default:
		return ResultError, ""
	}
}

func parseRegisterValue(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func itoaPad3(n int) string {
	if n < 0 {
		n = 0
	}
	if n > 999 {
		n = 999
	}
	digits := [3]byte{'0', '0', '0'}
	for i := 2; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[:])
}

// EscapeResult reports what FeedOnlineByte decided about one online
// byte. The escape sequence itself only fires once CheckEscapeComplete
// confirms the trailing guard silence with no further bytes received.
type EscapeResult struct {
	Forward bool // true if b should be forwarded to telnet
}

// FeedOnlineByte processes one byte received from the serial side
// while in ONLINE state, tracking the "+++" escape sequence per
// spec.md §4.4's guard-timing rule: a minimum 1s silence before the
// first escape char, at most 2s between consecutive escapes, and any
// non-escape byte resets the counter. now is passed in rather than
// read from the clock so callers can drive this deterministically in
// tests. Firing still requires the caller to confirm, via
// CheckEscapeComplete, that 1s of trailing silence has elapsed.
//
// spec.md §4.4 forwards online bytes "verbatim, except" for the escape
// sequence itself, so an escape char accepted as a candidate (count
// becomes >=1) is withheld from the forward stream; one rejected as an
// unrelated '+' in the data (no guard silence, or an expired gap with
// none) is forwarded like any other byte.
func (e *Emulator) FeedOnlineByte(b byte, now time.Time) EscapeResult {
	prevByteAt := e.lastAnyByteAt
	e.lastAnyByteAt = now

	escChar := byte(e.Registers[RegEscapeChar])
	if b != escChar {
		e.escapeCount = 0
		return EscapeResult{Forward: true}
	}

	silenceBefore := prevByteAt.IsZero() || now.Sub(prevByteAt) >= escapeGuardSilence

	switch {
	case e.escapeCount == 0:
		if !silenceBefore {
			return EscapeResult{Forward: true}
		}
		e.escapeCount = 1
		e.lastPlusAt = now
	case now.Sub(e.lastPlusAt) > escapeMaxGap:
		if silenceBefore {
			e.escapeCount = 1
			e.lastPlusAt = now
		} else {
			e.escapeCount = 0
			return EscapeResult{Forward: true}
		}
	case e.escapeCount >= 3:
		// A fourth consecutive escape char within the gap is not a
		// valid trigger (spec.md §8: "four in a row does not"); the
		// candidate sequence is abandoned rather than extended.
		e.escapeCount = 0
		return EscapeResult{Forward: false}
	default:
		e.escapeCount++
		e.lastPlusAt = now
	}

	return EscapeResult{Forward: false}
}

// CheckEscapeComplete is polled by the caller (typically via a timer)
// once three consecutive escapes have been seen, to confirm the
// trailing guard silence has elapsed with no further bytes received.
// On success it resets the tracker, switches to COMMAND state, and
// returns true so the caller knows to emit OK.
func (e *Emulator) CheckEscapeComplete(now time.Time) bool {
	if e.escapeCount < 3 {
		return false
	}
	if now.Sub(e.lastPlusAt) < escapePostSilence {
		return false
	}
	e.escapeCount = 0
	e.state = StateCommand
	return true
}

// ResetEscapeTracker clears escape-sequence detection state, used when
// any non-'+' byte breaks a candidate sequence mid-flight.
func (e *Emulator) ResetEscapeTracker() {
	e.escapeCount = 0
}
