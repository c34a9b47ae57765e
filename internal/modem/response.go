package modem

import "strconv"

// ResultCode is a Hayes result code, per spec.md §4.4.
type ResultCode int

const (
	ResultOK         ResultCode = 0
	ResultConnect    ResultCode = 1
	ResultRing       ResultCode = 2
	ResultNoCarrier  ResultCode = 3
	ResultError      ResultCode = 4
	ResultNoDialtone ResultCode = 6
	ResultBusy       ResultCode = 7
	ResultNoAnswer   ResultCode = 8
)

func (r ResultCode) text() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultConnect:
		return "CONNECT"
	case ResultRing:
		return "RING"
	case ResultNoCarrier:
		return "NO CARRIER"
	case ResultError:
		return "ERROR"
	case ResultNoDialtone:
		return "NO DIALTONE"
	case ResultBusy:
		return "BUSY"
	case ResultNoAnswer:
		return "NO ANSWER"
	default:
		return "ERROR"
	}
}

// FormatResult renders r per the current verbose/quiet settings:
// quiet suppresses everything, verbose emits the text form, numeric
// mode emits the bare result code.
func FormatResult(r ResultCode, verbose, quiet bool) string {
	if quiet {
		return ""
	}
	if verbose {
		return "\r\n" + r.text() + "\r\n"
	}
	return "\r\n" + strconv.Itoa(int(r)) + "\r\n"
}
