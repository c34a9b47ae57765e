package modem

import (
	"strconv"
	"strings"

	"github.com/onionmixer/modembridge/internal/bridgeerr"
)

// CommandKind tags one parsed AT command token, per spec.md §4.4's
// table. Modeling it as a tagged sum rather than switching on single
// characters keeps chained commands like "ATE1Q0V1" a natural loop
// over a slice of Command values instead of a single giant switch.
type CommandKind int

const (
	CmdAnswer CommandKind = iota
	CmdDial
	CmdEcho
	CmdHangup
	CmdInfo
	CmdGoOnline
	CmdQuiet
	CmdRegisterSet
	CmdRegisterQuery
	CmdVerbose
	CmdReset
	CmdFactoryDefaults
)

// Command is one parsed AT command token with its operand, if any.
type Command struct {
	Kind CommandKind
	Num  int    // numeric operand for E/H/I/O/Q/V/Z, and register index for S
	Str  string // dial string for D, register value text for S<r>=<v>
}

// ParseCommandLine parses the bytes after the leading "AT" (already
// stripped and upper-cased by the caller) into a sequence of Command
// values, per the recursive-descent grammar of spec.md §9: one pass,
// left to right, each token consuming as much as it needs.
func ParseCommandLine(line string) ([]Command, error) {
	var cmds []Command
	i := 0
	for i < len(line) {
		c := line[i]
		switch c {
		case 'A':
			cmds = append(cmds, Command{Kind: CmdAnswer})
			i++
		case 'D':
			// Dial strings run to the end of the line or the next
			// semicolon, which is consumed so parsing continues after
			// it; modembridge never actually dials, so the remainder is
			// captured only for the OK response.
			j := i + 1
			for j < len(line) && line[j] != ';' {
				j++
			}
			cmds = append(cmds, Command{Kind: CmdDial, Str: line[i+1 : j]})
			if j < len(line) {
				j++
			}
			i = j
		case 'E':
			n, adv := parseDigitArg(line, i+1)
			cmds = append(cmds, Command{Kind: CmdEcho, Num: n})
			i += 1 + adv
		case 'H':
			n, adv := parseDigitArg(line, i+1)
			cmds = append(cmds, Command{Kind: CmdHangup, Num: n})
			i += 1 + adv
		case 'I':
			n, adv := parseDigitArg(line, i+1)
			cmds = append(cmds, Command{Kind: CmdInfo, Num: n})
			i += 1 + adv
		case 'O':
			n, adv := parseDigitArg(line, i+1)
			cmds = append(cmds, Command{Kind: CmdGoOnline, Num: n})
			i += 1 + adv
		case 'Q':
			n, adv := parseDigitArg(line, i+1)
			cmds = append(cmds, Command{Kind: CmdQuiet, Num: n})
			i += 1 + adv
		case 'V':
			n, adv := parseDigitArg(line, i+1)
			cmds = append(cmds, Command{Kind: CmdVerbose, Num: n})
			i += 1 + adv
		case 'Z':
			n, adv := parseDigitArg(line, i+1)
			cmds = append(cmds, Command{Kind: CmdReset, Num: n})
			i += 1 + adv
		case 'S':
			cmd, adv, err := parseRegisterCommand(line, i+1)
			if err != nil {
				return nil, err
			}
			cmds = append(cmds, cmd)
			i += 1 + adv
		case '&':
			if i+1 < len(line) && line[i+1] == 'F' {
				cmds = append(cmds, Command{Kind: CmdFactoryDefaults})
				i += 2
			} else {
				return nil, bridgeerr.New(bridgeerr.Modem, "unrecognized & command at %d", i)
			}
		default:
			return nil, bridgeerr.New(bridgeerr.Modem, "unrecognized command byte %q at %d", c, i)
		}
	}
	return cmds, nil
}

// parseDigitArg reads an optional run of decimal digits starting at
// pos, defaulting to 0 when absent (e.g. bare "E" means "E0").
func parseDigitArg(line string, pos int) (n int, advance int) {
	start := pos
	for pos < len(line) && line[pos] >= '0' && line[pos] <= '9' {
		pos++
	}
	if pos == start {
		return 0, 0
	}
	v, _ := strconv.Atoi(line[start:pos])
	return v, pos - start
}

func parseRegisterCommand(line string, pos int) (Command, int, error) {
	start := pos
	for pos < len(line) && line[pos] >= '0' && line[pos] <= '9' {
		pos++
	}
	if pos == start {
		return Command{}, 0, bridgeerr.New(bridgeerr.Modem, "missing register index at %d", start)
	}
	reg, _ := strconv.Atoi(line[start:pos])
	if pos >= len(line) {
		return Command{}, 0, bridgeerr.New(bridgeerr.Modem, "incomplete S command for register %d", reg)
	}
	switch line[pos] {
	case '?':
		return Command{Kind: CmdRegisterQuery, Num: reg}, pos - start + 1, nil
	case '=':
		j := pos + 1
		for j < len(line) && line[j] >= '0' && line[j] <= '9' {
			j++
		}
		if j == pos+1 {
			return Command{}, 0, bridgeerr.New(bridgeerr.Modem, "missing value for S%d=", reg)
		}
		return Command{Kind: CmdRegisterSet, Num: reg, Str: line[pos+1 : j]}, j - start, nil
	default:
		return Command{}, 0, bridgeerr.New(bridgeerr.Modem, "expected '?' or '=' after S%d", reg)
	}
}

// NormalizeLine upper-cases a command line the way a real Hayes modem
// treats AT commands as case-insensitive.
func NormalizeLine(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
