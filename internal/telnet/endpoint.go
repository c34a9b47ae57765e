package telnet

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/onionmixer/modembridge/internal/bridgeerr"
)

// ConnState is the lifecycle state of a TelnetEndpoint.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Endpoint wraps one TCP connection to a remote telnet host, applying
// the IAC parser and option negotiator to everything that crosses it.
// Reads must come from a single goroutine (the Parser itself isn't
// reentrant), but writes are safe from any number of goroutines:
// WriteApplication is called from the management thread's scheduler
// dispatch while ReadApplication/handleEffect's own replies run from
// the telnet thread, and writeMu serializes the two onto the wire.
type Endpoint struct {
	conn  net.Conn
	addr  string
	state ConnState

	parser *Parser
	neg    *Negotiator

	writeMu sync.Mutex
}

// NewEndpoint returns an unconnected Endpoint for addr (host:port).
func NewEndpoint(addr string) *Endpoint {
	return &Endpoint{
		addr:   addr,
		state:  Disconnected,
		parser: NewParser(),
		neg:    NewNegotiator(),
	}
}

func (e *Endpoint) writeConn(b []byte) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.Write(b)
}

// State returns the endpoint's current connection state.
func (e *Endpoint) State() ConnState { return e.state }

// Negotiator exposes the endpoint's option negotiator, mainly so the
// orchestrator can read CharacterMode()/LinemodeActive() for logging.
func (e *Endpoint) Negotiator() *Negotiator { return e.neg }

// Dial connects to the remote host under ctx's deadline, then writes
// the proactive option offers spec.md §4.3 calls for on connect
// completion: WILL BINARY, WILL SGA, DO SGA, DO ECHO, WILL TTYPE, WILL
// LINEMODE.
func (e *Endpoint) Dial(ctx context.Context) error {
	e.state = Connecting
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", e.addr)
	if err != nil {
		e.state = Disconnected
		return bridgeerr.Wrap(bridgeerr.Connection, err, "dial %s", e.addr)
	}
	e.conn = conn
	e.state = Connected

	offers := [][2]byte{
		{WILL, OptBinary},
		{WILL, OptSGA},
		{DO, OptSGA},
		{DO, OptEcho},
		{WILL, OptTTYPE},
		{WILL, OptLINEMODE},
	}
	for _, o := range offers {
		if _, err := e.writeConn([]byte{IAC, o[0], o[1]}); err != nil {
			return bridgeerr.Wrap(bridgeerr.Telnet, err, "sending initial option offers")
		}
	}
	return nil
}

// Close closes the underlying connection and marks the endpoint
// disconnected.
func (e *Endpoint) Close() error {
	e.state = Disconnected
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// SetReadDeadline forwards to the underlying net.Conn, used by the
// orchestrator's poll loop to bound a single Read call.
func (e *Endpoint) SetReadDeadline(t time.Time) error {
	if e.conn == nil {
		return bridgeerr.New(bridgeerr.Telnet, "not connected")
	}
	return e.conn.SetReadDeadline(t)
}

// ReadApplication reads once from the wire, runs every byte through
// the IAC parser, answers any negotiation/subnegotiation/AYT traffic
// inline, and returns the cleaned application bytes meant for the
// serial side. A zero-length, nil-error result means the read produced
// only protocol traffic and no user data.
func (e *Endpoint) ReadApplication(buf []byte) ([]byte, error) {
	n, err := e.conn.Read(buf)
	if n == 0 {
		return nil, wrapReadErr(err)
	}

	app, effects := e.parser.Feed(buf[:n])
	for _, eff := range effects {
		if werr := e.handleEffect(eff); werr != nil {
			return app, werr
		}
	}
	return app, wrapReadErr(err)
}

func (e *Endpoint) handleEffect(r StepResult) error {
	switch r.Effect {
	case EffectNegotiate:
		if reply := e.neg.Handle(r.NegCmd, r.NegOpt); reply != nil {
			if _, err := e.writeConn(reply); err != nil {
				return bridgeerr.Wrap(bridgeerr.Telnet, err, "writing negotiation reply")
			}
		}
	case EffectSubnegotiation:
		if len(r.Subneg) == 0 {
			return nil
		}
		if reply := e.neg.Subnegotiate(r.Subneg[0], r.Subneg[1:]); reply != nil {
			if _, err := e.writeConn(reply); err != nil {
				return bridgeerr.Wrap(bridgeerr.Telnet, err, "writing subnegotiation reply")
			}
		}
	case EffectAYT:
		if _, err := e.writeConn([]byte(AliveReply)); err != nil {
			return bridgeerr.Wrap(bridgeerr.Telnet, err, "writing AYT reply")
		}
	case EffectIPAOBreak, EffectUnknownCommand, EffectNone:
		// No wire response required.
	}
	return nil
}

// WriteApplication escapes app for IAC and writes it to the wire.
func (e *Endpoint) WriteApplication(app []byte) (int, error) {
	escaped := Escape(app)
	n, err := e.writeConn(escaped)
	if err != nil {
		return n, bridgeerr.Wrap(bridgeerr.Telnet, err, "write")
	}
	return len(app), nil
}

func wrapReadErr(err error) error {
	if err == nil {
		return nil
	}
	return bridgeerr.Wrap(bridgeerr.Telnet, err, "read")
}
