package telnet

// Negotiator tracks local/remote option state for the RFC 855
// loop-prevention rule: a reply is sent only when the negotiated value
// actually changes, never on a replayed identical request.
type Negotiator struct {
	localKnown     [256]bool
	localEnabled   [256]bool
	remoteKnown    [256]bool
	remoteEnabled  [256]bool
	linemodeActive bool
	linemodeEdit   bool
}

// NewNegotiator returns a Negotiator with every option at its initial
// (unknown, disabled) state.
func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

func localSupported(opt byte) bool {
	switch opt {
	case OptBinary, OptSGA, OptTTYPE, OptLINEMODE:
		return true
	default:
		return false
	}
}

func remoteSupported(opt byte) bool {
	switch opt {
	case OptBinary, OptSGA, OptEcho, OptLINEMODE:
		return true
	default:
		return false
	}
}

// Handle processes one WILL/WONT/DO/DONT command for the given option
// and returns the raw IAC reply to write to the wire, or nil if no
// reply is warranted (either nothing changed, or cmd is not a
// negotiation command).
func (n *Negotiator) Handle(cmd, opt byte) []byte {
	switch cmd {
	case WILL:
		return n.handleWill(opt)
	case WONT:
		return n.handleWont(opt)
	case DO:
		return n.handleDo(opt)
	case DONT:
		return n.handleDont(opt)
	default:
		return nil
	}
}

func (n *Negotiator) handleWill(opt byte) []byte {
	accept := remoteSupported(opt)
	if n.remoteKnown[opt] && n.remoteEnabled[opt] == accept {
		return nil
	}
	n.remoteKnown[opt] = true
	n.remoteEnabled[opt] = accept
	cmd := byte(DONT)
	if accept {
		cmd = DO
	}
	return []byte{IAC, cmd, opt}
}

func (n *Negotiator) handleWont(opt byte) []byte {
	if n.remoteKnown[opt] && !n.remoteEnabled[opt] {
		return nil
	}
	n.remoteKnown[opt] = true
	n.remoteEnabled[opt] = false
	return []byte{IAC, DONT, opt}
}

func (n *Negotiator) handleDo(opt byte) []byte {
	accept := localSupported(opt)
	if n.localKnown[opt] && n.localEnabled[opt] == accept {
		return nil
	}
	n.localKnown[opt] = true
	n.localEnabled[opt] = accept
	cmd := byte(WONT)
	if accept {
		cmd = WILL
	}
	return []byte{IAC, cmd, opt}
}

func (n *Negotiator) handleDont(opt byte) []byte {
	if n.localKnown[opt] && !n.localEnabled[opt] {
		return nil
	}
	n.localKnown[opt] = true
	n.localEnabled[opt] = false
	return []byte{IAC, WONT, opt}
}

// RemoteEnabled reports whether the remote side currently has opt on.
func (n *Negotiator) RemoteEnabled(opt byte) bool { return n.remoteEnabled[opt] }

// LocalEnabled reports whether the local side currently has opt on.
func (n *Negotiator) LocalEnabled(opt byte) bool { return n.localEnabled[opt] }

// LinemodeActive reports whether at least one LINEMODE MODE
// subnegotiation has been received. The WILL/DO state of LINEMODE is
// not consulted.
func (n *Negotiator) LinemodeActive() bool { return n.linemodeActive }

// LinemodeEdit reports the most recently received EDIT bit.
func (n *Negotiator) LinemodeEdit() bool { return n.linemodeEdit }

// CharacterMode reports whether the connection is currently in
// character mode (server echoes, client sends per keystroke) versus
// line mode. LINEMODE, once active, is authoritative over the
// ECHO/SGA-derived heuristic — per spec.md §9's resolution of the
// "telnet_update_mode" inconsistency in the original sources.
func (n *Negotiator) CharacterMode() bool {
	if n.linemodeActive {
		return !n.linemodeEdit
	}
	return n.remoteEnabled[OptEcho] && n.remoteEnabled[OptSGA]
}

// Subnegotiate handles one completed SB <opt> ... IAC SE payload and
// returns the raw wire reply, or nil.
func (n *Negotiator) Subnegotiate(opt byte, payload []byte) []byte {
	switch opt {
	case OptTTYPE:
		return n.subnegotiateTType(payload)
	case OptLINEMODE:
		return n.subnegotiateLinemode(payload)
	default:
		return nil
	}
}

func (n *Negotiator) subnegotiateTType(payload []byte) []byte {
	if len(payload) == 0 || payload[0] != TTypeSend {
		return nil
	}
	return FrameSubnegotiation(OptTTYPE, append([]byte{TTypeIs}, TermType...))
}

func (n *Negotiator) subnegotiateLinemode(payload []byte) []byte {
	if len(payload) < 2 || payload[0] != LMMode {
		return nil
	}
	mode := payload[1]
	n.linemodeActive = true
	n.linemodeEdit = mode&LMModeEdit != 0
	acked := mode
	if mode&LMModeAck == 0 {
		acked = mode | LMModeAck
	}
	return FrameSubnegotiation(OptLINEMODE, []byte{LMMode, acked})
}
