package telnet

import (
	"bytes"
	"testing"
)

func TestNegotiatorLoopPrevention(t *testing.T) {
	n := NewNegotiator()

	// First WILL ECHO: remote supports ECHO, so we must answer DO.
	reply := n.Handle(WILL, OptEcho)
	want := []byte{IAC, DO, OptEcho}
	if !bytes.Equal(reply, want) {
		t.Fatalf("first WILL ECHO reply = %v, want %v", reply, want)
	}
	if !n.RemoteEnabled(OptEcho) {
		t.Fatal("remote ECHO should be enabled")
	}

	// Repeating the identical WILL ECHO must produce no further reply.
	if reply := n.Handle(WILL, OptEcho); reply != nil {
		t.Fatalf("repeated WILL ECHO produced reply %v, want nil", reply)
	}
}

func TestNegotiatorRefusesUnsupportedOption(t *testing.T) {
	n := NewNegotiator()
	const unsupported byte = 99

	reply := n.Handle(DO, unsupported)
	want := []byte{IAC, WONT, unsupported}
	if !bytes.Equal(reply, want) {
		t.Fatalf("reply = %v, want %v", reply, want)
	}
	if reply := n.Handle(DO, unsupported); reply != nil {
		t.Fatalf("repeated DO produced reply %v, want nil", reply)
	}
}

func TestNegotiatorDoLinemodeAccepted(t *testing.T) {
	n := NewNegotiator()
	reply := n.Handle(DO, OptLINEMODE)
	want := []byte{IAC, WILL, OptLINEMODE}
	if !bytes.Equal(reply, want) {
		t.Fatalf("reply = %v, want %v", reply, want)
	}
}

func TestNegotiatorTTypeSendReply(t *testing.T) {
	n := NewNegotiator()
	reply := n.Subnegotiate(OptTTYPE, []byte{TTypeSend})
	want := FrameSubnegotiation(OptTTYPE, append([]byte{TTypeIs}, TermType...))
	if !bytes.Equal(reply, want) {
		t.Fatalf("reply = %v, want %v", reply, want)
	}
}

func TestNegotiatorLinemodeModeAck(t *testing.T) {
	n := NewNegotiator()
	// MODE 0x05 == EDIT|ACK, per spec.md's concrete scenario.
	mode := LMModeEdit | LMModeAck
	reply := n.Subnegotiate(OptLINEMODE, []byte{LMMode, mode})
	want := FrameSubnegotiation(OptLINEMODE, []byte{LMMode, mode})
	if !bytes.Equal(reply, want) {
		t.Fatalf("reply = %v, want %v", reply, want)
	}
	if !n.LinemodeActive() {
		t.Fatal("expected LinemodeActive")
	}
	if !n.LinemodeEdit() {
		t.Fatal("expected linemode_edit=true")
	}
}

func TestNegotiatorLinemodeModeWithoutAckGetsAcked(t *testing.T) {
	n := NewNegotiator()
	reply := n.Subnegotiate(OptLINEMODE, []byte{LMMode, LMModeEdit})
	want := FrameSubnegotiation(OptLINEMODE, []byte{LMMode, LMModeEdit | LMModeAck})
	if !bytes.Equal(reply, want) {
		t.Fatalf("reply = %v, want %v", reply, want)
	}
}

func TestCharacterModeLinemodeAuthoritative(t *testing.T) {
	n := NewNegotiator()
	// Remote ECHO+SGA both on would normally mean character mode...
	n.Handle(WILL, OptEcho)
	n.Handle(WILL, OptSGA)
	if !n.CharacterMode() {
		t.Fatal("expected character mode from ECHO+SGA before LINEMODE")
	}
	// ...but once LINEMODE is active with EDIT set, it overrides that
	// heuristic and the connection is in line mode.
	n.Subnegotiate(OptLINEMODE, []byte{LMMode, LMModeEdit | LMModeAck})
	if n.CharacterMode() {
		t.Fatal("expected LINEMODE EDIT to force line mode")
	}
}
