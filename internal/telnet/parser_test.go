package telnet

import "testing"

func TestParserPassesThroughPlainData(t *testing.T) {
	p := NewParser()
	app, effects := p.Feed([]byte("hello"))
	if string(app) != "hello" {
		t.Fatalf("app = %q, want hello", app)
	}
	if len(effects) != 0 {
		t.Fatalf("unexpected effects: %v", effects)
	}
}

func TestParserUnescapesDoubledIAC(t *testing.T) {
	p := NewParser()
	app, _ := p.Feed([]byte{IAC, IAC, 0x41})
	if len(app) != 2 || app[0] != IAC || app[1] != 0x41 {
		t.Fatalf("app = %v, want [IAC 0x41]", app)
	}
}

func TestParserNegotiationScenario(t *testing.T) {
	// IAC IAC 0x41 IAC WILL ECHO(0x01) 0x42 — per spec.md's concrete
	// scenario: app sees FF 41 42, parser reports one negotiation
	// effect for WILL ECHO.
	p := NewParser()
	app, effects := p.Feed([]byte{IAC, IAC, 0x41, IAC, WILL, OptEcho, 0x42})
	if len(app) != 3 || app[0] != IAC || app[1] != 0x41 || app[2] != 0x42 {
		t.Fatalf("app = %v, want [FF 41 42]", app)
	}
	if len(effects) != 1 || effects[0].Effect != EffectNegotiate {
		t.Fatalf("effects = %v, want one EffectNegotiate", effects)
	}
	if effects[0].NegCmd != WILL || effects[0].NegOpt != OptEcho {
		t.Fatalf("neg cmd/opt = %x/%x, want WILL/ECHO", effects[0].NegCmd, effects[0].NegOpt)
	}
}

func TestParserSubnegotiationRoundTrip(t *testing.T) {
	p := NewParser()
	frame := FrameSubnegotiation(OptTTYPE, []byte{TTypeSend})
	_, effects := p.Feed(frame)
	if len(effects) != 1 || effects[0].Effect != EffectSubnegotiation {
		t.Fatalf("effects = %v, want one EffectSubnegotiation", effects)
	}
	if len(effects[0].Subneg) != 2 || effects[0].Subneg[0] != OptTTYPE || effects[0].Subneg[1] != TTypeSend {
		t.Fatalf("subneg = %v, want [OptTTYPE TTypeSend]", effects[0].Subneg)
	}
}

func TestParserSubnegotiationEscapesEmbeddedIAC(t *testing.T) {
	p := NewParser()
	payload := []byte{LMMode, IAC, 0x05}
	frame := FrameSubnegotiation(OptLINEMODE, payload)
	_, effects := p.Feed(frame)
	if len(effects) != 1 || effects[0].Effect != EffectSubnegotiation {
		t.Fatalf("effects = %v", effects)
	}
	got := effects[0].Subneg
	want := []byte{OptLINEMODE, LMMode, IAC, 0x05}
	if len(got) != len(want) {
		t.Fatalf("subneg = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("subneg[%d] = %x, want %x", i, got[i], want[i])
		}
	}
}

func TestParserAYTEffect(t *testing.T) {
	p := NewParser()
	_, effects := p.Feed([]byte{IAC, AYT})
	if len(effects) != 1 || effects[0].Effect != EffectAYT {
		t.Fatalf("effects = %v, want one EffectAYT", effects)
	}
}

func TestParserIgnoresEOR(t *testing.T) {
	p := NewParser()
	app, effects := p.Feed([]byte{0x41, IAC, EOR, 0x42})
	if string(app) != "AB" {
		t.Fatalf("app = %q, want %q", app, "AB")
	}
	if len(effects) != 0 {
		t.Fatalf("IAC EOR should be silently ignored, got effects: %v", effects)
	}
}

func TestEscapeDoublesIAC(t *testing.T) {
	out := Escape([]byte{0x41, IAC, 0x42})
	want := []byte{0x41, IAC, IAC, 0x42}
	if len(out) != len(want) {
		t.Fatalf("out = %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %x, want %x", i, out[i], want[i])
		}
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	original := []byte{0x00, 0x01, IAC, 0xFF, 0x7F, IAC, IAC}
	wire := Escape(original)
	p := NewParser()
	app, effects := p.Feed(wire)
	if len(effects) != 0 {
		t.Fatalf("unexpected effects: %v", effects)
	}
	if len(app) != len(original) {
		t.Fatalf("app = %v, want %v", app, original)
	}
	for i := range original {
		if app[i] != original[i] {
			t.Fatalf("app[%d] = %x, want %x", i, app[i], original[i])
		}
	}
}
