package rsp

import (
	"bytes"
	"testing"

	"dapbridge/target"
)

// mockTarget is a scriptable target.Interface for exercising the RSP
// dispatch table and server loop without any SWD plumbing.
type mockTarget struct {
	attached     bool
	attachErr    error
	resumed      bool
	stepped      bool
	regs         [16]uint32
	reg          map[uint32]uint32
	mem          map[uint64][]byte
	monitorOut   string
	monitorErr   error
	interruptSig byte

	setWatchCalls   int
	unsetWatchCalls int
}

func newMockTarget() *mockTarget {
	return &mockTarget{reg: make(map[uint32]uint32), mem: make(map[uint64][]byte), interruptSig: 0x05}
}

func (m *mockTarget) Attach() error { m.attached = true; return m.attachErr }
func (m *mockTarget) Detach()       {}
func (m *mockTarget) Resume()       { m.resumed = true }
func (m *mockTarget) Step() (byte, error) { m.stepped = true; return 0x05, nil }
func (m *mockTarget) Interrupt() (byte, error) { return m.interruptSig, nil }

func (m *mockTarget) SetBreakPoint(target.BreakPointType, uint64, uint32) error   { return nil }
func (m *mockTarget) UnsetBreakPoint(target.BreakPointType, uint64, uint32) error { return target.ErrUnsupported }

func (m *mockTarget) SetWatchPoint(target.WatchPointType, uint64, uint32) error {
	m.setWatchCalls++
	return nil
}
func (m *mockTarget) UnsetWatchPoint(target.WatchPointType, uint64, uint32) error {
	m.unsetWatchCalls++
	return nil
}

func (m *mockTarget) ReadRegister(n uint32) (uint32, error) { return m.reg[n], nil }
func (m *mockTarget) WriteRegister(n uint32, v uint32) error {
	m.reg[n] = v
	return nil
}
func (m *mockTarget) ReadGenericRegisters() ([16]uint32, error) { return m.regs, nil }
func (m *mockTarget) WriteGenericRegisters(r [16]uint32) error  { m.regs = r; return nil }

func (m *mockTarget) ReadMemory(addr uint64, length uint32) []byte {
	return m.mem[addr]
}
func (m *mockTarget) WriteMemory(addr uint64, data []byte) error {
	m.mem[addr] = append([]byte(nil), data...)
	return nil
}

func (m *mockTarget) Monitor(command string) (string, error) { return m.monitorOut, m.monitorErr }

var _ target.Interface = (*mockTarget)(nil)

// --- Parser tests (properties P1/P2) ---

func feedString(p *Parser, s string) []Event {
	var evs []Event
	for i := 0; i < len(s); i++ {
		ev := p.Feed(s[i])
		if ev.Kind != EventNone {
			evs = append(evs, ev)
		}
	}
	return evs
}

func TestParserValidPacket(t *testing.T) {
	p := NewParser()
	evs := feedString(p, Encode("g"))
	if len(evs) != 1 || evs[0].Kind != EventPacketValid || evs[0].Payload != "g" {
		t.Fatalf("got %+v, want one EventPacketValid{g}", evs)
	}
}

func TestParserBadChecksumIsInvalid(t *testing.T) {
	p := NewParser()
	evs := feedString(p, "$g#00")
	if len(evs) != 1 || evs[0].Kind != EventPacketInvalid {
		t.Fatalf("got %+v, want one EventPacketInvalid", evs)
	}
}

func TestParserAckAndInterrupt(t *testing.T) {
	p := NewParser()
	if ev := p.Feed('+'); ev.Kind != EventAckPositive {
		t.Fatalf("'+' = %+v, want EventAckPositive", ev)
	}
	if ev := p.Feed('-'); ev.Kind != EventAckNegative {
		t.Fatalf("'-' = %+v, want EventAckNegative", ev)
	}
	if ev := p.Feed(0x03); ev.Kind != EventInterrupt {
		t.Fatalf("0x03 = %+v, want EventInterrupt", ev)
	}
}

func TestParserRecoversAfterInvalidPacket(t *testing.T) {
	p := NewParser()
	feedString(p, "$bad#00")
	evs := feedString(p, Encode("?"))
	if len(evs) != 1 || evs[0].Kind != EventPacketValid || evs[0].Payload != "?" {
		t.Fatalf("parser did not recover cleanly after an invalid packet: %+v", evs)
	}
}

// --- Dispatch tests ---

func TestDispatchQuestionMark(t *testing.T) {
	d := NewDispatcher(newMockTarget())
	r := d.Dispatch("?")
	if !r.send || r.payload != "S05" {
		t.Fatalf("got %+v, want S05", r)
	}
}

func TestDispatchFirstQueryAttaches(t *testing.T) {
	mt := newMockTarget()
	d := NewDispatcher(mt)
	d.Dispatch("qSupported:gdb")
	if !mt.attached {
		t.Fatal("first q-query did not attach the target")
	}
	if !d.Attached() {
		t.Fatal("Dispatcher.Attached() should be true after a successful attach")
	}
}

func TestDispatchGenericRegisters(t *testing.T) {
	mt := newMockTarget()
	mt.regs[0] = 0x11223344
	d := NewDispatcher(mt)
	r := d.Dispatch("g")
	if !r.send || len(r.payload) != 16*8 {
		t.Fatalf("g reply = %+v, want 128 hex chars", r)
	}
	if r.payload[:8] != "44332211" {
		t.Fatalf("g reply first register = %q, want little-endian 44332211", r.payload[:8])
	}
}

func TestDispatchWriteThenReadMemory(t *testing.T) {
	mt := newMockTarget()
	d := NewDispatcher(mt)
	r := d.Dispatch("M1000,2:abcd")
	if !r.send || r.payload != "OK" {
		t.Fatalf("M reply = %+v, want OK", r)
	}
	if got := mt.mem[0x1000]; !bytes.Equal(got, []byte{0xab, 0xcd}) {
		t.Fatalf("stored memory = %x, want abcd", got)
	}
	r = d.Dispatch("m1000,2")
	if !r.send || r.payload != "abcd" {
		t.Fatalf("m reply = %+v, want abcd", r)
	}
}

func TestDispatchQRcmdOddLengthRejected(t *testing.T) {
	d := NewDispatcher(newMockTarget())
	r := d.Dispatch("qRcmd,abc")
	if !r.send || r.payload[0] != 'E' {
		t.Fatalf("odd-length qRcmd = %+v, want an E-prefixed error", r)
	}
}

func TestDispatchQRcmdRunsMonitor(t *testing.T) {
	mt := newMockTarget()
	mt.monitorOut = "hi"
	d := NewDispatcher(mt)
	// "hi" as hex ASCII is 6869
	r := d.Dispatch("qRcmd,6869")
	if !r.send || r.payload != "hi" {
		t.Fatalf("qRcmd reply = %+v, want hi", r)
	}
}

// TestDispatchZSetsLittleZUnsets exercises the documented fix: Z sets a watchpoint,
// z unsets it, rather than both setting it (spec.md §9's redesign flag).
func TestDispatchZSetsLittleZUnsets(t *testing.T) {
	mt := newMockTarget()
	d := NewDispatcher(mt)

	r := d.Dispatch("Z2,1000,4")
	if !r.send || r.payload != "OK" {
		t.Fatalf("Z2 reply = %+v, want OK", r)
	}
	if mt.setWatchCalls != 1 || mt.unsetWatchCalls != 0 {
		t.Fatalf("Z2 should call SetWatchPoint only: set=%d unset=%d", mt.setWatchCalls, mt.unsetWatchCalls)
	}

	r = d.Dispatch("z2,1000,4")
	if !r.send || r.payload != "OK" {
		t.Fatalf("z2 reply = %+v, want OK", r)
	}
	if mt.setWatchCalls != 1 || mt.unsetWatchCalls != 1 {
		t.Fatalf("z2 should call UnsetWatchPoint only: set=%d unset=%d", mt.setWatchCalls, mt.unsetWatchCalls)
	}
}

func TestDispatchUnsupportedBreakpointKindRepliesEmpty(t *testing.T) {
	mt := newMockTarget()
	d := NewDispatcher(mt)
	r := d.Dispatch("z0,1000,4") // UnsetBreakPoint returns ErrUnsupported in mockTarget
	if !r.send || r.payload != "" {
		t.Fatalf("z0 reply = %+v, want empty (unsupported)", r)
	}
}

// --- Server loop tests (properties P1/P3, invariant I4) ---

// loopbackConn is an in-memory io.ReadWriter pairing a fixed input
// sequence with a captured output buffer, letting Server.Serve run
// against scripted debugger input.
type loopbackConn struct {
	in  []byte
	pos int
	out bytes.Buffer
}

func (c *loopbackConn) Read(p []byte) (int, error) {
	if c.pos >= len(c.in) {
		return 0, errServerDone
	}
	n := copy(p, c.in[c.pos:])
	c.pos += n
	return n, nil
}

func (c *loopbackConn) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

type doneErr struct{}

func (doneErr) Error() string { return "loopback exhausted" }

var errServerDone = doneErr{}

func TestServerAcksBeforeReply(t *testing.T) {
	conn := &loopbackConn{in: []byte(Encode("?"))}
	srv := NewServer(conn, newMockTarget())
	if err := srv.Serve(); err != nil && err != errServerDone {
		t.Fatalf("Serve: %v", err)
	}

	out := conn.out.String()
	if len(out) == 0 || out[0] != '+' {
		t.Fatalf("output %q did not start with '+' ack", out)
	}
	wantReply := Encode("S05")
	if out[1:] != wantReply {
		t.Fatalf("output after ack = %q, want %q", out[1:], wantReply)
	}
}

func TestServerResendsLastPacketOnNack(t *testing.T) {
	// '?' then immediately a '-' requesting retransmission of the S05
	// reply, per property P3.
	in := append([]byte(Encode("?")), '-')
	conn := &loopbackConn{in: in}
	srv := NewServer(conn, newMockTarget())
	if err := srv.Serve(); err != nil && err != errServerDone {
		t.Fatalf("Serve: %v", err)
	}

	wantReply := Encode("S05")
	out := conn.out.String()
	occurrences := bytes.Count([]byte(out), []byte(wantReply))
	if occurrences != 2 {
		t.Fatalf("reply %q appeared %d times in output %q, want 2 (original + resend)", wantReply, occurrences, out)
	}
}
