package swd

import "testing"

// mockTransactor scripts Transfer/WriteAbort/ResetLink responses keyed on
// the request bytes, recording every request it sees so tests can assert
// on the exact wire sequence (mirrors probe/transport_test.go's approach
// for the layer below).
type mockTransactor struct {
	requests  [][]byte
	regs      map[byte]uint32 // DP/AP register value, keyed by address bank
	faultNext bool
}

func newMockTransactor() *mockTransactor {
	return &mockTransactor{regs: make(map[byte]uint32)}
}

func (m *mockTransactor) Transact(req []byte) ([]byte, error) {
	cp := append([]byte(nil), req...)
	m.requests = append(m.requests, cp)

	if req[0] == cmdResetTarget {
		return []byte{0x00, 0x00}, nil
	}
	if req[0] == cmdWriteAbort {
		return []byte{0x00, 0x01}, nil
	}

	cmd := req[3]
	isRead := cmd&bitRead != 0
	regKey := cmd & 0x0C
	if cmd&bitAP == 0 && regKey == 0 {
		// DP address 0x0 aliases two distinct registers: IDCODE (read)
		// and ABORT (write-only, never read back). Keep their storage
		// separate so a post-fault ABORT write cannot clobber IDCODE.
		if isRead {
			regKey = 0x10
		} else {
			regKey = 0x11
		}
	}

	ack := byte(ackOK)
	if m.faultNext {
		ack = ackFault
		m.faultNext = false
	}

	if isRead {
		v := m.regs[regKey]
		return []byte{0x01, 0x01, ack, byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}, nil
	}
	v := uint32(req[4]) | uint32(req[5])<<8 | uint32(req[6])<<16 | uint32(req[7])<<24
	if cmd&bitAP == 0 && regKey == dpCTRLSTAT&0x0C {
		// A real target acks CTRL/STAT power-up requests immediately;
		// simulate that so Init's poll loop succeeds on the first read.
		v |= ctrlCDBGPWRUPACK | ctrlCSYSPWRUPACK
	}
	m.regs[regKey] = v
	return []byte{0x01, 0x01, ack}, nil
}

func TestSetSelectSuppressesRedundantWrite(t *testing.T) {
	tx := newMockTransactor()
	e := NewEngine(tx)

	if err := e.setSelect(0x01, 0x00, 0x00); err != nil {
		t.Fatalf("first setSelect: %v", err)
	}
	firstCount := len(tx.requests)

	if err := e.setSelect(0x01, 0x00, 0x00); err != nil {
		t.Fatalf("second setSelect: %v", err)
	}
	if len(tx.requests) != firstCount {
		t.Fatalf("redundant setSelect issued a wire write: had %d requests, now %d", firstCount, len(tx.requests))
	}

	if err := e.setSelect(0x02, 0x00, 0x00); err != nil {
		t.Fatalf("changed setSelect: %v", err)
	}
	if len(tx.requests) != firstCount+1 {
		t.Fatalf("changed APSEL did not reprogram SELECT: had %d requests, now %d", firstCount, len(tx.requests))
	}
}

func TestReadBlockWordsReprogramsTARAtWrapBoundary(t *testing.T) {
	tx := newMockTransactor()
	e := NewEngine(tx)
	mem := NewMemAP(e, 0)

	// Start three words before a 1 KiB boundary so the loop crosses it.
	const base = tarWrapSize - 3*4
	_, err := mem.ReadBlockWords(base, 6)
	if err != nil {
		t.Fatalf("ReadBlockWords: %v", err)
	}

	tarWrites := 0
	for _, req := range tx.requests {
		if len(req) < 4 || req[0] != cmdTransfer {
			continue
		}
		// AP write, A[3:2] selecting TAR (apRegTAR&0x0C == 0x04).
		if req[3] == (bitAP | (apRegTAR & 0x0C)) {
			tarWrites++
		}
	}
	// One TAR write per word would defeat auto-increment; the boundary
	// crossing should add exactly one extra reprogram beyond the initial
	// TAR set (invariant I3).
	if tarWrites != 2 {
		t.Fatalf("want 2 TAR writes (initial + boundary re-arm), got %d", tarWrites)
	}
}

func TestDPReadRetriesOnceAfterAckFault(t *testing.T) {
	tx := newMockTransactor()
	e := NewEngine(tx)
	tx.regs[0x10] = 0x0BB11477 // IDCODE's isolated storage key, see Transact
	tx.faultNext = true

	v, err := e.DPRead(dpIDCODE)
	if err != nil {
		t.Fatalf("DPRead after fault-retry: %v", err)
	}
	if v != 0x0BB11477 {
		t.Fatalf("DPRead = 0x%08x, want 0x0bb11477", v)
	}

	sawResetTarget := false
	for _, req := range tx.requests {
		if req[0] == cmdResetTarget {
			sawResetTarget = true
		}
	}
	if !sawResetTarget {
		t.Fatal("DPRead did not reset the link after an AckFault")
	}
}

func TestInitPollsForPowerUpAck(t *testing.T) {
	tx := newMockTransactor()
	e := NewEngine(tx)

	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
}
