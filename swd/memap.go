package swd

import "dapbridge/daperr"

// CSW fields (spec.md §4.2, CMSIS-DAP.cpp CSW_*).
const (
	csw8Bit          uint32 = 0
	csw16Bit         uint32 = 1
	csw32Bit         uint32 = 2
	cswAddrIncSingle uint32 = 1 << 4
)

// tarWrapSize is the MEM-AP auto-increment wrap boundary ADIv5 mandates;
// a block transfer must reprogram TAR at every multiple of this size
// (invariant I3, testable property P5).
const tarWrapSize = 1024

// MemAP is a single MEM-AP's memory-access facade: program CSW once,
// then drive TAR/DRW respecting the 1 KiB auto-increment wrap rule.
type MemAP struct {
	eng   *Engine
	apsel byte

	cswProgrammed bool
	cswValue      uint32
	tar           uint32
	tarValid      bool
}

// NewMemAP wraps the MEM-AP at the given APSEL.
func NewMemAP(eng *Engine, apsel byte) *MemAP {
	return &MemAP{eng: eng, apsel: apsel}
}

// APSel reports the APSEL index this MemAP addresses.
func (m *MemAP) APSel() byte {
	return m.apsel
}

func (m *MemAP) programCSW(size uint32) error {
	value := size | cswAddrIncSingle
	if m.cswProgrammed && m.cswValue == value {
		return nil
	}
	if err := m.eng.apWrite(m.apsel, apRegCSW, value); err != nil {
		return err
	}
	m.cswProgrammed, m.cswValue = true, value
	return nil
}

func (m *MemAP) setTAR(addr uint32) error {
	if m.tarValid && m.tar == addr {
		return nil
	}
	return m.forceTAR(addr)
}

// forceTAR always issues a TAR write, bypassing the shadow check. Used by
// the single-word accessors and at 1 KiB auto-increment boundaries, where
// the wire value is unchanged from what our shadow believes but the AP's
// internal increment must still be re-armed (invariant I3).
func (m *MemAP) forceTAR(addr uint32) error {
	if err := m.eng.apWrite(m.apsel, apRegTAR, addr); err != nil {
		return err
	}
	m.tar, m.tarValid = addr, true
	return nil
}

// ReadWord performs a single 32-bit read at addr (spec.md §4.2: "write
// CSW with size=32-bit ... write TAR=A; read DRW").
func (m *MemAP) ReadWord(addr uint32) (uint32, error) {
	if err := m.programCSW(csw32Bit); err != nil {
		return 0, err
	}
	if err := m.forceTAR(addr); err != nil {
		return 0, err
	}
	v, err := m.eng.apRead(m.apsel, apRegDRW)
	if err != nil {
		return 0, err
	}
	m.tar += 4
	return v, nil
}

// WriteWord performs a single 32-bit write at addr.
func (m *MemAP) WriteWord(addr, data uint32) error {
	if err := m.programCSW(csw32Bit); err != nil {
		return err
	}
	if err := m.forceTAR(addr); err != nil {
		return err
	}
	if err := m.eng.apWrite(m.apsel, apRegDRW, data); err != nil {
		return err
	}
	m.tar += 4
	return nil
}

// ReadBlockWords reads count consecutive 32-bit words starting at addr,
// reprogramming TAR at every 1 KiB wrap boundary instead of relying on
// the AP's internal auto-increment to cross it (invariant I3).
func (m *MemAP) ReadBlockWords(addr uint32, count int) ([]uint32, error) {
	if count < 0 {
		return nil, daperr.New(daperr.KindInvalidArgument, "negative word count")
	}
	if err := m.programCSW(csw32Bit); err != nil {
		return nil, err
	}
	out := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		cur := addr + uint32(i)*4
		var err error
		if cur%tarWrapSize == 0 {
			err = m.forceTAR(cur)
		} else {
			err = m.setTAR(cur)
		}
		if err != nil {
			return out, err
		}
		v, err := m.eng.apRead(m.apsel, apRegDRW)
		if err != nil {
			return out, err
		}
		out = append(out, v)
		m.tar = cur + 4
	}
	return out, nil
}
