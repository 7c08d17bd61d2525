package swd

// Component identifies one CoreSight peripheral discovered during a
// ROM-table walk: its Peripheral ID and Component ID fields plus the
// base address of its 4 KiB register window (spec.md §3).
type Component struct {
	APSel byte
	Base  uint32
	PID   PID
	CID   CID
}

// PID decodes the five Peripheral ID bytes at offsets 0xFE0, 0xFE4,
// 0xFE8, 0xFEC, 0xFD0 within a component's 4 KiB window.
type PID struct {
	Part          uint16
	JEDEC         bool
	JEP106Cont    byte
	JEP106ID      byte
	Revision      byte
	CustomerMod   byte
	RevAnd        byte
	Size          byte
}

// IsARM reports whether the designer JEP106 code is ARM's (continuation
// count 4, id 0x3B), per Component.cpp's pid.isARM().
func (p PID) IsARM() bool {
	return p.JEDEC && p.JEP106Cont == 0x4 && p.JEP106ID == 0x3B
}

func decodePID(b [5]byte) PID {
	return PID{
		Part:        uint16(b[0]) | uint16(b[1]&0x0F)<<8,
		JEDEC:       b[2]&0x08 != 0,
		JEP106Cont:  b[4] & 0x0F,
		JEP106ID:    (b[1] >> 4) | (b[2]&0x07)<<4,
		Revision:    (b[2] >> 4) & 0x0F,
		CustomerMod: b[3] & 0x0F,
		RevAnd:      (b[3] >> 4) & 0x0F,
		Size:        (b[4] >> 4) & 0x0F,
	}
}

// CID class nibble values, per spec.md §3.
type CIDClass byte

const (
	ClassGenericVerification CIDClass = 0x0
	ClassROMTable            CIDClass = 0x1
	ClassDebugComponent      CIDClass = 0x9
	ClassPeripheralTest      CIDClass = 0xB
	ClassOptimoDE            CIDClass = 0xD
	ClassGenericIP           CIDClass = 0xE
	ClassPrimeCell           CIDClass = 0xF
)

// CID decodes the four Component ID bytes at offsets 0xFF0..0xFFC.
type CID struct {
	Class CIDClass
}

func decodeCID(b [4]byte) CID {
	preamble := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return CID{Class: CIDClass((preamble >> 12) & 0xF)}
}

// ARM part numbers this bridge recognises (spec.md §3 plus the richer
// table from Component.cpp, which includes CTI; the Micro Trace Buffer
// entry is this module's own addition, not present in the original).
const (
	partSCS_M3    uint16 = 0x000
	partITM_M347  uint16 = 0x001
	partDWT_M347  uint16 = 0x002
	partFPB_M34   uint16 = 0x003
	partCTI_M7    uint16 = 0x006
	partSCS_M00P  uint16 = 0x008
	partDWT_M00P  uint16 = 0x00A
	partBPU_M00P  uint16 = 0x00B
	partSCS_M47   uint16 = 0x00C
	partFPB_M7    uint16 = 0x00E
	partMTB_M0P   uint16 = 0x01B
	partTPIU_M3   uint16 = 0x923
	partETM_M4    uint16 = 0x925
	partTPIU_M4   uint16 = 0x9A1
)

// Name returns a human-readable component description, grounded on
// Component.cpp's getName() (including CTI); the MTB entry is this
// module's own addition beyond the original, and any unrecognised part
// falls through to "UNKNOWN" as the original does.
func (c Component) Name() string {
	if c.CID.Class == ClassROMTable {
		return "ROM_TABLE"
	}
	if !c.PID.IsARM() {
		return "UNKNOWN"
	}
	switch c.CID.Class {
	case ClassGenericIP:
		switch c.PID.Part {
		case partSCS_M3:
			return "Cortex-M3 SCS"
		case partITM_M347:
			return "Cortex-M3/M4/M7 ITM"
		case partDWT_M347:
			return "Cortex-M3/M4/M7 DWT"
		case partFPB_M34:
			return "Cortex-M3/M4 FPB"
		case partCTI_M7:
			return "Cortex-M7 CTI"
		case partSCS_M00P:
			return "Cortex-M0/M0+ SCS"
		case partDWT_M00P:
			return "Cortex-M0/M0+ DWT"
		case partBPU_M00P:
			return "Cortex-M0/M0+ BPU"
		case partSCS_M47:
			return "Cortex-M4/M7 SCS"
		case partFPB_M7:
			return "Cortex-M7 FPB"
		case partMTB_M0P:
			return "Cortex-M0+ MTB (Micro Trace Buffer)"
		}
	case ClassDebugComponent:
		switch c.PID.Part {
		case partTPIU_M3:
			return "Cortex-M3 TPIU"
		case partETM_M4:
			return "Cortex-M4 ETM"
		case partTPIU_M4:
			return "Cortex-M4 TPIU"
		case partCTI_M7:
			return "Cortex-M7 CTI"
		}
	}
	return "UNKNOWN"
}

// IsSCS reports whether this is a recognised ARMv6-M or ARMv7-M SCS,
// per spec.md §3.
func (c Component) IsSCS() bool {
	return c.CID.Class == ClassGenericIP && c.PID.IsARM() &&
		(c.PID.Part == partSCS_M3 || c.PID.Part == partSCS_M00P || c.PID.Part == partSCS_M47)
}

// IsDWT reports whether this is a recognised DWT unit, either ARMv6-M or
// ARMv7-M variant.
func (c Component) IsDWT() bool {
	return c.CID.Class == ClassGenericIP && c.PID.IsARM() &&
		(c.PID.Part == partDWT_M00P || c.PID.Part == partDWT_M347)
}

// IsFPB reports whether this is a recognised Flash Patch/Breakpoint unit
// (ARMv7-M FPB or ARMv6-M BPU subset).
func (c Component) IsFPB() bool {
	return c.CID.Class == ClassGenericIP && c.PID.IsARM() &&
		(c.PID.Part == partFPB_M34 || c.PID.Part == partFPB_M7 || c.PID.Part == partBPU_M00P)
}

// readComponent reads PID and CID for the component whose 4 KiB window
// starts at base, grounded on Component.cpp's readPid/readCid.
func readComponent(mem *MemAP, apsel byte, base uint32) (Component, error) {
	var pidBytes [5]byte
	pidOffsets := [5]uint32{0xFE0, 0xFE4, 0xFE8, 0xFEC, 0xFD0}
	for i, off := range pidOffsets {
		v, err := mem.ReadWord(base + off)
		if err != nil {
			return Component{}, err
		}
		pidBytes[i] = byte(v)
	}

	var cidBytes [4]byte
	cidOffsets := [4]uint32{0xFF0, 0xFF4, 0xFF8, 0xFFC}
	for i, off := range cidOffsets {
		v, err := mem.ReadWord(base + off)
		if err != nil {
			return Component{}, err
		}
		cidBytes[i] = byte(v)
	}

	return Component{
		APSel: apsel,
		Base:  base,
		PID:   decodePID(pidBytes),
		CID:   decodeCID(cidBytes),
	}, nil
}
