package swd

// romTableMaxDepth bounds ROM-table recursion (spec.md §4.2: "bound
// depth at 4").
const romTableMaxDepth = 4

// basePresent is the "present" bit in a MEM-AP's BASE register: when
// clear, the AP has no discoverable component window.
const basePresent = 1 << 0

// romEntry fields within a 32-bit ROM-table word (spec.md §3).
const (
	romEntryPresent = 1 << 0
	romEntryFormat  = 1 << 1
)

// Discovery is the tree of CoreSight components found by WalkAPs: every
// AP in 0..255 whose IDR is non-zero, and for each MEM-AP among them, the
// components reachable from its BASE register (spec.md §4.2 "Discovery
// result").
type Discovery struct {
	APs        []APDescriptor
	Components []Component
}

// APDescriptor mirrors spec.md §3's "Access Port (AP) descriptor".
type APDescriptor struct {
	Index byte
	IDR   uint32
	IsMem bool
	CFG   uint32
	Base  uint32
}

// WalkAPs enumerates APSEL 0..255, stopping at the first all-zero IDR,
// and walks the ROM table (or bare component) under every MEM-AP's BASE.
func (e *Engine) WalkAPs() (*Discovery, error) {
	d := &Discovery{}
	for apsel := 0; apsel < 256; apsel++ {
		idr, err := e.ReadIDR(byte(apsel))
		if err != nil {
			return d, err
		}
		if idr == 0 {
			break
		}
		desc := APDescriptor{Index: byte(apsel), IDR: idr}

		// A MEM-AP's IDR class field (bits 16:13) is 0x8; JTAG-APs and
		// other AP kinds are skipped for component discovery.
		isMem := (idr>>13)&0xF == 0x8
		desc.IsMem = isMem
		if isMem {
			cfg, err := e.apRead(byte(apsel), apRegCFG)
			if err != nil {
				return d, err
			}
			base, err := e.apRead(byte(apsel), apRegBASE)
			if err != nil {
				return d, err
			}
			desc.CFG, desc.Base = cfg, base

			if base&basePresent != 0 {
				mem := NewMemAP(e, byte(apsel))
				tableBase := base &^ 0xFFF
				comps, err := walkTable(mem, byte(apsel), tableBase, 0)
				if err != nil {
					return d, err
				}
				d.Components = append(d.Components, comps...)
			}
		}
		d.APs = append(d.APs, desc)
	}
	return d, nil
}

// walkTable reads entries at table+0x000, +0x004, ... until an all-zero
// word, recursing into child ROM tables up to romTableMaxDepth deep
// (spec.md §4.2). Depth cap and all-zero entry are parallel, purely local
// stop conditions: hitting either just ends this branch and returns
// whatever components it already found, leaving sibling APs and earlier
// branches unaffected.
func walkTable(mem *MemAP, apsel byte, tableBase uint32, depth int) ([]Component, error) {
	if depth >= romTableMaxDepth {
		return nil, nil
	}
	var found []Component
	for offset := uint32(0); ; offset += 4 {
		entry, err := mem.ReadWord(tableBase + offset)
		if err != nil {
			return found, err
		}
		if entry == 0 {
			break
		}
		if entry&romEntryPresent == 0 {
			continue
		}
		// Entries encode a signed offset in the upper 20 bits, scaled by
		// 4 KiB (spec.md §3: "(signed offset<<12) + table_base").
		signedOffset := int32(entry) >> 12 << 12
		childBase := uint32(int32(tableBase) + signedOffset)

		comp, err := readComponent(mem, apsel, childBase)
		if err != nil {
			return found, err
		}
		if comp.CID.Class == ClassROMTable {
			children, err := walkTable(mem, apsel, childBase, depth+1)
			if err != nil {
				return found, err
			}
			found = append(found, children...)
			continue
		}
		found = append(found, comp)
	}
	return found, nil
}

// FindSCS returns the first recognised SCS component, if any.
func (d *Discovery) FindSCS() (Component, bool) {
	for _, c := range d.Components {
		if c.IsSCS() {
			return c, true
		}
	}
	return Component{}, false
}

// FindDWT returns the first recognised DWT component, if any.
func (d *Discovery) FindDWT() (Component, bool) {
	for _, c := range d.Components {
		if c.IsDWT() {
			return c, true
		}
	}
	return Component{}, false
}

// FindFPB returns the first recognised FPB/BPU component, if any.
func (d *Discovery) FindFPB() (Component, bool) {
	for _, c := range d.Components {
		if c.IsFPB() {
			return c, true
		}
	}
	return Component{}, false
}

// DefaultMemAP returns the first MEM-AP suitable for system memory
// access, per spec.md §4.2's "a default MEM-AP usable for system memory".
func (d *Discovery) DefaultMemAP() (APDescriptor, bool) {
	for _, ap := range d.APs {
		if ap.IsMem {
			return ap, true
		}
	}
	return APDescriptor{}, false
}
