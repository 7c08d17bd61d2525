package rsp

import (
	"encoding/hex"
	"strconv"
	"strings"

	"dapbridge/daperr"
	"dapbridge/target"
)

// reply is what a dispatched command produced: either an immediate
// packet payload, or nothing (e.g. `c`, whose reply arrives on the next
// halt — spec.md §4.4).
type reply struct {
	payload string
	send    bool
}

func replyWith(payload string) reply { return reply{payload: payload, send: true} }
func noReply() reply                 { return reply{} }

func okReply() reply { return replyWith("OK") }

func errReply(err error) reply {
	return replyWith("E" + hexByte(daperr.Byte(err)))
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}

// Dispatcher turns RSP payloads into target.Interface calls, holding the
// per-session state spec.md §3 describes: the attached flag and the
// H-letter-to-thread-id mapping (retained, not interpreted).
type Dispatcher struct {
	Target   target.Interface
	attached bool
	threadID map[byte]int64
}

// NewDispatcher wraps a target.Interface realisation.
func NewDispatcher(t target.Interface) *Dispatcher {
	return &Dispatcher{Target: t, threadID: make(map[byte]int64)}
}

// Attached reports whether the first-query attach (spec.md §4.4) has
// run successfully.
func (d *Dispatcher) Attached() bool { return d.attached }

// Dispatch runs one packet payload to completion, including every
// synchronous ADIv5 round-trip it entails (spec.md §5: one packet
// dispatched to completion before the next read resumes).
func (d *Dispatcher) Dispatch(payload string) reply {
	if len(payload) == 0 {
		return replyWith("")
	}

	switch payload[0] {
	case 'q':
		return d.dispatchQuery(payload)
	case '?':
		return replyWith("S05")
	case 'c':
		if len(payload) > 1 {
			// setCurrentPC is not modelled as a separate target
			// operation; the original leaves it a TODO stub and so
			// does this bridge (no SPEC_FULL component claims it).
			_, _ = parseHexUint64(payload[1:])
		}
		d.Target.Resume()
		return noReply()
	case 's':
		if len(payload) > 1 {
			_, _ = parseHexUint64(payload[1:])
		}
		signal, err := d.Target.Step()
		if err != nil {
			return errReply(err)
		}
		return replyWith("S" + hexByte(signal))
	case 'H':
		if len(payload) < 3 {
			return errReply(daperr.New(daperr.KindInvalidArgument, "short H packet"))
		}
		id, err := strconv.ParseInt(payload[2:], 16, 64)
		if err != nil {
			return errReply(daperr.New(daperr.KindInvalidArgument, "bad H id"))
		}
		d.threadID[payload[1]] = id
		return okReply()
	case 'g':
		regs, err := d.Target.ReadGenericRegisters()
		if err != nil {
			return errReply(err)
		}
		var sb strings.Builder
		for _, r := range regs {
			sb.WriteString(encodeHexLE32(r))
		}
		return replyWith(sb.String())
	case 'G':
		regs, ok := decodeGenericRegisters(payload[1:])
		if !ok {
			return errReply(daperr.New(daperr.KindInvalidArgument, "bad G payload"))
		}
		if err := d.Target.WriteGenericRegisters(regs); err != nil {
			return errReply(err)
		}
		return okReply()
	case 'p':
		n, ok := parseHexUint32(payload[1:])
		if !ok {
			return errReply(daperr.New(daperr.KindInvalidArgument, "bad p register number"))
		}
		v, err := d.Target.ReadRegister(n)
		if err != nil {
			return errReply(err)
		}
		return replyWith(encodeHexLE32(v))
	case 'P':
		n, val, ok := parsePWrite(payload[1:])
		if !ok {
			return errReply(daperr.New(daperr.KindInvalidArgument, "bad P payload"))
		}
		if err := d.Target.WriteRegister(n, val); err != nil {
			return errReply(err)
		}
		return okReply()
	case 'm':
		addr, length, ok := parseAddrLen(payload[1:], ',')
		if !ok {
			return errReply(daperr.New(daperr.KindInvalidArgument, "bad m payload"))
		}
		data := d.Target.ReadMemory(addr, length)
		return replyWith(hexEncodeBytes(data))
	case 'M':
		return d.dispatchWriteMemory(payload[1:], false)
	case 'X':
		return d.dispatchWriteMemory(payload[1:], true)
	case 'D':
		d.Target.Detach()
		return okReply()
	case 'Z', 'z':
		return d.dispatchBreakWatch(payload)
	default:
		return replyWith("")
	}
}

func (d *Dispatcher) dispatchQuery(payload string) reply {
	// First-query attach (spec.md §4.4): the earliest safe moment to
	// halt the core without racing the debugger's own first probe.
	if !d.attached {
		if err := d.Target.Attach(); err == nil {
			d.attached = true
		}
	}

	switch {
	case strings.HasPrefix(payload, "qSupported:"):
		return replyWith("PacketSize=3fff;Qbtrace:off-;Qbtrace:bts-")
	case strings.HasPrefix(payload, "qTStatus"):
		return replyWith("")
	case strings.HasPrefix(payload, "qOffsets"):
		return replyWith("Text=0;Data=0;Bss=0")
	case strings.HasPrefix(payload, "qSymbol:"):
		return okReply()
	case payload == "qC":
		return replyWith("QC-1")
	case strings.HasPrefix(payload, "qAttached"):
		return replyWith("1")
	case strings.HasPrefix(payload, "qRcmd"):
		return d.dispatchMonitor(payload)
	case strings.HasPrefix(payload, "qXfer"):
		return replyWith("")
	default:
		return replyWith("")
	}
}

// dispatchMonitor decodes `qRcmd,<hex>` and calls Monitor; an odd-length
// or non-hex payload is rejected with an InvalidArgument error reply
// (E0c), grounded on RemoteSerialProtocol.cpp's qRcmd handling.
func (d *Dispatcher) dispatchMonitor(payload string) reply {
	rest := strings.TrimPrefix(payload, "qRcmd")
	rest = strings.TrimPrefix(rest, ",")
	command, ok := decodeHexASCII(rest)
	if !ok {
		return errReply(daperr.New(daperr.KindInvalidArgument, "qRcmd: odd-length hex payload"))
	}
	output, err := d.Target.Monitor(command)
	if err != nil {
		return errReply(err)
	}
	if output == "" {
		return okReply()
	}
	return replyWith(output)
}

// dispatchBreakWatch parses `Z<kind>,<addr>,<len>` / `z<kind>,<addr>,<len>`
// and dispatches to Set/Unset Break/WatchPoint. Kind 0/1 select
// breakpoints, 2/3/4 select watchpoints (spec.md §4.4). The original
// source sets a watchpoint on both Z and z for kinds 2-4 (spec.md §9
// flags this as a bug); this bridge makes `z` unset, as the spec requires.
func (d *Dispatcher) dispatchBreakWatch(payload string) reply {
	if len(payload) < 2 || payload[1] < '0' || payload[1] > '4' {
		return errReply(daperr.New(daperr.KindInvalidArgument, "bad Z/z kind"))
	}
	if len(payload) < 3 || payload[2] != ',' {
		return errReply(daperr.New(daperr.KindInvalidArgument, "bad Z/z payload"))
	}
	fields := strings.SplitN(payload[3:], ",", 2)
	if len(fields) != 2 {
		return errReply(daperr.New(daperr.KindInvalidArgument, "bad Z/z payload"))
	}
	addr, ok := parseHexUint64(fields[0])
	if !ok {
		return errReply(daperr.New(daperr.KindInvalidArgument, "bad Z/z address"))
	}
	kindVal, ok := parseHexUint32(fields[1])
	if !ok {
		return errReply(daperr.New(daperr.KindInvalidArgument, "bad Z/z kind value"))
	}

	set := payload[0] == 'Z'
	var err error
	switch payload[1] {
	case '0':
		if set {
			err = d.Target.SetBreakPoint(target.BreakMemory, addr, kindVal)
		} else {
			err = d.Target.UnsetBreakPoint(target.BreakMemory, addr, kindVal)
		}
	case '1':
		if set {
			err = d.Target.SetBreakPoint(target.BreakHardware, addr, kindVal)
		} else {
			err = d.Target.UnsetBreakPoint(target.BreakHardware, addr, kindVal)
		}
	case '2':
		err = dispatchWatch(d.Target, set, target.WatchWrite, addr, kindVal)
	case '3':
		err = dispatchWatch(d.Target, set, target.WatchRead, addr, kindVal)
	case '4':
		err = dispatchWatch(d.Target, set, target.WatchAccess, addr, kindVal)
	}
	if err == target.ErrUnsupported {
		return replyWith("")
	}
	if err != nil {
		return errReply(err)
	}
	return okReply()
}

func dispatchWatch(t target.Interface, set bool, kind target.WatchPointType, addr uint64, kindVal uint32) error {
	if set {
		return t.SetWatchPoint(kind, addr, kindVal)
	}
	return t.UnsetWatchPoint(kind, addr, kindVal)
}

func (d *Dispatcher) dispatchWriteMemory(rest string, isBinary bool) reply {
	addr, length, remainder, ok := parseWriteMemoryHeader(rest)
	if !ok {
		return errReply(daperr.New(daperr.KindInvalidArgument, "bad write-memory payload"))
	}
	var data []byte
	if isBinary {
		data = []byte(remainder)
	} else {
		decoded, err := hex.DecodeString(remainder)
		if err != nil {
			return errReply(daperr.New(daperr.KindInvalidArgument, "bad hex payload"))
		}
		data = decoded
	}
	if uint32(len(data)) != length {
		return errReply(daperr.New(daperr.KindInvalidArgument, "write-memory length mismatch"))
	}
	if err := d.Target.WriteMemory(addr, data); err != nil {
		return errReply(err)
	}
	return okReply()
}
