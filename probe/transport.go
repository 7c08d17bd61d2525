// Package probe implements L1-lower of the bridge (spec.md §4.1): discover
// exactly one attached CMSIS-DAP HID probe, exchange fixed-size HID
// reports with it, and expose the single synchronous Transact primitive
// the SWD engine builds on.
package probe

import (
	"log"
	"time"

	"dapbridge/daperr"
	"dapbridge/probe/hidio"
)

// defaultMTU is the packet size assumed before capability exchange
// resizes the scratch buffer (spec.md §4.1 step 5); Alt-Link's
// CMSIS-DAP.cpp uses the same 64+1 default.
const defaultMTU = 64 + 1

// transactTimeout is the fixed HID read timeout spec.md §4.1 mandates.
const transactTimeout = 1000 * time.Millisecond

// Transactor is the primitive the SWD engine (package swd) programs
// against: "transact(request_bytes) -> response_bytes", spec.md §4.1.
type Transactor interface {
	Transact(request []byte) ([]byte, error)
	MTU() int
}

// Transport owns the HID handle and the single packet scratch buffer for
// the life of one debug session (spec.md §3 Probe session). It is not
// safe for concurrent use — spec.md §5 assumes a single cooperative
// request-processing context (invariant I1).
type Transport struct {
	dev hidio.Device
	buf []byte // scratch buffer, size == mtu; resized at most once (I5 applies once resizing is done)

	Debug bool

	VendorID     uint16
	ProductID    uint16
	FirmwareVer  string
	Vendor       string
	Product      string
	Capabilities byte
	MaxPacketCnt byte
	IDCode       uint32
}

// Open discovers a probe with d, opens the HID connection, and runs the
// full bring-up sequence from spec.md §4.1 (steps 1-10). On any step
// failure the transport is torn down and the error returned; this mirrors
// core_engine/virtual_machine.go's NewVirtualMachine, which unwinds every
// resource it has acquired so far on the first failing step.
func Open(d hidio.Discoverer, debug bool) (*Transport, error) {
	dev, err := d.Discover()
	if err != nil {
		return nil, err
	}

	t := &Transport{
		dev:   dev,
		buf:   make([]byte, defaultMTU),
		Debug: debug,
	}
	info := dev.Info()
	t.VendorID, t.ProductID = info.VendorID, info.ProductID

	if err := t.bringUp(); err != nil {
		dev.Close()
		return nil, err
	}
	return t, nil
}

// MTU reports the negotiated packet size, including the report-id byte.
func (t *Transport) MTU() int {
	return len(t.buf)
}

// Transact prepends the report-id byte, pads to MTU, writes one HID
// output report and reads one HID input report, per spec.md §4.1
// Transact. The returned slice aliases t.buf and is only valid until the
// next Transact call (invariant I1: one in-flight request at a time).
func (t *Transport) Transact(request []byte) ([]byte, error) {
	if len(request) > len(t.buf)-1 {
		return nil, daperr.New(daperr.KindInvalidTxLen, "request of %d bytes exceeds mtu-1 (%d)", len(request), len(t.buf)-1)
	}

	t.buf[0] = 0x00 // report id
	copy(t.buf[1:], request)
	for i := 1 + len(request); i < len(t.buf); i++ {
		t.buf[i] = 0
	}

	if err := t.dev.Write(t.buf); err != nil {
		return nil, daperr.Wrap(daperr.KindUsbWrite, "hid write", err)
	}

	n, err := t.dev.ReadTimeout(t.buf, transactTimeout)
	if err != nil || n <= 0 {
		return nil, daperr.Wrap(daperr.KindUsbTimeout, "hid read", err)
	}

	if t.Debug {
		log.Printf("probe: tx cmd=0x%02x -> rx[0]=0x%02x rx[1]=0x%02x", request[0], t.buf[0], t.buf[1])
	}

	return t.buf, nil
}

// Close runs finalisation: disconnect, LEDs off, handle close — on every
// exit path, per the "scoped probe session" design note in spec.md §9.
func (t *Transport) Close() error {
	_, _ = t.cmdDisconnect()
	_, _ = t.cmdLED(ledRunning, false)
	_, _ = t.cmdLED(ledConnect, false)
	return t.dev.Close()
}

// bringUp runs the ten fatal-on-failure steps from spec.md §4.1.
func (t *Transport) bringUp() error {
	if err := t.cmdInfoCapabilities(); err != nil {
		return err
	}
	if _, err := t.cmdLED(ledRunning, false); err != nil {
		return err
	}
	if _, err := t.cmdLED(ledConnect, false); err != nil {
		return err
	}
	if _, err := t.cmdLED(ledConnect, true); err != nil {
		return err
	}
	if err := t.cmdConnect(); err != nil {
		return err
	}
	if err := t.cmdInfoFwVersion(); err != nil {
		return err
	}
	if err := t.cmdInfoVendor(); err != nil {
		return err
	}
	if err := t.cmdInfoName(); err != nil {
		return err
	}
	if err := t.cmdInfoPacketSize(); err != nil {
		return err
	}
	if err := t.cmdInfoPacketCount(); err != nil {
		return err
	}
	if _, err := t.cmdSwjPinsRead(); err != nil {
		return err
	}
	if _, err := t.cmdSwjClock(defaultSWJClockHz); err != nil {
		return err
	}
	if _, err := t.cmdTxConf(0, 64, 0); err != nil {
		return err
	}
	if _, err := t.cmdSwdConf(0); err != nil {
		return err
	}
	if _, err := t.cmdLED(ledRunning, true); err != nil {
		return err
	}
	if err := t.switchToSWD(); err != nil {
		return err
	}
	idcode, err := t.dpReadIDCode()
	if err != nil {
		return daperr.Wrap(daperr.KindFatal, "read idcode", err)
	}
	t.IDCode = idcode
	if err := t.resetLink(); err != nil {
		_, _ = t.cmdLED(ledRunning, false)
		return err
	}
	if _, err := t.cmdLED(ledRunning, false); err != nil {
		return err
	}
	if t.Debug {
		log.Printf("probe: bring-up complete fw=%q vendor=%q product=%q caps=0x%02x mtu=%d",
			t.FirmwareVer, t.Vendor, t.Product, t.Capabilities, t.MTU())
	}
	return nil
}
