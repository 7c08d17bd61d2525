package probe

import (
	"dapbridge/daperr"
)

// cmdInfoCapabilities issues CMD_INFO(CAPS), spec.md §4.1 step 1.
func (t *Transport) cmdInfoCapabilities() error {
	resp, err := t.Transact([]byte{cmdInfo, infoCaps})
	if err != nil {
		return err
	}
	if resp[1] != 1 {
		return daperr.New(daperr.KindDapResponse, "INFO CAPS: unexpected length byte 0x%02x", resp[1])
	}
	t.Capabilities = resp[2]
	return nil
}

// cmdLED issues CMD_LED, spec.md §6. led is 0=CONNECT, 1=RUNNING.
func (t *Transport) cmdLED(led byte, on bool) (bool, error) {
	onByte := byte(0)
	if on {
		onByte = 1
	}
	resp, err := t.Transact([]byte{cmdLED, led, onByte})
	if err != nil {
		return false, err
	}
	if resp[1] != dapResOK {
		return false, daperr.New(daperr.KindDapResponse, "LED: status 0x%02x", resp[1])
	}
	return true, nil
}

// cmdConnect issues CMD_CONNECT in SWD mode; spec.md §4.1 step 3 requires
// the echoed mode byte to equal the requested mode or the step is fatal.
func (t *Transport) cmdConnect() error {
	resp, err := t.Transact([]byte{cmdConnect, connectModeSWD})
	if err != nil {
		return err
	}
	if resp[1] != connectModeSWD {
		return daperr.New(daperr.KindFatal, "CONNECT: probe echoed mode 0x%02x, wanted SWD (0x01)", resp[1])
	}
	return nil
}

func (t *Transport) cmdDisconnect() (bool, error) {
	resp, err := t.Transact([]byte{cmdDisconnect})
	if err != nil {
		return false, err
	}
	if resp[1] != dapResOK {
		return false, daperr.New(daperr.KindDapResponse, "DISCONNECT: status 0x%02x", resp[1])
	}
	return true, nil
}

// cmdTxConf configures transfer retry counts, spec.md §4.1 step 9.
func (t *Transport) cmdTxConf(idle byte, waitRetry uint16, matchRetry uint16) (bool, error) {
	req := []byte{
		cmdTxConf, idle,
		byte(waitRetry), byte(waitRetry >> 8),
		byte(matchRetry), byte(matchRetry >> 8),
	}
	resp, err := t.Transact(req)
	if err != nil {
		return false, err
	}
	if resp[1] != dapResOK {
		return false, daperr.New(daperr.KindDapResponse, "TX_CONF: status 0x%02x", resp[1])
	}
	return true, nil
}

func (t *Transport) cmdSwdConf(cfg byte) (bool, error) {
	resp, err := t.Transact([]byte{cmdSwdConf, cfg})
	if err != nil {
		return false, err
	}
	if resp[1] != dapResOK {
		return false, daperr.New(daperr.KindDapResponse, "SWD_CONF: status 0x%02x", resp[1])
	}
	return true, nil
}

// cmdInfoFwVersion, cmdInfoVendor, cmdInfoName each read a NUL-terminated
// string or leave the field empty, per spec.md §4.1 step 4.
func (t *Transport) cmdInfoFwVersion() error {
	s, err := t.cmdInfoString(infoFwVersion)
	if err != nil {
		return err
	}
	t.FirmwareVer = s
	return nil
}

func (t *Transport) cmdInfoVendor() error {
	s, err := t.cmdInfoString(infoVendor)
	if err != nil {
		return err
	}
	t.Vendor = s
	return nil
}

func (t *Transport) cmdInfoName() error {
	s, err := t.cmdInfoString(infoName)
	if err != nil {
		return err
	}
	t.Product = s
	return nil
}

func (t *Transport) cmdInfoString(subID byte) (string, error) {
	resp, err := t.Transact([]byte{cmdInfo, subID})
	if err != nil {
		return "", err
	}
	n := int(resp[1])
	if n == 0 {
		return "", nil
	}
	end := 2 + n
	if end > len(resp) {
		end = len(resp)
	}
	// strip the NUL terminator CMSIS-DAP includes in the reported length
	str := resp[2:end]
	for i, b := range str {
		if b == 0 {
			str = str[:i]
			break
		}
	}
	return string(str), nil
}

// cmdInfoPacketSize issues CMD_INFO(PKT_SZ); if the probe reports a size
// different from the scratch buffer's current size, the buffer is
// reallocated once (spec.md §4.1 step 5, invariant: "scratch buffer
// resized at most once").
func (t *Transport) cmdInfoPacketSize() error {
	resp, err := t.Transact([]byte{cmdInfo, infoPktSize})
	if err != nil {
		return err
	}
	if resp[1] != 2 {
		return daperr.New(daperr.KindDapResponse, "INFO PKT_SZ: unexpected length byte 0x%02x", resp[1])
	}
	size := int(resp[2]) | int(resp[3])<<8
	if size+1 != len(t.buf) {
		t.buf = make([]byte, size+1)
	}
	return nil
}

func (t *Transport) cmdInfoPacketCount() error {
	resp, err := t.Transact([]byte{cmdInfo, infoPktCount})
	if err != nil {
		return err
	}
	if resp[1] != 1 {
		return daperr.New(daperr.KindDapResponse, "INFO PKT_CNT: unexpected length byte 0x%02x", resp[1])
	}
	t.MaxPacketCnt = resp[2]
	return nil
}

// cmdSwjPinsRead reads the SWJ pin state for diagnostics, spec.md §4.1
// step 7. The request selects SWCLK with a pin output of 0, so SWCLK is
// driven low; the returned byte is the probe's pin input state.
func (t *Transport) cmdSwjPinsRead() (byte, error) {
	req := []byte{cmdSwjPins, 0, pinSWCLK, 0, 0, 0, 0}
	resp, err := t.Transact(req)
	if err != nil {
		return 0, err
	}
	return resp[1], nil
}

// cmdSwjClock sets the SWJ clock, clamped to the 10MHz probe maximum,
// spec.md §4.1 step 8 / setSpeed.
func (t *Transport) cmdSwjClock(hz uint32) (bool, error) {
	if hz > maxSWJClockHz {
		hz = maxSWJClockHz
	}
	req := []byte{cmdSwjClock, byte(hz), byte(hz >> 8), byte(hz >> 16), byte(hz >> 24)}
	resp, err := t.Transact(req)
	if err != nil {
		return false, err
	}
	if resp[1] != dapResOK {
		return false, daperr.New(daperr.KindDapResponse, "SWJ_CLOCK: status 0x%02x", resp[1])
	}
	return true, nil
}

// SetSpeed exposes cmdSwjClock for callers that want to raise the clock
// after bring-up (spec.md §4.1 step 8: "later setSpeed clamps to 10MHz").
func (t *Transport) SetSpeed(hz uint32) error {
	_, err := t.cmdSwjClock(hz)
	return err
}

// switchToSWD drives the three SWJ_SEQ commands that switch the DP from
// JTAG to SWD and clear any sticky protocol error, spec.md §4.2.
func (t *Transport) switchToSWD() error {
	// 16 bits: the 0x9EE7 JTAG-to-SWD magic, sent LSB-first as 0x9E,0xE7.
	if _, err := t.Transact([]byte{cmdSwjSeq, 16, 0x9E, 0xE7}); err != nil {
		return err
	}
	// 56 bits high: line reset.
	lineReset := []byte{cmdSwjSeq, 56, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := t.Transact(lineReset); err != nil {
		return err
	}
	// 16 idle bits.
	if _, err := t.Transact([]byte{cmdSwjSeq, 16, 0x00, 0x00}); err != nil {
		return err
	}
	return nil
}

// dpReadIDCode performs the raw CMD_TX(DP_READ IDCODE) bring-up read,
// spec.md §4.1 step 10. It bypasses the SELECT-shadow bookkeeping the
// swd package provides, since IDCODE (bank 0x0) never depends on it.
func (t *Transport) dpReadIDCode() (uint32, error) {
	const cmdDPReadIDCode byte = 0x00 | (1 << 1) | 0x00 // DP | READ | A[3:2]=0
	req := []byte{cmdTransfer, 0x00, 0x01, cmdDPReadIDCode}
	resp, err := t.Transact(req)
	if err != nil {
		return 0, err
	}
	if resp[2]&0x04 != 0 { // TX_ACK_FAULT
		return 0, daperr.New(daperr.KindAckFault, "DP IDCODE read: SWD ACK=FAULT")
	}
	return uint32(resp[3]) | uint32(resp[4])<<8 | uint32(resp[5])<<16 | uint32(resp[6])<<24, nil
}

// resetLink issues CMD_RESET_TARGET followed by CMD_WRITE_ABORT with all
// four clear bits set, spec.md §4.2 ("the reset link helper writes all
// four clear bits") and §4.1 step 10.
func (t *Transport) resetLink() error {
	if _, err := t.Transact([]byte{cmdResetTarget}); err != nil {
		return err
	}
	const (
		abortSTKCMPCLR  = 1 << 1
		abortSTKERRCLR  = 1 << 2
		abortWDERRCLR   = 1 << 3
		abortORUNERRCLR = 1 << 4
	)
	clearBits := byte(abortSTKCMPCLR | abortSTKERRCLR | abortWDERRCLR | abortORUNERRCLR) // 0x1E
	req := []byte{cmdWriteAbort, 0x00, clearBits, 0x00, 0x00, 0x00}
	resp, err := t.Transact(req)
	if err != nil {
		return err
	}
	if resp[1] != dapResOK {
		return daperr.New(daperr.KindDapResponse, "WRITE_ABORT: status 0x%02x", resp[1])
	}
	return nil
}
