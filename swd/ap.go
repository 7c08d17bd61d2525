package swd

// AP register addresses (spec.md §4.2): upper nibble is APBANKSEL,
// low two bits are A[3:2] in the Transfer command.
const (
	apRegCSW  byte = 0x00
	apRegTAR  byte = 0x04
	apRegDRW  byte = 0x0C
	apRegCFG  byte = 0xF4
	apRegBASE byte = 0xF8
	apRegIDR  byte = 0xFC
)

// bankOf returns (APBANKSEL, A[3:2]) for an 8-bit AP register address.
func bankOf(reg byte) (bank, a32 byte) {
	return reg >> 4, reg & 0x0C
}

// selectAP reprograms DP SELECT for (apsel, reg) only if it differs from
// the cached shadow (invariant I2).
func (e *Engine) selectAP(apsel, reg byte) error {
	bank, _ := bankOf(reg)
	return e.setSelect(apsel, bank, 0)
}

// apRead performs a single AP register read. AP reads are posted (spec.md
// §4.2): the first read returns data from the PREVIOUS transfer, so this
// issues the addressed read, then follows with a DP RDBUFF read to fetch
// the actual value.
func (e *Engine) apRead(apsel, reg byte) (uint32, error) {
	if err := e.selectAP(apsel, reg); err != nil {
		return 0, err
	}
	_, a32 := bankOf(reg)
	cmd := bitAP | bitRead | a32
	resp, err := e.tx.Transact([]byte{cmdTransfer, 0x00, 0x01, cmd})
	if err != nil {
		return 0, err
	}
	if err := checkTransferAck(resp); err != nil {
		return 0, err
	}
	return e.dpRead(dpRDBUFF)
}

// apWrite performs a single AP register write.
func (e *Engine) apWrite(apsel, reg byte, data uint32) error {
	if err := e.selectAP(apsel, reg); err != nil {
		return err
	}
	_, a32 := bankOf(reg)
	cmd := bitAP | a32
	req := []byte{
		cmdTransfer, 0x00, 0x01, cmd,
		byte(data), byte(data >> 8), byte(data >> 16), byte(data >> 24),
	}
	resp, err := e.tx.Transact(req)
	if err != nil {
		return err
	}
	return checkTransferAck(resp)
}

// ReadIDR reads an AP's IDR register, used by ROM-table enumeration to
// discover which APSEL indices are populated (spec.md §4.2).
func (e *Engine) ReadIDR(apsel byte) (uint32, error) {
	return e.apRead(apsel, apRegIDR)
}
