package swd

import "dapbridge/daperr"

// DPRead and DPWrite expose the raw DP register primitives to callers
// outside this package (e.g. target.ADIv5Target's monitor hook), with a
// built-in retry-after-reset-link on AckFault: the fault is cleared once
// with ResetLink and the transfer retried, since a single bus glitch
// should not end the debug session (spec.md §7: "AckFault; caller should
// reset-link and retry once").
func (e *Engine) DPRead(reg byte) (uint32, error) {
	v, err := e.dpRead(reg)
	if daperr.KindOf(err) != daperr.KindAckFault {
		return v, err
	}
	if rerr := e.ResetLink(); rerr != nil {
		return 0, rerr
	}
	return e.dpRead(reg)
}

// DPWrite is dpWrite's fault-retrying counterpart.
func (e *Engine) DPWrite(reg byte, data uint32) error {
	err := e.dpWrite(reg, data)
	if daperr.KindOf(err) != daperr.KindAckFault {
		return err
	}
	if rerr := e.ResetLink(); rerr != nil {
		return rerr
	}
	return e.dpWrite(reg, data)
}

// APRead and APWrite expose single AP register access with the same
// fault-retry behaviour as DPRead/DPWrite.
func (e *Engine) APRead(apsel, reg byte) (uint32, error) {
	v, err := e.apRead(apsel, reg)
	if daperr.KindOf(err) != daperr.KindAckFault {
		return v, err
	}
	if rerr := e.ResetLink(); rerr != nil {
		return 0, rerr
	}
	return e.apRead(apsel, reg)
}

func (e *Engine) APWrite(apsel, reg byte, data uint32) error {
	err := e.apWrite(apsel, reg, data)
	if daperr.KindOf(err) != daperr.KindAckFault {
		return err
	}
	if rerr := e.ResetLink(); rerr != nil {
		return rerr
	}
	return e.apWrite(apsel, reg, data)
}
