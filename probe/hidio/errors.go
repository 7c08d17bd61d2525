package hidio

import "dapbridge/daperr"

// ErrNotFound is returned by a Discoverer when no matching probe is
// attached (spec.md §4.1: "Fails with kind NotFound if none").
var ErrNotFound = daperr.New(daperr.KindProbeNotFound, "no CMSIS-DAP device found")

// ErrTimeout is returned by ReadTimeout when no report arrived in time
// (spec.md §4.1 Transact).
var ErrTimeout = daperr.New(daperr.KindUsbTimeout, "hid read timed out")
