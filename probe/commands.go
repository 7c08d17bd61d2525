package probe

// CMSIS-DAP command bytes, per spec.md §6 and Alt-Link's CMSIS-DAP.h enum
// CMD. Only the subset this bridge issues is named; CMD_TX_BLOCK,
// CMD_TX_ABORT, CMD_DELAY, CMD_JTAG_* are never sent (SWD-only, spec.md
// §1 Non-goals).
const (
	cmdInfo         byte = 0x00
	cmdLED          byte = 0x01
	cmdConnect      byte = 0x02
	cmdDisconnect   byte = 0x03
	cmdTxConf       byte = 0x04
	cmdTransfer     byte = 0x05
	cmdWriteAbort   byte = 0x08
	cmdResetTarget  byte = 0x0A
	cmdSwjPins      byte = 0x10
	cmdSwjClock     byte = 0x11
	cmdSwjSeq       byte = 0x12
	cmdSwdConf      byte = 0x13
)

// INFO subcommand ids.
const (
	infoFwVersion byte = 0x04
	infoVendor    byte = 0x05
	infoName      byte = 0x06
	infoCaps      byte = 0xF0
	infoPktCount  byte = 0xFE
	infoPktSize   byte = 0xFF
)

// LED ids.
const (
	ledConnect byte = 0
	ledRunning byte = 1
)

// CMD_CONNECT modes.
const (
	connectModeSWD byte = 0x01
)

// DAP response status byte.
const dapResOK byte = 0x00

// SWJ pin bit positions (spec.md §4.2 via Alt-Link CMSIS-DAP.cpp).
const (
	pinSWCLK  byte = 1 << 0
	pinSWDIO  byte = 1 << 1
	pinTDI    byte = 1 << 2
	pinTDO    byte = 1 << 3
	pinNTRST  byte = 1 << 5
	pinNRESET byte = 1 << 7
)

// maxSWJClockHz is the clamp setSpeed applies, spec.md §4.1 step 8.
const maxSWJClockHz = 10 * 1000 * 1000

// defaultSWJClockHz is the speed set during bring-up before the caller
// can request a faster one.
const defaultSWJClockHz = 100 * 1000
