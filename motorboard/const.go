package motorboard

const (
	CommRequestCharacter   = '>'
	CommResponseCharacter  = '<'
	CommSeparatorCharacter = '|'
	CommEndCharacter       = '\n'
	CommAltEndCharacter    = '\r'
	CommTxBufferLen        = 32
	CommRxChunkLen         = 128
	CommRxBufferLen        = CommRxChunkLen * 8
)

const (
	CommandHardwareInfo Command = 0x05
	CommandFirmwareInfo Command = 0x06
	CommandSetDuty      Command = 0x10
	CommandForceLow     Command = 0x11
	CommandServoPulse   Command = 0x12
	CommandFrequency    Command = 0x13
)

// Raspberry Pi RP2040 in its default USB CDC mode.
const (
	VID = "2e8a"
	PID = "000a"
)

const errorPrefix = "ERR:"
