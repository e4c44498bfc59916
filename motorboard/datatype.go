package motorboard

import (
	"fmt"
	"strings"
)

type Command uint8

func (c Command) String() string {
	switch c {
	case CommandHardwareInfo:
		return "hardware_info"
	case CommandFirmwareInfo:
		return "firmware_info"
	case CommandSetDuty:
		return "set_duty"
	case CommandForceLow:
		return "force_low"
	case CommandServoPulse:
		return "servo_pulse"
	case CommandFrequency:
		return "frequency"
	default:
		return fmt.Sprintf("command(0x%02X)", uint8(c))
	}
}

type HardwareInfo struct {
	Revision string `json:"revision"`
	MCU      string `json:"mcu"`
	USB      string `json:"usb"`
	Channels string `json:"channels"`
	Driver   string `json:"driver"`
}

type FirmwareInfo struct {
	Revision        string `json:"revision"`
	ProtocolVersion string `json:"protocol_version"`
}

// A BoardError is an error reported by the board firmware.
type BoardError struct {
	Command Command
	Message string
}

func (e *BoardError) Error() string {
	return fmt.Sprintf("%s: board: %s", e.Command, e.Message)
}

// f2x formats the numeric value, never a Stringer's text.
func f2x[T ~uint8](v T) (byte, byte) {
	s := fmt.Sprintf("%02X", uint8(v))
	return s[0], s[1]
}

func f4x[T ~uint16](v T) (byte, byte, byte, byte) {
	s := fmt.Sprintf("%04X", uint16(v))
	return s[0], s[1], s[2], s[3]
}

// fields splits a `KEY:VALUE;KEY:VALUE` payload.
func fields(payload []byte) map[string]string {
	m := map[string]string{}
	for kv := range strings.SplitSeq(string(payload), ";") {
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m
}
