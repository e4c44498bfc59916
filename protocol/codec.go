package protocol

import (
	"fmt"
	"math"
)

// Decode parses one RX buffer. It never returns a partially filled command:
// on error the returned Command must be ignored.
func Decode(data []byte) (Command, error) {
	if len(data) == 0 {
		return Command{}, ErrEmpty
	}
	if len(data) != CommandLength {
		return Command{}, fmt.Errorf("%d bytes: %w", len(data), ErrInvalidLength)
	}

	op, payload := Opcode(data[0]), data[1]
	switch op {
	case OpForward:
		m, err := NewMotion(Forward, DutyFromByte(payload))
		return Command{Op: op, Motion: m}, err
	case OpBackward:
		m, err := NewMotion(Backward, DutyFromByte(payload))
		return Command{Op: op, Motion: m}, err
	case OpStop:
		return Command{Op: op, Motion: MotionCommand{Direction: Stop}}, nil
	case OpSteer:
		return Command{Op: op, Steering: SteeringCommand{Angle: float64(int8(payload))}}, nil
	default:
		return Command{}, fmt.Errorf("%s: %w", op, ErrUnknownOpcode)
	}
}

// NewMotion validates the duty cycle. Out of range values are rejected, never clamped.
func NewMotion(d Direction, duty float64) (MotionCommand, error) {
	if math.IsNaN(duty) || duty < 0 || duty > MaxDuty {
		return MotionCommand{}, fmt.Errorf("%v: %w", duty, ErrOutOfRange)
	}

	switch d {
	case Stop:
		return MotionCommand{Direction: Stop}, nil
	case Forward, Backward:
		return MotionCommand{Direction: d, Duty: duty}, nil
	default:
		return MotionCommand{}, ErrInvalidDirection
	}
}

// DutyFromByte maps 0..255 linearly onto 0..100%.
func DutyFromByte(b byte) float64 {
	return float64(b) * MaxDuty / MaxDutyByte
}

// DutyToByte is the inverse of DutyFromByte, saturating outside [0,100].
func DutyToByte(duty float64) byte {
	if math.IsNaN(duty) || duty <= 0 {
		return 0
	}
	if duty >= MaxDuty {
		return MaxDutyByte
	}

	return byte(math.Round(duty * MaxDutyByte / MaxDuty))
}

func angleToByte(angle float64) byte {
	if math.IsNaN(angle) {
		return 0
	}

	a := math.Round(angle)
	a = max(a, math.MinInt8)
	a = min(a, math.MaxInt8)
	return byte(int8(a))
}

func EncodeMotion(d Direction, duty float64) ([]byte, error) {
	m, err := NewMotion(d, duty)
	if err != nil {
		return nil, err
	}

	return Command{Op: opcodeOf(m.Direction), Motion: m}.MarshalBinary()
}

// EncodeSteering saturates the angle to the signed byte range.
func EncodeSteering(angle float64) []byte {
	return []byte{byte(OpSteer), angleToByte(angle)}
}

func (c Command) MarshalBinary() ([]byte, error) {
	switch c.Op {
	case OpForward, OpBackward:
		return []byte{byte(c.Op), DutyToByte(c.Motion.Duty)}, nil
	case OpStop:
		return []byte{byte(c.Op), 0}, nil
	case OpSteer:
		return EncodeSteering(c.Steering.Angle), nil
	default:
		return nil, fmt.Errorf("%s: %w", c.Op, ErrUnknownOpcode)
	}
}

func opcodeOf(d Direction) Opcode {
	switch d {
	case Forward:
		return OpForward
	case Backward:
		return OpBackward
	default:
		return OpStop
	}
}

//
// Telemetry
//

func EncodeState(d Direction, duty, steering float64) []byte {
	return []byte{byte(TelemetryState), byte(d), DutyToByte(duty), angleToByte(steering)}
}

func EncodeLink(connected bool) []byte {
	if connected {
		return []byte{byte(TelemetryLink), LinkConnected}
	}
	return []byte{byte(TelemetryLink), LinkDisconnected}
}

func EncodeFault(op byte, consecutive int) []byte {
	return []byte{byte(TelemetryFault), op, byte(min(max(consecutive, 0), 255))}
}

func DecodeTelemetry(data []byte) (Notification, error) {
	if len(data) == 0 {
		return Notification{}, ErrEmpty
	}

	n := Notification{Kind: Telemetry(data[0])}
	switch {
	case n.Kind == TelemetryState && len(data) == 4:
		if data[1] > byte(Backward) {
			return Notification{}, ErrInvalidDirection
		}
		n.Direction = Direction(data[1])
		n.Duty = DutyFromByte(data[2])
		n.Steering = float64(int8(data[3]))
	case n.Kind == TelemetryLink && len(data) == 2:
		n.Link = data[1]
	case n.Kind == TelemetryFault && len(data) == 3:
		n.FaultOp = data[1]
		n.Consecutive = int(data[2])
	default:
		return Notification{}, fmt.Errorf("kind 0x%02X, %d bytes: %w", data[0], len(data), ErrInvalidTelemetry)
	}

	return n, nil
}
