package protocol

import "fmt"

type (
	Opcode    uint8
	Direction uint8
	Telemetry uint8
)

func (o Opcode) String() string {
	switch o {
	case OpForward:
		return "forward"
	case OpBackward:
		return "backward"
	case OpStop:
		return "stop"
	case OpSteer:
		return "steer"
	default:
		return fmt.Sprintf("opcode(0x%02X)", uint8(o))
	}
}

func (d Direction) String() string {
	switch d {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	v, err := ParseDirection(string(text))
	if err != nil {
		return err
	}

	*d = v
	return nil
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "stop":
		return Stop, nil
	case "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	default:
		return Stop, fmt.Errorf("%s: %w", s, ErrInvalidDirection)
	}
}

// MotionCommand drives the DC motor. Duty is a percentage in [0,100].
type MotionCommand struct {
	Direction Direction
	Duty      float64
}

// SteeringCommand is a signed angle in degrees relative to the centre position.
type SteeringCommand struct {
	Angle float64
}

// A Command is the decoded form of one RX buffer.
// Motion is meaningful for Forward/Backward/Stop, Steering for Steer.
type Command struct {
	Op       Opcode
	Motion   MotionCommand
	Steering SteeringCommand
}

func (c Command) IsMotion() bool {
	return c.Op == OpForward || c.Op == OpBackward || c.Op == OpStop
}

func (c Command) String() string {
	switch c.Op {
	case OpForward, OpBackward:
		return fmt.Sprintf("%s %.1f%%", c.Op, c.Motion.Duty)
	case OpSteer:
		return fmt.Sprintf("%s %+.0f°", c.Op, c.Steering.Angle)
	default:
		return c.Op.String()
	}
}

// A Notification is a decoded TX telemetry buffer.
type Notification struct {
	Kind        Telemetry
	Direction   Direction
	Duty        float64
	Steering    float64
	Link        byte
	FaultOp     byte
	Consecutive int
}
