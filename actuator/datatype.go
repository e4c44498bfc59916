package actuator

import (
	"fmt"
	"time"

	"github.com/mdouchement/rcbled/protocol"
)

type Channel uint8

const (
	ChannelA Channel = iota // forward
	ChannelB                // backward
)

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// PWM drives the two H-bridge inputs. Duty is expressed in percent (0..100).
type PWM interface {
	SetDuty(ch Channel, duty float64) error
	ForceLow(ch Channel) error
}

type Servo interface {
	SetPulseWidth(d time.Duration) error
}

// State is the physical output as last written to the peripherals.
type State struct {
	Direction protocol.Direction `json:"direction"`
	Duty      float64            `json:"duty"`
	Steering  float64            `json:"steering"`
}

type Op string

const (
	OpForceLow Op = "force-low"
	OpSetDuty  Op = "set-duty"
	OpServo    Op = "servo"
)

// Code is the telemetry identifier of the operation.
func (o Op) Code() byte {
	switch o {
	case OpForceLow:
		return protocol.FaultForceLow
	case OpSetDuty:
		return protocol.FaultSetDuty
	default:
		return protocol.FaultServo
	}
}

// A Fault is a failed peripheral write.
// Consecutive counts the failures of the same operation on the same channel since its
// last success, this one included.
type Fault struct {
	Op          Op
	Channel     Channel
	Err         error
	Consecutive int
}

func (f Fault) Error() string {
	if f.Op == OpServo {
		return fmt.Sprintf("%s: %s", f.Op, f.Err)
	}
	return fmt.Sprintf("%s %s: %s", f.Op, f.Channel, f.Err)
}

func (f Fault) Unwrap() error {
	return f.Err
}

type Config struct {
	MinAngle float64
	MaxAngle float64
	// Pulse converts a steering angle (degrees from centre) into a servo pulse width.
	Pulse func(angle float64) time.Duration
}
