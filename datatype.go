package rcbled

import (
	"context"
	"time"

	"github.com/mdouchement/rcbled/actuator"
	"github.com/mdouchement/rcbled/lifecycle"
	"github.com/mdouchement/rcbled/protocol"
)

// A Link is the wireless transport to the remote client.
// Hooks may be called from any goroutine.
type Link interface {
	Handle(onConnect, onDisconnect func(), onData func([]byte))
	Advertise(ctx context.Context) error
	Notify(p []byte) error
	Close() error
}

// A MotorDriver produces both the motor and the steering signals.
type MotorDriver interface {
	actuator.PWM
	actuator.Servo
}

// Status is the snapshot streamed to monitors.
type Status struct {
	Connection lifecycle.State    `json:"connection"`
	Direction  protocol.Direction `json:"direction"`
	Duty       float64            `json:"duty"`
	Steering   float64            `json:"steering"`
	Accepted   uint64             `json:"accepted"`
	Rejected   uint64             `json:"rejected"`
	Ignored    uint64             `json:"ignored"`
	Faults     uint64             `json:"faults"`
	Uptime     Duration           `json:"uptime"`
}

func ToPtr[T any](v T) *T {
	return &v
}

type segment struct {
	angle float64
	eval  func(float64) float64
}

const (
	eventConnect    = "connect"
	eventDisconnect = "disconnect"
	eventData       = "data"
	eventWatch      = "watch"
	eventUnwatch    = "unwatch"
)

type event struct {
	name      string
	data      []byte
	monitorID int64
	monitor   chan<- []byte
}

func genID() int64 {
	time.Sleep(time.Nanosecond)
	return time.Now().UnixNano()
}
