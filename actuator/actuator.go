package actuator

import (
	"errors"
	"math"

	"github.com/mdouchement/rcbled/protocol"
)

var ErrInvalidConfig = errors.New("invalid actuator config")

// An Actuator owns the motor and steering outputs.
// It is not safe for concurrent use: a single goroutine must drive it.
type Actuator struct {
	pwm      PWM
	servo    Servo
	cfg      Config
	state    State
	failures map[failureKey]int
	fault    func(Fault)
}

type failureKey struct {
	op Op
	ch Channel
}

func New(pwm PWM, servo Servo, cfg Config) (*Actuator, error) {
	if cfg.Pulse == nil || cfg.MinAngle > cfg.MaxAngle || cfg.MinAngle > 0 || cfg.MaxAngle < 0 {
		return nil, ErrInvalidConfig
	}

	return &Actuator{
		pwm:      pwm,
		servo:    servo,
		cfg:      cfg,
		failures: make(map[failureKey]int),
	}, nil
}

// OnFault registers the hook called on every failed peripheral write.
func (a *Actuator) OnFault(f func(Fault)) {
	a.fault = f
}

// Init puts both channels low and the steering at neutral.
func (a *Actuator) Init() error {
	errA := a.forceLow(ChannelA)
	errB := a.forceLow(ChannelB)
	a.state.Direction = protocol.Stop
	a.state.Duty = 0

	errS := a.steer(0)
	if errS == nil {
		a.state.Steering = 0
	}

	return errors.Join(errA, errB, errS)
}

func (a *Actuator) State() State {
	return a.state
}

func (a *Actuator) Stop() {
	a.ApplyMotion(protocol.Stop, 0)
}

// ApplyMotion sets the motor direction and duty.
// The inactive channel is always forced low before the active one is driven.
func (a *Actuator) ApplyMotion(d protocol.Direction, duty float64) {
	duty = clampDuty(duty)

	var active, inactive Channel
	switch d {
	case protocol.Forward:
		active, inactive = ChannelA, ChannelB
	case protocol.Backward:
		active, inactive = ChannelB, ChannelA
	default:
		a.forceLow(ChannelA)
		a.forceLow(ChannelB)
		a.state.Direction = protocol.Stop
		a.state.Duty = 0
		return
	}

	if err := a.forceLow(inactive); err != nil {
		// Interlock not guaranteed, never drive the other side.
		a.forceLow(active)
		a.state.Direction = protocol.Stop
		a.state.Duty = 0
		return
	}

	if a.state.Direction != d {
		// The previously driven channel is low now.
		a.state.Direction = protocol.Stop
		a.state.Duty = 0
	}

	if err := a.write(OpSetDuty, active, func() error { return a.pwm.SetDuty(active, duty) }); err != nil {
		return
	}

	a.state.Direction = d
	a.state.Duty = duty
}

// ApplySteering clamps the angle to the travel range and moves the servo.
func (a *Actuator) ApplySteering(angle float64) {
	if math.IsNaN(angle) {
		angle = 0
	}
	angle = min(max(angle, a.cfg.MinAngle), a.cfg.MaxAngle)

	if err := a.steer(angle); err != nil {
		return
	}
	a.state.Steering = angle
}

func (a *Actuator) forceLow(ch Channel) error {
	return a.write(OpForceLow, ch, func() error { return a.pwm.ForceLow(ch) })
}

func (a *Actuator) steer(angle float64) error {
	pulse := a.cfg.Pulse(angle)
	return a.write(OpServo, 0, func() error { return a.servo.SetPulseWidth(pulse) })
}

func (a *Actuator) write(op Op, ch Channel, fn func() error) error {
	k := failureKey{op: op, ch: ch}

	err := fn()
	if err == nil {
		delete(a.failures, k)
		return nil
	}

	a.failures[k]++
	if a.fault != nil {
		a.fault(Fault{Op: op, Channel: ch, Err: err, Consecutive: a.failures[k]})
	}
	return err
}

func clampDuty(duty float64) float64 {
	if math.IsNaN(duty) {
		return 0
	}
	return min(max(duty, 0), protocol.MaxDuty)
}
