// Package pwm drives PWM outputs through the Linux sysfs interface.
//
// See https://www.kernel.org/doc/Documentation/pwm.txt
package pwm

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mdouchement/rcbled/actuator"
)

var (
	ErrExport      = errors.New("channel not exported")
	ErrInvalidDuty = errors.New("invalid duty value")
	ErrPulseRange  = errors.New("pulse width longer than the period")
)

// ServoPeriod is the standard 50Hz frame of hobby servos.
const ServoPeriod = 20 * time.Millisecond

// ExportTimeout bounds the wait for udev to create the channel after its export.
var ExportTimeout = time.Second

type Chip struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
	NPWM int    `json:"npwm"`
}

// A Motor drives the two H-bridge inputs, one PWM channel each.
type Motor struct {
	channels map[actuator.Channel]*Channel
}

func OpenMotor(chip, forward, backward, frequency int) (*Motor, error) {
	if frequency <= 0 {
		return nil, fmt.Errorf("frequency: %d: must be greater than 0", frequency)
	}
	period := time.Second / time.Duration(frequency)

	a, err := OpenChannel(chip, forward, period)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}

	b, err := OpenChannel(chip, backward, period)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("backward: %w", err)
	}

	return &Motor{
		channels: map[actuator.Channel]*Channel{
			actuator.ChannelA: a,
			actuator.ChannelB: b,
		},
	}, nil
}

// SetDuty implements actuator.PWM.
func (m *Motor) SetDuty(ch actuator.Channel, duty float64) error {
	if math.IsNaN(duty) || duty < 0 || duty > 100 {
		return ErrInvalidDuty
	}

	c, ok := m.channels[ch]
	if !ok {
		return fmt.Errorf("channel %s: %w", ch, ErrExport)
	}

	return c.SetDutyCycle(time.Duration(math.Round(float64(c.Period()) * duty / 100)))
}

// ForceLow implements actuator.PWM.
func (m *Motor) ForceLow(ch actuator.Channel) error {
	c, ok := m.channels[ch]
	if !ok {
		return fmt.Errorf("channel %s: %w", ch, ErrExport)
	}

	return c.Disable()
}

func (m *Motor) Close() error {
	return errors.Join(m.channels[actuator.ChannelA].Close(), m.channels[actuator.ChannelB].Close())
}

// A Servo drives the steering servo with a 50Hz channel.
type Servo struct {
	channel *Channel
}

func OpenServo(chip, channel int) (*Servo, error) {
	c, err := OpenChannel(chip, channel, ServoPeriod)
	if err != nil {
		return nil, fmt.Errorf("servo: %w", err)
	}

	return &Servo{channel: c}, nil
}

// SetPulseWidth implements actuator.Servo.
func (s *Servo) SetPulseWidth(d time.Duration) error {
	if d < 0 || d > s.channel.Period() {
		return ErrPulseRange
	}

	return s.channel.SetDutyCycle(d)
}

func (s *Servo) Close() error {
	return s.channel.Close()
}
