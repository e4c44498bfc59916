// Package dispatch routes raw RX buffers to the actuator.
package dispatch

import (
	"errors"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rcbled/protocol"
)

type Actuator interface {
	ApplyMotion(d protocol.Direction, duty float64)
	ApplySteering(angle float64)
}

type Stats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Ignored  uint64 `json:"ignored"`
}

// A Dispatcher is owned by the goroutine delivering the RX buffers.
type Dispatcher struct {
	act   Actuator
	log   logger.Logger
	stats Stats
}

func New(act Actuator, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		act: act,
		log: log,
	}
}

// HandleInbound applies at most one command per buffer.
// Malformed buffers are dropped and never reach the actuator.
func (d *Dispatcher) HandleInbound(data []byte) {
	cmd, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrEmpty) {
			d.stats.Ignored++
			d.log.Debug("Empty buffer ignored")
			return
		}

		d.stats.Rejected++
		d.log.WithError(err).Warnf("Dropped command % X", data)
		return
	}

	d.stats.Accepted++
	d.log.Debugf("Command %s", cmd)

	if cmd.IsMotion() {
		d.act.ApplyMotion(cmd.Motion.Direction, cmd.Motion.Duty)
		return
	}
	d.act.ApplySteering(cmd.Steering.Angle)
}

func (d *Dispatcher) Stats() Stats {
	return d.stats
}
