package rcbled

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rcbled/actuator"
)

const dummyBacklog = 256

// A DummyMotorDriver should only be used for dev & tests.
type DummyMotorDriver struct {
	sync     sync.Mutex
	duties   map[actuator.Channel]float64
	pulse    time.Duration
	calls    []string
	failures map[string]error
	log      logger.Logger
}

func NewDummyMotorDriver() *DummyMotorDriver {
	return &DummyMotorDriver{
		duties:   make(map[actuator.Channel]float64, 2),
		failures: make(map[string]error),
	}
}

func (d *DummyMotorDriver) SetLogger(l logger.Logger) {
	d.log = l
}

func (d *DummyMotorDriver) Close() error {
	return nil
}

func (d *DummyMotorDriver) Port() string {
	return "x-testing"
}

func (d *DummyMotorDriver) SetDuty(ch actuator.Channel, duty float64) error {
	d.sync.Lock()
	defer d.sync.Unlock()

	if err := d.record(fmt.Sprintf("duty %s", ch)); err != nil {
		return err
	}

	d.duties[ch] = duty
	if d.log != nil {
		d.log.Debugf("Channel %s at %.1f%%", ch, duty)
	}
	return nil
}

func (d *DummyMotorDriver) ForceLow(ch actuator.Channel) error {
	d.sync.Lock()
	defer d.sync.Unlock()

	if err := d.record(fmt.Sprintf("low %s", ch)); err != nil {
		return err
	}

	delete(d.duties, ch)
	if d.log != nil {
		d.log.Debugf("Channel %s low", ch)
	}
	return nil
}

func (d *DummyMotorDriver) SetPulseWidth(p time.Duration) error {
	d.sync.Lock()
	defer d.sync.Unlock()

	if err := d.record("servo"); err != nil {
		return err
	}

	d.pulse = p
	if d.log != nil {
		d.log.Debugf("Servo pulse %s", p)
	}
	return nil
}

// Duties returns the driven channels. A channel forced low is absent.
func (d *DummyMotorDriver) Duties() map[actuator.Channel]float64 {
	d.sync.Lock()
	defer d.sync.Unlock()

	return maps.Clone(d.duties)
}

func (d *DummyMotorDriver) Pulse() time.Duration {
	d.sync.Lock()
	defer d.sync.Unlock()

	return d.pulse
}

// Calls returns the latest calls, oldest first.
func (d *DummyMotorDriver) Calls() []string {
	d.sync.Lock()
	defer d.sync.Unlock()

	return slices.Clone(d.calls)
}

// Fail makes the given call ("duty A", "low B", "servo"...) return err until Recover is called.
func (d *DummyMotorDriver) Fail(call string, err error) {
	d.sync.Lock()
	defer d.sync.Unlock()

	d.failures[call] = err
}

func (d *DummyMotorDriver) Recover(call string) {
	d.sync.Lock()
	defer d.sync.Unlock()

	delete(d.failures, call)
}

func (d *DummyMotorDriver) record(call string) error {
	d.calls = append(d.calls, call)
	if n := len(d.calls); n > dummyBacklog {
		d.calls = d.calls[n-dummyBacklog:]
	}
	return d.failures[call]
}
