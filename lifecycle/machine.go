// Package lifecycle tracks the BLE connection and keeps the vehicle safe across link losses.
//
// The machine cycles indefinitely between Disconnected and Connected. Leaving Connected always
// stops the actuator before anything else, then the peripheral goes back to advertising after
// a settling delay so a new client can reconnect.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mdouchement/logger"
)

type State uint8

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "connected":
		*s = Connected
	case "disconnected":
		*s = Disconnected
	default:
		return fmt.Errorf("invalid connection state: %s", text)
	}
	return nil
}

// A Stopper brings the motor to a safe stop. It must not block.
type Stopper interface {
	Stop()
}

// An Advertiser makes the peripheral discoverable.
// Advertise blocks until ctx is done; any earlier return is considered a failure.
type Advertiser interface {
	Advertise(ctx context.Context) error
}

const (
	DefaultSettleDelay = time.Second
	DefaultRetryDelay  = 2 * time.Second
)

type Options struct {
	SettleDelay time.Duration
	RetryDelay  time.Duration
	Logger      logger.Logger
	OnChange    func(State)
}

// A Machine must be driven from a single goroutine, the advertising loop being the only
// work it runs in the background.
type Machine struct {
	state    State
	stopper  Stopper
	adv      Advertiser
	settle   time.Duration
	retry    time.Duration
	log      logger.Logger
	onChange func(State)

	parent context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(stopper Stopper, adv Advertiser, opts Options) *Machine {
	m := &Machine{
		stopper:  stopper,
		adv:      adv,
		settle:   opts.SettleDelay,
		retry:    opts.RetryDelay,
		log:      opts.Logger,
		onChange: opts.OnChange,
	}

	if m.settle < 0 {
		m.settle = DefaultSettleDelay
	}
	if m.retry <= 0 {
		m.retry = DefaultRetryDelay
	}

	return m
}

func (m *Machine) State() State {
	return m.state
}

// Start enters the boot posture: disconnected and advertising.
func (m *Machine) Start(ctx context.Context) {
	m.parent = ctx
	m.startAdvertising(0)
}

func (m *Machine) HandleConnect() {
	if m.state == Connected {
		m.log.Warn("Connect event while already connected, ignored")
		return
	}

	m.stopAdvertising()
	m.state = Connected
	m.log.Info("Client connected")

	if m.onChange != nil {
		m.onChange(Connected)
	}
}

func (m *Machine) HandleDisconnect() {
	// Whatever the current state, nothing may keep driving without a controller.
	m.stopper.Stop()

	if m.state == Disconnected {
		m.log.Debug("Disconnect event while already disconnected")
		if m.cancel == nil {
			m.startAdvertising(m.settle)
		}
		return
	}

	m.state = Disconnected
	m.log.Info("Client disconnected, motor stopped")

	if m.onChange != nil {
		m.onChange(Disconnected)
	}

	m.startAdvertising(m.settle)
}

// Close stops advertising and waits for the background loop to return.
func (m *Machine) Close() {
	m.stopAdvertising()
	m.wg.Wait()
}

func (m *Machine) startAdvertising(delay time.Duration) {
	if m.parent == nil || m.parent.Err() != nil {
		return
	}

	m.stopAdvertising()

	ctx, cancel := context.WithCancel(m.parent)
	m.cancel = cancel

	m.wg.Add(1)
	go m.advertise(ctx, delay)
}

func (m *Machine) stopAdvertising() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Machine) advertise(ctx context.Context, delay time.Duration) {
	defer m.wg.Done()

	if !sleep(ctx, delay) {
		return
	}

	for {
		m.log.Info("Advertising")
		err := m.adv.Advertise(ctx)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			err = errors.New("advertising ended unexpectedly")
		}
		m.log.WithError(err).Warnf("Could not advertise, retrying in %s", m.retry)

		if !sleep(ctx, m.retry) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
