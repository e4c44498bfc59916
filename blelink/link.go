// Package blelink exposes the vehicle as a BLE peripheral.
//
// The GATT service holds two characteristics: RX, written by the client with commands,
// and TX, notified by the vehicle with telemetry.
package blelink

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/evt"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
)

var ErrNotSubscribed = errors.New("no subscriber for notifications")

type Options struct {
	DeviceID int
	Name     string
	Service  ble.UUID
	Tx       ble.UUID
	Rx       ble.UUID
	Logger   logger.Logger
}

// device is the part of *linux.Device used by the link.
type device interface {
	AddService(svc *ble.Service) error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	Stop() error
}

type Link struct {
	sync         sync.Mutex
	dev          device
	opts         Options
	onConnect    func()
	onDisconnect func()
	onData       func([]byte)
	subscriber   *subscription
}

type subscription struct {
	w io.Writer
}

// Open initializes the HCI device and registers the GATT service.
func Open(opts Options) (*Link, error) {
	l := newLink(opts)

	dev, err := linux.NewDevice(
		ble.OptDeviceID(opts.DeviceID),
		ble.OptConnectHandler(func(e evt.LEConnectionComplete) {
			if e.Status() != 0 {
				l.opts.Logger.Warnf("Connection failed with status 0x%02X", e.Status())
				return
			}
			l.connected()
		}),
		ble.OptDisconnectHandler(func(e evt.DisconnectionComplete) {
			l.opts.Logger.Debugf("Disconnection reason 0x%02X", e.Reason())
			l.disconnected()
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "can't open device")
	}

	if err = dev.AddService(l.service()); err != nil {
		dev.Stop()
		return nil, errors.Wrap(err, "can't add service")
	}

	l.dev = dev
	return l, nil
}

func newLink(opts Options) *Link {
	return &Link{opts: opts}
}

func (l *Link) Handle(onConnect, onDisconnect func(), onData func([]byte)) {
	l.sync.Lock()
	defer l.sync.Unlock()

	l.onConnect = onConnect
	l.onDisconnect = onDisconnect
	l.onData = onData
}

// Advertise blocks until ctx is done. A cancellation is not an error.
func (l *Link) Advertise(ctx context.Context) error {
	err := l.dev.AdvertiseNameAndServices(ctx, l.opts.Name, l.opts.Service)
	switch errors.Cause(err) {
	case nil, context.Canceled, context.DeadlineExceeded:
		return nil
	default:
		return errors.Wrap(err, "can't advertise")
	}
}

// Notify sends p to the subscribed client.
func (l *Link) Notify(p []byte) error {
	l.sync.Lock()
	defer l.sync.Unlock()

	if l.subscriber == nil {
		return ErrNotSubscribed
	}

	_, err := l.subscriber.w.Write(p)
	return errors.Wrap(err, "can't notify")
}

func (l *Link) Close() error {
	return l.dev.Stop()
}

func (l *Link) service() *ble.Service {
	svc := ble.NewService(l.opts.Service)

	tx := svc.NewCharacteristic(l.opts.Tx)
	tx.HandleNotify(ble.NotifyHandlerFunc(func(_ ble.Request, n ble.Notifier) {
		l.subscribe(n.Context(), n)
	}))

	rx := svc.NewCharacteristic(l.opts.Rx)
	rx.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, _ ble.ResponseWriter) {
		l.receive(req.Data())
	}))

	return svc
}

// subscribe keeps w as the notification target until ctx is done.
func (l *Link) subscribe(ctx context.Context, w io.Writer) {
	sub := &subscription{w: w}

	l.sync.Lock()
	l.subscriber = sub
	l.sync.Unlock()
	l.opts.Logger.Debug("Notifications subscribed")

	<-ctx.Done()

	l.sync.Lock()
	if l.subscriber == sub {
		l.subscriber = nil
	}
	l.sync.Unlock()
	l.opts.Logger.Debug("Notifications unsubscribed")
}

// receive hands over a copy, the request buffer is reused by the ATT server.
func (l *Link) receive(data []byte) {
	l.sync.Lock()
	fn := l.onData
	l.sync.Unlock()

	if fn != nil {
		fn(slices.Clone(data))
	}
}

func (l *Link) connected() {
	l.sync.Lock()
	fn := l.onConnect
	l.sync.Unlock()

	if fn != nil {
		fn()
	}
}

func (l *Link) disconnected() {
	l.sync.Lock()
	fn := l.onDisconnect
	l.subscriber = nil
	l.sync.Unlock()

	if fn != nil {
		fn()
	}
}
