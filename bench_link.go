package rcbled

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var ErrNoClient = errors.New("no client connected")

const benchBacklog = 64

// A BenchLink simulates the remote client. It should only be used for dev & tests.
type BenchLink struct {
	sync          sync.Mutex
	onConnect     func()
	onDisconnect  func()
	onData        func([]byte)
	connected     bool
	advertising   bool
	notifications [][]byte
}

func NewBenchLink() *BenchLink {
	return &BenchLink{}
}

func (l *BenchLink) Handle(onConnect, onDisconnect func(), onData func([]byte)) {
	l.sync.Lock()
	defer l.sync.Unlock()

	l.onConnect = onConnect
	l.onDisconnect = onDisconnect
	l.onData = onData
}

func (l *BenchLink) Advertise(ctx context.Context) error {
	l.sync.Lock()
	l.advertising = true
	l.sync.Unlock()

	<-ctx.Done()

	l.sync.Lock()
	l.advertising = false
	l.sync.Unlock()
	return nil
}

func (l *BenchLink) Advertising() bool {
	l.sync.Lock()
	defer l.sync.Unlock()

	return l.advertising
}

// Notify records the notification while a client is connected.
func (l *BenchLink) Notify(p []byte) error {
	l.sync.Lock()
	defer l.sync.Unlock()

	if !l.connected {
		return ErrNoClient
	}

	l.notifications = append(l.notifications, slices.Clone(p))
	if n := len(l.notifications); n > benchBacklog {
		l.notifications = l.notifications[n-benchBacklog:]
	}
	return nil
}

// Notifications returns the recorded notifications, oldest first.
func (l *BenchLink) Notifications() [][]byte {
	l.sync.Lock()
	defer l.sync.Unlock()

	return slices.Clone(l.notifications)
}

func (l *BenchLink) Connect() {
	l.sync.Lock()
	l.connected = true
	l.notifications = nil
	fn := l.onConnect
	l.sync.Unlock()

	if fn != nil {
		fn()
	}
}

func (l *BenchLink) Disconnect() {
	l.sync.Lock()
	l.connected = false
	fn := l.onDisconnect
	l.sync.Unlock()

	if fn != nil {
		fn()
	}
}

// Receive delivers p as if the client wrote it on the RX characteristic.
func (l *BenchLink) Receive(p []byte) {
	l.sync.Lock()
	fn := l.onData
	l.sync.Unlock()

	if fn != nil {
		fn(slices.Clone(p))
	}
}

func (l *BenchLink) Close() error {
	return nil
}
