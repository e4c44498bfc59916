package rcbled

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rcbled/actuator"
	"github.com/mdouchement/rcbled/dispatch"
	"github.com/mdouchement/rcbled/lifecycle"
	"github.com/mdouchement/rcbled/protocol"
)

const refreshInterval = 2 * time.Second

// A Controller serializes every transport callback into a single event loop,
// which is the only goroutine touching the actuator and the connection state.
type Controller struct {
	cfg       Config
	link      Link
	act       *actuator.Actuator
	dispatch  *dispatch.Dispatcher
	machine   *lifecycle.Machine
	events    chan event
	done      chan struct{}
	listener  net.Listener
	startedAt time.Time
	faults    uint64
}

func New(cfg Config, link Link, pwm actuator.PWM, servo actuator.Servo) (*Controller, error) {
	curve, err := NewSteeringCurve(cfg.Steering)
	if err != nil {
		return nil, fmt.Errorf("steering: %w", err)
	}

	act, err := actuator.New(pwm, servo, actuator.Config{
		MinAngle: cfg.Steering.MinAngle,
		MaxAngle: cfg.Steering.MaxAngle,
		Pulse:    curve.Pulse,
	})
	if err != nil {
		return nil, fmt.Errorf("steering: %w", err)
	}

	c := &Controller{
		cfg:    cfg,
		link:   link,
		act:    act,
		events: make(chan event, 32),
		done:   make(chan struct{}),
	}

	err = os.MkdirAll(filepath.Dir(cfg.Socket), 0o755)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if _, err := os.Stat(cfg.Socket); err == nil {
		fmt.Printf("Removing existing %s\n", cfg.Socket)
		os.Remove(cfg.Socket)
	}
	c.listener, err = net.Listen("unix", cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	return c, nil
}

// Launch starts the controller in the background. It runs until ctx is done.
func (c *Controller) Launch(ctx context.Context) {
	log := logger.LogWith(ctx)
	c.startedAt = time.Now()

	if err := c.act.Init(); err != nil {
		log.WithError(err).Error("Could not initialize the actuator, retrying on next command")
	}
	c.act.OnFault(func(f actuator.Fault) {
		c.fault(log, f)
	})

	c.dispatch = dispatch.New(c.act, log.WithPrefix("[dispatch]"))
	c.machine = lifecycle.New(c.act, c.link, lifecycle.Options{
		SettleDelay: c.cfg.BLE.SettleDelay.Duration,
		RetryDelay:  c.cfg.BLE.RetryDelay.Duration,
		Logger:      log.WithPrefix("[ble]"),
		OnChange: func(s lifecycle.State) {
			c.notify(log, protocol.EncodeLink(s == lifecycle.Connected))
		},
	})

	c.link.Handle(
		func() { c.emit(event{name: eventConnect}) },
		func() { c.emit(event{name: eventDisconnect}) },
		func(p []byte) { c.emit(event{name: eventData, data: p}) },
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /monitor", c.monitor(log))
	if bench, ok := c.link.(*BenchLink); ok {
		log.Info("Bench endpoints enabled")
		c.benchRoutes(mux, bench)
	}

	srv := &http.Server{Handler: mux}
	go func() {
		for {
			log.Info("Starting HTTP server on", c.listener.Addr().String())
			err := srv.Serve(c.listener)
			if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
				return
			}

			log.WithError(err).Error("Could not serve HTTP")
			time.Sleep(2 * time.Second)
		}
	}()

	c.machine.Start(ctx)
	go c.eventLoop(ctx, log, srv)
}

// Done is closed once the controller has stopped the vehicle and released its resources.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) emit(e event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

func (c *Controller) eventLoop(ctx context.Context, log logger.Logger, srv *http.Server) {
	ticker := time.NewTicker(refreshInterval)
	watchers := map[int64]chan<- []byte{}

	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			c.shutdown(log, srv, watchers)
			return
		case <-ticker.C:
			c.refreshWatchers(log, watchers)
		case e := <-c.events:
			switch e.name {
			case eventConnect:
				c.machine.HandleConnect()
			case eventDisconnect:
				c.machine.HandleDisconnect()
			case eventData:
				if c.machine.State() != lifecycle.Connected {
					log.Debugf("Dropped % X received while disconnected", e.data)
					continue
				}

				before := c.act.State()
				c.dispatch.HandleInbound(e.data)
				if after := c.act.State(); after.Direction != before.Direction {
					c.notify(log, protocol.EncodeState(after.Direction, after.Duty, after.Steering))
				}
			case eventWatch:
				watchers[e.monitorID] = e.monitor
			case eventUnwatch:
				if ch, ok := watchers[e.monitorID]; ok {
					close(ch)
					delete(watchers, e.monitorID)
				}
				continue
			}

			c.refreshWatchers(log, watchers)
		}
	}
}

func (c *Controller) shutdown(log logger.Logger, srv *http.Server, watchers map[int64]chan<- []byte) {
	c.act.Stop()
	c.machine.Close()

	if err := c.link.Close(); err != nil {
		log.WithError(err).Error("Could not close link")
	}

	for id, ch := range watchers {
		close(ch)
		delete(watchers, id)
	}

	if err := srv.Close(); err != nil {
		log.WithError(err).Error("Could not close socket listener")
	}
	if err := os.Remove(c.cfg.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Errorf("Could not remove socket %s", c.cfg.Socket)
	}

	close(c.done)
}

func (c *Controller) fault(log logger.Logger, f actuator.Fault) {
	c.faults++

	if f.Consecutive < c.cfg.Telemetry.FaultThreshold {
		log.WithError(f.Err).Warnf("Peripheral write %s failed", f.Op)
		return
	}

	log.WithError(f).Errorf("Peripheral write keeps failing (%d times in a row)", f.Consecutive)
	c.notify(log, protocol.EncodeFault(f.Op.Code(), f.Consecutive))
}

func (c *Controller) notify(log logger.Logger, p []byte) {
	if err := c.link.Notify(p); err != nil {
		log.WithError(err).Debugf("Notification % X not sent", p)
	}
}

func (c *Controller) status() Status {
	st := c.act.State()
	stats := c.dispatch.Stats()

	return Status{
		Connection: c.machine.State(),
		Direction:  st.Direction,
		Duty:       st.Duty,
		Steering:   st.Steering,
		Accepted:   stats.Accepted,
		Rejected:   stats.Rejected,
		Ignored:    stats.Ignored,
		Faults:     c.faults,
		Uptime:     Duration{time.Since(c.startedAt).Truncate(time.Second)},
	}
}

func (c *Controller) refreshWatchers(log logger.Logger, watchers map[int64]chan<- []byte) {
	if len(watchers) == 0 {
		return
	}

	payload, err := json.Marshal(c.status())
	if err != nil {
		log.WithError(err).Error("Could not serialize status") // Should never happen
		return
	}

	for _, watcher := range watchers {
		select {
		case watcher <- payload:
		default:
			// The loop never waits for a slow monitor.
		}
	}
}

func (c *Controller) monitor(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info("Monitor connected")

		// Set http headers required for SSE.
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		disconnected := r.Context().Done()

		id := genID()
		ch := make(chan []byte, 20)
		c.emit(event{name: eventWatch, monitorID: id, monitor: ch})

		rc := http.NewResponseController(w)
		for {
			select {
			case <-disconnected:
				log.Info("Monitor disconnected")
				c.emit(event{name: eventUnwatch, monitorID: id})
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}

				err := WriteSSE(w, payload)
				if err != nil {
					log.WithError(err).Error("Could not write monitor SSE payload")
					c.emit(event{name: eventUnwatch, monitorID: id})
					return
				}

				err = rc.Flush()
				if err != nil {
					log.WithError(err).Error("Could not flush monitor SSE payload")
					c.emit(event{name: eventUnwatch, monitorID: id})
					return
				}
			}
		}
	}
}

func (c *Controller) benchRoutes(mux *http.ServeMux, bench *BenchLink) {
	mux.HandleFunc("POST /bench/connect", func(w http.ResponseWriter, _ *http.Request) {
		bench.Connect()
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /bench/disconnect", func(w http.ResponseWriter, _ *http.Request) {
		bench.Disconnect()
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /bench/rx", func(w http.ResponseWriter, r *http.Request) {
		p, err := io.ReadAll(io.LimitReader(r.Body, 512))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		bench.Receive(p)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("GET /bench/tx", func(w http.ResponseWriter, _ *http.Request) {
		notifications := []string{}
		for _, p := range bench.Notifications() {
			notifications = append(notifications, hex.EncodeToString(p))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(notifications)
	})
}
