package dispatch

import (
	"io"
	"math"
	"log/slog"
	"testing"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rcbled/actuator"
	"github.com/mdouchement/rcbled/protocol"
	. "github.com/smartystreets/goconvey/convey"
)

// linearPulse maps [-90°, +90°] onto [750µs, 2250µs].
func linearPulse(angle float64) time.Duration {
	p := 1500*time.Microsecond + time.Duration(math.Round(angle*1500/180))*time.Microsecond
	return min(max(p, 750*time.Microsecond), 2250*time.Microsecond)
}

type call struct {
	name  string
	dir   protocol.Direction
	value float64
}

type fakeActuator struct {
	calls []call
}

func (f *fakeActuator) ApplyMotion(d protocol.Direction, duty float64) {
	f.calls = append(f.calls, call{name: "motion", dir: d, value: duty})
}

func (f *fakeActuator) ApplySteering(angle float64) {
	f.calls = append(f.calls, call{name: "steering", value: angle})
}

// pins records the two H-bridge inputs and the servo.
type pins struct {
	duty  [2]float64
	pulse time.Duration
}

func (p *pins) SetDuty(ch actuator.Channel, duty float64) error {
	p.duty[ch] = duty
	return nil
}

func (p *pins) ForceLow(ch actuator.Channel) error {
	p.duty[ch] = 0
	return nil
}

func (p *pins) SetPulseWidth(d time.Duration) error {
	p.pulse = d
	return nil
}

func discard() logger.Logger {
	return logger.WrapSlogHandler(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleInbound(t *testing.T) {
	Convey("Given a dispatcher", t, func() {
		act := &fakeActuator{}
		d := New(act, discard())

		Convey("each opcode results in exactly one actuator call", func() {
			d.HandleInbound([]byte{0x01, 0xFF})
			d.HandleInbound([]byte{0x02, 0x00})
			d.HandleInbound([]byte{0x03, 0x42})
			d.HandleInbound([]byte{0x04, 0xE2})

			So(act.calls, ShouldResemble, []call{
				{name: "motion", dir: protocol.Forward, value: 100},
				{name: "motion", dir: protocol.Backward, value: 0},
				{name: "motion", dir: protocol.Stop, value: 0},
				{name: "steering", value: -30},
			})
			So(d.Stats(), ShouldResemble, Stats{Accepted: 4})
		})

		Convey("malformed buffers never reach the actuator", func() {
			for _, data := range [][]byte{
				{0x01},
				{0x01, 0x80, 0x00},
				{0x05, 0x10},
				{0x00, 0x00},
				{0xFF, 0xFF},
			} {
				d.HandleInbound(data)
			}

			So(act.calls, ShouldBeEmpty)
			So(d.Stats(), ShouldResemble, Stats{Rejected: 5})
		})

		Convey("an empty buffer is a no-op", func() {
			d.HandleInbound(nil)
			d.HandleInbound([]byte{})

			So(act.calls, ShouldBeEmpty)
			So(d.Stats(), ShouldResemble, Stats{Ignored: 2})
		})
	})

	Convey("Given a dispatcher driving a real actuator", t, func() {
		p := &pins{}
		act, err := actuator.New(p, p, actuator.Config{
			MinAngle: -45,
			MaxAngle: 45,
			Pulse:    linearPulse,
		})
		So(err, ShouldBeNil)
		So(act.Init(), ShouldBeNil)
		d := New(act, discard())

		Convey("[Forward, 128] drives A at about 50.2% with B low", func() {
			d.HandleInbound([]byte{0x01, 0x80})

			So(p.duty[actuator.ChannelA], ShouldAlmostEqual, 50.196, 0.001)
			So(p.duty[actuator.ChannelB], ShouldEqual, 0.0)
			So(act.State().Direction, ShouldEqual, protocol.Forward)
		})

		Convey("a malformed buffer leaves the state unchanged", func() {
			d.HandleInbound([]byte{0x02, 0x40})
			before := act.State()

			d.HandleInbound([]byte{0x01, 0x80, 0x00})
			d.HandleInbound([]byte{0x09, 0x80})
			So(act.State(), ShouldResemble, before)
		})

		Convey("steering beyond the travel range is clamped", func() {
			d.HandleInbound([]byte{0x04, 0x7F})
			So(act.State().Steering, ShouldEqual, 45.0)
			So(p.pulse, ShouldEqual, 1875*time.Microsecond)
		})
	})
}
