package protocol

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDecode(t *testing.T) {
	Convey("Given valid motion buffers", t, func() {
		Convey("forward 128 decodes to about 50.2%", func() {
			cmd, err := Decode([]byte{byte(OpForward), 128})
			So(err, ShouldBeNil)
			So(cmd.Op, ShouldEqual, OpForward)
			So(cmd.IsMotion(), ShouldBeTrue)
			So(cmd.Motion.Direction, ShouldEqual, Forward)
			So(cmd.Motion.Duty, ShouldAlmostEqual, 50.196, 0.001)
		})

		Convey("backward 255 decodes to full duty", func() {
			cmd, err := Decode([]byte{byte(OpBackward), 255})
			So(err, ShouldBeNil)
			So(cmd.Motion.Direction, ShouldEqual, Backward)
			So(cmd.Motion.Duty, ShouldEqual, 100.0)
		})

		Convey("the byte mapping never leaves [0,100]", func() {
			for b := range 256 {
				cmd, err := Decode([]byte{byte(OpForward), byte(b)})
				So(err, ShouldBeNil)
				So(cmd.Motion.Duty, ShouldBeBetweenOrEqual, 0.0, 100.0)
			}
		})

		Convey("stop ignores its payload", func() {
			cmd, err := Decode([]byte{byte(OpStop), 42})
			So(err, ShouldBeNil)
			So(cmd.Motion, ShouldResemble, MotionCommand{Direction: Stop})
		})
	})

	Convey("Given steering buffers", t, func() {
		cmd, err := Decode([]byte{byte(OpSteer), 0xEC}) // -20
		So(err, ShouldBeNil)
		So(cmd.IsMotion(), ShouldBeFalse)
		So(cmd.Steering.Angle, ShouldEqual, -20.0)

		cmd, err = Decode([]byte{byte(OpSteer), 30})
		So(err, ShouldBeNil)
		So(cmd.Steering.Angle, ShouldEqual, 30.0)
	})

	Convey("Given malformed buffers", t, func() {
		Convey("empty buffers are reported as such", func() {
			_, err := Decode(nil)
			So(errors.Is(err, ErrEmpty), ShouldBeTrue)
		})

		Convey("wrong lengths are rejected", func() {
			for _, data := range [][]byte{{byte(OpForward)}, {byte(OpForward), 1, 2}, make([]byte, 20)} {
				cmd, err := Decode(data)
				So(errors.Is(err, ErrInvalidLength), ShouldBeTrue)
				So(cmd, ShouldResemble, Command{})
			}
		})

		Convey("unknown opcodes are rejected", func() {
			for _, op := range []byte{0x00, 0x05, 0x80, 0xFF} {
				cmd, err := Decode([]byte{op, 10})
				So(errors.Is(err, ErrUnknownOpcode), ShouldBeTrue)
				So(cmd, ShouldResemble, Command{})
			}
		})
	})
}

func TestNewMotion(t *testing.T) {
	Convey("Range errors reject the command", t, func() {
		for _, duty := range []float64{-0.1, 100.1, math.NaN(), math.Inf(1)} {
			_, err := NewMotion(Forward, duty)
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)
		}

		_, err := NewMotion(Direction(9), 10)
		So(errors.Is(err, ErrInvalidDirection), ShouldBeTrue)
	})

	Convey("Stop always carries a zero duty", t, func() {
		m, err := NewMotion(Stop, 80)
		So(err, ShouldBeNil)
		So(m.Duty, ShouldEqual, 0.0)
	})
}

func TestEncode(t *testing.T) {
	Convey("Client encoders produce decodable buffers", t, func() {
		data, err := EncodeMotion(Backward, 50)
		So(err, ShouldBeNil)
		So(data, ShouldResemble, []byte{byte(OpBackward), 128})

		data, err = EncodeMotion(Stop, 0)
		So(err, ShouldBeNil)
		So(data, ShouldResemble, []byte{byte(OpStop), 0})

		So(EncodeSteering(-300), ShouldResemble, []byte{byte(OpSteer), 0x80})
		So(EncodeSteering(12.4), ShouldResemble, []byte{byte(OpSteer), 12})

		_, err = Command{Op: Opcode(0x42)}.MarshalBinary()
		So(errors.Is(err, ErrUnknownOpcode), ShouldBeTrue)
	})
}

func TestTelemetry(t *testing.T) {
	Convey("State notifications carry direction, duty and steering", t, func() {
		data := EncodeState(Forward, 80, -15)
		So(data, ShouldHaveLength, 4)

		n, err := DecodeTelemetry(data)
		So(err, ShouldBeNil)
		So(n.Kind, ShouldEqual, TelemetryState)
		So(n.Direction, ShouldEqual, Forward)
		So(n.Duty, ShouldAlmostEqual, 80, 0.5)
		So(n.Steering, ShouldEqual, -15.0)
	})

	Convey("Fault notifications saturate the counter", t, func() {
		n, err := DecodeTelemetry(EncodeFault(FaultSetDuty, 1000))
		So(err, ShouldBeNil)
		So(n.FaultOp, ShouldEqual, FaultSetDuty)
		So(n.Consecutive, ShouldEqual, 255)
	})

	Convey("Link notifications", t, func() {
		n, err := DecodeTelemetry(EncodeLink(true))
		So(err, ShouldBeNil)
		So(n.Link, ShouldEqual, LinkConnected)
	})

	Convey("Garbage is rejected", t, func() {
		_, err := DecodeTelemetry([]byte{byte(TelemetryLink)})
		So(errors.Is(err, ErrInvalidTelemetry), ShouldBeTrue)

		_, err = DecodeTelemetry([]byte{byte(TelemetryState), 7, 0, 0})
		So(errors.Is(err, ErrInvalidDirection), ShouldBeTrue)
	})
}

func TestDirectionText(t *testing.T) {
	Convey("Directions round-trip through their text form", t, func() {
		var d Direction
		So(d.UnmarshalText([]byte("backward")), ShouldBeNil)
		So(d, ShouldEqual, Backward)
		So(d.UnmarshalText([]byte("sideways")), ShouldNotBeNil)
		So(Direction(7).String(), ShouldEqual, "direction(7)")
	})
}
