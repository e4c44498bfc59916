package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mdouchement/rcbled/actuator"
	"github.com/mdouchement/rcbled/sysfs/environment"
	. "github.com/smartystreets/goconvey/convey"
)

func fakeChip(t *testing.T, root string, id, npwm int, exported ...int) string {
	chip := filepath.Join(root, "class/pwm", fmt.Sprintf("pwmchip%d", id))
	if err := os.MkdirAll(chip, 0o755); err != nil {
		t.Fatal(err)
	}

	for name, content := range map[string]string{"npwm": fmt.Sprint(npwm), "export": "", "unexport": ""} {
		if err := os.WriteFile(filepath.Join(chip, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	for _, ch := range exported {
		if err := fakeChannel(chip, ch); err != nil {
			t.Fatal(err)
		}
	}
	return chip
}

func fakeChannel(chip string, ch int) error {
	dir := filepath.Join(chip, fmt.Sprintf("pwm%d", ch))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, name := range []string{"period", "duty_cycle", "polarity", "enable"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("0"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func attr(chip string, ch int, name string) string {
	raw, _ := os.ReadFile(filepath.Join(chip, fmt.Sprintf("pwm%d", ch), name))
	return strings.TrimSpace(string(raw))
}

func TestChips(t *testing.T) {
	Convey("Chips are listed by ID", t, func() {
		root := t.TempDir()
		t.Setenv(environment.KeyHostSys, root)

		fakeChip(t, root, 2, 1)
		fakeChip(t, root, 0, 4)

		chips, err := Chips()
		So(err, ShouldBeNil)
		So(chips, ShouldHaveLength, 2)
		So(chips[0].ID, ShouldEqual, 0)
		So(chips[0].NPWM, ShouldEqual, 4)
		So(chips[1].ID, ShouldEqual, 2)
	})
}

func TestMotor(t *testing.T) {
	Convey("Given a motor on exported channels at 1kHz", t, func() {
		root := t.TempDir()
		t.Setenv(environment.KeyHostSys, root)
		chip := fakeChip(t, root, 0, 4, 0, 1)

		m, err := OpenMotor(0, 0, 1, 1000)
		So(err, ShouldBeNil)
		So(attr(chip, 0, "period"), ShouldEqual, "1000000")
		So(attr(chip, 1, "enable"), ShouldEqual, "0")

		Convey("duty cycles are written in nanoseconds and enable the output", func() {
			So(m.SetDuty(actuator.ChannelA, 50.2), ShouldBeNil)
			So(attr(chip, 0, "duty_cycle"), ShouldEqual, "502000")
			So(attr(chip, 0, "enable"), ShouldEqual, "1")
			So(attr(chip, 1, "enable"), ShouldEqual, "0")
		})

		Convey("force low disables the output", func() {
			So(m.SetDuty(actuator.ChannelB, 100), ShouldBeNil)
			So(m.ForceLow(actuator.ChannelB), ShouldBeNil)
			So(attr(chip, 1, "duty_cycle"), ShouldEqual, "0")
			So(attr(chip, 1, "enable"), ShouldEqual, "0")
		})

		Convey("invalid duties are refused", func() {
			So(m.SetDuty(actuator.ChannelA, 101), ShouldEqual, ErrInvalidDuty)
		})

		Convey("closing leaves already exported channels in place", func() {
			So(m.Close(), ShouldBeNil)
			raw, _ := os.ReadFile(filepath.Join(chip, "unexport"))
			So(string(raw), ShouldBeEmpty)
		})
	})

	Convey("A missing chip is reported", t, func() {
		t.Setenv(environment.KeyHostSys, t.TempDir())
		_, err := OpenMotor(3, 0, 1, 1000)
		So(err, ShouldNotBeNil)
	})
}

func TestServo(t *testing.T) {
	Convey("Given a channel exported on demand", t, func() {
		root := t.TempDir()
		t.Setenv(environment.KeyHostSys, root)
		chip := fakeChip(t, root, 0, 4)

		go func() {
			// Plays udev
			for range 100 {
				raw, _ := os.ReadFile(filepath.Join(chip, "export"))
				if string(raw) == "2" {
					fakeChannel(chip, 2)
					return
				}
				time.Sleep(5 * time.Millisecond)
			}
		}()

		s, err := OpenServo(0, 2)
		So(err, ShouldBeNil)
		So(attr(chip, 2, "period"), ShouldEqual, "20000000")

		Convey("pulses are written as duty cycles", func() {
			So(s.SetPulseWidth(1500*time.Microsecond), ShouldBeNil)
			So(attr(chip, 2, "duty_cycle"), ShouldEqual, "1500000")
			So(attr(chip, 2, "enable"), ShouldEqual, "1")

			So(s.SetPulseWidth(25*time.Millisecond), ShouldEqual, ErrPulseRange)
		})

		Convey("closing unexports the channel", func() {
			So(s.Close(), ShouldBeNil)
			raw, _ := os.ReadFile(filepath.Join(chip, "unexport"))
			So(string(raw), ShouldEqual, "2")
		})
	})

	Convey("An export never completed fails", t, func() {
		root := t.TempDir()
		t.Setenv(environment.KeyHostSys, root)
		fakeChip(t, root, 0, 4)

		timeout := ExportTimeout
		ExportTimeout = 20 * time.Millisecond
		defer func() { ExportTimeout = timeout }()

		_, err := OpenServo(0, 3)
		So(errors.Is(err, ErrExport), ShouldBeTrue)
	})
}
