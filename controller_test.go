package rcbled

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rcbled/actuator"
	"github.com/mdouchement/rcbled/lifecycle"
	"github.com/mdouchement/rcbled/protocol"
	. "github.com/smartystreets/goconvey/convey"
)

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func notified(link *BenchLink, p []byte) func() bool {
	return func() bool {
		return slices.ContainsFunc(link.Notifications(), func(n []byte) bool {
			return bytes.Equal(n, p)
		})
	}
}

func testConfig(t *testing.T) Config {
	cfg := Default()
	cfg.Socket = filepath.Join(t.TempDir(), "rcbled.sock")
	cfg.BLE.SettleDelay.Duration = 10 * time.Millisecond
	cfg.BLE.RetryDelay.Duration = 10 * time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestController(t *testing.T) {
	Convey("Given a launched controller", t, func() {
		cfg := testConfig(t)
		link := NewBenchLink()
		driver := NewDummyMotorDriver()

		c, err := New(cfg, link, driver, driver)
		So(err, ShouldBeNil)

		log := logger.WrapSlogHandler(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
		defer func() {
			cancel()
			<-c.Done()
		}()
		c.Launch(ctx)

		Convey("it boots stopped and advertising", func() {
			So(driver.Calls()[:3], ShouldResemble, []string{"low A", "low B", "servo"})
			So(driver.Pulse(), ShouldEqual, 1500*time.Microsecond)
			So(eventually(link.Advertising), ShouldBeTrue)
		})

		Convey("once connected", func() {
			So(eventually(link.Advertising), ShouldBeTrue)
			link.Connect()
			So(eventually(notified(link, []byte{0x81, 0x01})), ShouldBeTrue)
			So(eventually(func() bool { return !link.Advertising() }), ShouldBeTrue)

			Convey("[Forward, 128] drives A at about 50.2% with B low", func() {
				link.Receive([]byte{0x01, 0x80})
				So(eventually(notified(link, []byte{0x80, 0x01, 0x80, 0x00})), ShouldBeTrue)

				duties := driver.Duties()
				So(duties[actuator.ChannelA], ShouldAlmostEqual, 50.196, 0.001)
				So(duties, ShouldNotContainKey, actuator.ChannelB)
			})

			Convey("steering does not notify a state change", func() {
				link.Receive([]byte{0x04, 0x14})
				link.Receive([]byte{0x03, 0x00})
				So(eventually(func() bool { return driver.Pulse() == 1667*time.Microsecond }), ShouldBeTrue)
				So(link.Notifications(), ShouldResemble, [][]byte{{0x81, 0x01}})
			})

			Convey("a disconnection at 80% stops the motor then advertising restarts", func() {
				link.Receive([]byte{0x01, 0xCC})
				So(eventually(func() bool { return driver.Duties()[actuator.ChannelA] > 79 }), ShouldBeTrue)

				link.Disconnect()
				So(eventually(func() bool { return len(driver.Duties()) == 0 }), ShouldBeTrue)
				So(eventually(link.Advertising), ShouldBeTrue)

				Convey("and commands received meanwhile are dropped", func() {
					link.Receive([]byte{0x01, 0xFF})
					link.Connect()
					So(eventually(notified(link, []byte{0x81, 0x01})), ShouldBeTrue)
					So(driver.Duties(), ShouldBeEmpty)
				})
			})

			Convey("persistent peripheral failures are notified", func() {
				driver.Fail("duty A", errors.New("board unplugged"))
				for range cfg.Telemetry.FaultThreshold {
					link.Receive([]byte{0x01, 0x40})
				}

				So(eventually(notified(link, []byte{0x82, protocol.FaultSetDuty, 0x03})), ShouldBeTrue)
				So(driver.Duties(), ShouldBeEmpty)
			})
		})

		Convey("its monitor streams the status", func() {
			client := &http.Client{
				Timeout: 5 * time.Second,
				Transport: &http.Transport{
					DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
						var d net.Dialer
						return d.DialContext(ctx, "unix", cfg.Socket)
					},
				},
			}

			resp, err := client.Get("http://rcbled/monitor")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.Header.Get("Content-Type"), ShouldEqual, "text/event-stream")

			r := bufio.NewReader(resp.Body)
			next := func() Status {
				p, err := ReadSSE(r)
				So(err, ShouldBeNil)

				var st Status
				So(json.Unmarshal(p, &st), ShouldBeNil)
				return st
			}

			st := next()
			So(st.Connection, ShouldEqual, lifecycle.Disconnected)
			So(st.Direction, ShouldEqual, protocol.Stop)

			Convey("and drives through the bench endpoints", func() {
				resp, err := client.Post("http://rcbled/bench/connect", "", nil)
				So(err, ShouldBeNil)
				resp.Body.Close()
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)

				resp, err = client.Post("http://rcbled/bench/rx", "application/octet-stream", bytes.NewReader([]byte{0x02, 0xFF}))
				So(err, ShouldBeNil)
				resp.Body.Close()

				resp, err = client.Post("http://rcbled/bench/rx", "application/octet-stream", bytes.NewReader([]byte{0x07}))
				So(err, ShouldBeNil)
				resp.Body.Close()

				for st.Rejected == 0 {
					st = next()
				}
				So(st.Connection, ShouldEqual, lifecycle.Connected)
				So(st.Direction, ShouldEqual, protocol.Backward)
				So(st.Duty, ShouldEqual, 100.0)
				So(st.Accepted, ShouldEqual, uint64(1))
				So(st.Rejected, ShouldEqual, uint64(1))

				resp, err = client.Get("http://rcbled/bench/tx")
				So(err, ShouldBeNil)
				defer resp.Body.Close()

				var tx []string
				So(json.NewDecoder(resp.Body).Decode(&tx), ShouldBeNil)
				So(tx, ShouldResemble, []string{"8101", "8002ff00"})
			})
		})

		Convey("its shutdown stops the motor and removes the socket", func() {
			link.Connect()
			link.Receive([]byte{0x01, 0xFF})
			So(eventually(func() bool { return len(driver.Duties()) == 1 }), ShouldBeTrue)

			cancel()
			<-c.Done()

			So(driver.Duties(), ShouldBeEmpty)
			_, err := os.Stat(cfg.Socket)
			So(os.IsNotExist(err), ShouldBeTrue)
		})
	})
}
