// Package motorboard drives the H-bridge and the steering servo through a microcontroller
// board connected over USB serial.
//
// Requests are ASCII frames `>CC<payload>\r\n` where CC is the command in hexadecimal.
// The board may print log lines at any time; the response to a request is the first line
// formatted as `<CC|<payload>\r\n`.
package motorboard

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/rcbled/actuator"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var (
	ErrNotFound        = errors.New("device not found/plugged")
	ErrInvalidDuty     = errors.New("invalid duty value")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrTimeout         = errors.New("response timeout")
	ErrInvalidResponse = errors.New("invalid response")
)

// port is the subset of serial.Port used by the controller.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Close() error
}

type Controller struct {
	sync     sync.Mutex
	pname    string
	serial   port
	log      logger.Logger
	channels map[actuator.Channel]uint8
	wbuf     []byte
	chunk    []byte
	rbuf     []byte
}

func OpenAuto(baudrate int) (*Controller, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var port *enumerator.PortDetails
	for _, p := range ports {
		if p.IsUSB && p.VID == VID && p.PID == PID {
			port = p
			break
		}
	}
	if port == nil {
		return nil, ErrNotFound
	}

	fmt.Printf("Found motor board on %s - VID: %s - PID: %s - SN: %s\n", port.Name, port.VID, port.PID, port.SerialNumber)
	return Open(port.Name, baudrate)
}

func Open(name string, baudrate int) (*Controller, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	if err = p.SetReadTimeout(200 * time.Millisecond); err != nil {
		p.Close()
		return nil, err
	}

	c := newController(name, p)
	if err = c.reset(); err != nil {
		p.Close()
		return nil, err
	}

	return c, nil
}

func newController(name string, p port) *Controller {
	return &Controller{
		pname:  name,
		serial: p,
		channels: map[actuator.Channel]uint8{
			actuator.ChannelA: 0,
			actuator.ChannelB: 1,
		},
		wbuf:  make([]byte, CommTxBufferLen),
		chunk: make([]byte, CommRxChunkLen),
		rbuf:  make([]byte, 0, CommRxBufferLen),
	}
}

func (c *Controller) SetLogger(l logger.Logger) {
	c.log = l
}

// SetChannels maps the forward and backward motor inputs onto the board outputs.
func (c *Controller) SetChannels(forward, backward uint8) error {
	if forward == backward {
		return ErrInvalidChannel
	}

	c.sync.Lock()
	defer c.sync.Unlock()

	c.channels[actuator.ChannelA] = forward
	c.channels[actuator.ChannelB] = backward
	return nil
}

func (c *Controller) Close() error {
	if err := c.reset(); err != nil {
		return err
	}

	return c.serial.Close()
}

func (c *Controller) Port() string {
	return c.pname
}

func (c *Controller) HardwareInfo() (*HardwareInfo, error) {
	response, err := c.Run(CommandHardwareInfo)
	if err != nil {
		return nil, fmt.Errorf("hardware_info: %w", err)
	}

	kv := fields(response)
	return &HardwareInfo{
		Revision: kv["HW_REV"],
		MCU:      kv["MCU"],
		USB:      kv["USB"],
		Channels: kv["CHANNELS"],
		Driver:   kv["DRIVER"],
	}, nil
}

func (c *Controller) FirmwareInfo() (*FirmwareInfo, error) {
	response, err := c.Run(CommandFirmwareInfo)
	if err != nil {
		return nil, fmt.Errorf("firmware_info: %w", err)
	}

	kv := fields(response)
	return &FirmwareInfo{
		Revision:        kv["FW_REV"],
		ProtocolVersion: kv["PROTOCOL_VERSION"],
	}, nil
}

// SetFrequency sets the PWM frequency of the motor outputs.
func (c *Controller) SetFrequency(hz uint16) error {
	h1, h2, h3, h4 := f4x(hz)

	response, err := c.Run(CommandFrequency, h1, h2, h3, h4)
	if err != nil {
		return fmt.Errorf("frequency: %w", err)
	}

	return expect(CommandFrequency, response, uint64(hz))
}

// SetDuty implements actuator.PWM. The board resolution is a hundredth of a percent.
func (c *Controller) SetDuty(ch actuator.Channel, duty float64) error {
	if math.IsNaN(duty) || duty < 0 || duty > 100 {
		return ErrInvalidDuty
	}

	out, err := c.channel(ch)
	if err != nil {
		return err
	}

	c1, c2 := f2x(out)
	value := uint16(math.Round(duty * 100))
	d1, d2, d3, d4 := f4x(value)

	response, err := c.Run(CommandSetDuty, c1, c2, d1, d2, d3, d4)
	if err != nil {
		return fmt.Errorf("set_duty: %w", err)
	}

	return expectChannel(CommandSetDuty, response, out, uint64(value))
}

// ForceLow implements actuator.PWM.
func (c *Controller) ForceLow(ch actuator.Channel) error {
	out, err := c.channel(ch)
	if err != nil {
		return err
	}

	c1, c2 := f2x(out)
	response, err := c.Run(CommandForceLow, c1, c2)
	if err != nil {
		return fmt.Errorf("force_low: %w", err)
	}

	return expectChannel(CommandForceLow, response, out, 0)
}

// SetPulseWidth implements actuator.Servo.
func (c *Controller) SetPulseWidth(d time.Duration) error {
	us := d.Microseconds()
	if us <= 0 || us > math.MaxUint16 {
		return fmt.Errorf("servo_pulse: %s: out of range", d)
	}

	p1, p2, p3, p4 := f4x(uint16(us))
	response, err := c.Run(CommandServoPulse, p1, p2, p3, p4)
	if err != nil {
		return fmt.Errorf("servo_pulse: %w", err)
	}

	return expect(CommandServoPulse, response, uint64(us))
}

// Run sends the command and returns the payload of its response.
func (c *Controller) Run(command Command, payload ...byte) ([]byte, error) {
	c.sync.Lock()
	defer c.sync.Unlock()

	l := 5 + len(payload)
	if l > len(c.wbuf) {
		return nil, fmt.Errorf("payload too long: %d", len(payload))
	}

	c.wbuf[0] = CommRequestCharacter
	c.wbuf[1], c.wbuf[2] = f2x(command)
	copy(c.wbuf[3:], payload)
	c.wbuf[l-2] = CommAltEndCharacter
	c.wbuf[l-1] = CommEndCharacter

	// Drops replies that arrived after a previous timeout.
	if err := c.serial.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}

	n, err := c.serial.Write(c.wbuf[:l])
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	if n != l && c.log != nil {
		c.log.Warnf("Invalid write: %d of %d", n, l)
	}

	//

	c.rbuf = c.rbuf[:0]
	for {
		response, ok, err := c.response(command)
		if err != nil {
			return nil, err
		}
		if ok {
			return response, nil
		}

		n, err := c.serial.Read(c.chunk)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return nil, ErrTimeout // The port read timeout has been reached.
		}
		if len(c.rbuf)+n > CommRxBufferLen {
			return nil, fmt.Errorf("read: %w: too long", ErrInvalidResponse)
		}

		c.rbuf = append(c.rbuf, c.chunk[:n]...)
	}
}

// response looks for the response line in the received bytes, logging what the board printed before.
func (c *Controller) response(command Command) ([]byte, bool, error) {
	for {
		end := bytes.IndexByte(c.rbuf, CommEndCharacter)
		if end < 0 {
			return nil, false, nil
		}

		line := bytes.TrimRight(c.rbuf[:end], "\r")
		c.rbuf = c.rbuf[end+1:]

		if len(line) == 0 || line[0] != CommResponseCharacter {
			if len(line) > 0 && c.log != nil {
				c.log.Debug(string(line))
			}
			continue
		}
		if c.log != nil {
			c.log.Debug(string(line))
		}

		code, body, ok := bytes.Cut(line[1:], []byte{CommSeparatorCharacter})
		if !ok || len(code) != 2 {
			return nil, false, fmt.Errorf("%s: %w: %q", command, ErrInvalidResponse, line)
		}

		v, err := strconv.ParseUint(string(code), 16, 8)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w: unexpected command %q", command, ErrInvalidResponse, code)
		}
		if Command(v) != command {
			if c.log != nil {
				c.log.Debugf("Skipping stale %s response", Command(v))
			}
			continue
		}

		if msg, ok := bytes.CutPrefix(body, []byte(errorPrefix)); ok {
			return nil, false, &BoardError{Command: command, Message: string(bytes.TrimSpace(msg))}
		}

		return bytes.Clone(bytes.TrimSpace(body)), true, nil
	}
}

func (c *Controller) channel(ch actuator.Channel) (uint8, error) {
	c.sync.Lock()
	defer c.sync.Unlock()

	out, ok := c.channels[ch]
	if !ok {
		return 0, ErrInvalidChannel
	}
	return out, nil
}

func (c *Controller) reset() error {
	if err := c.serial.ResetInputBuffer(); err != nil {
		return err
	}

	return c.serial.ResetOutputBuffer()
}

// expect checks a `VALUE` response.
func expect(command Command, response []byte, value uint64) error {
	v, err := strconv.ParseUint(string(response), 16, 16)
	if err != nil {
		return fmt.Errorf("%s: %w: %q", command, ErrInvalidResponse, response)
	}
	if v != value {
		return fmt.Errorf("%s: %w: applied %d instead of %d", command, ErrInvalidResponse, v, value)
	}

	return nil
}

// expectChannel checks a `CHANNEL:VALUE` response.
func expectChannel(command Command, response []byte, ch uint8, value uint64) error {
	k, v, ok := bytes.Cut(response, []byte{':'})
	if !ok {
		return fmt.Errorf("%s: %w: %q", command, ErrInvalidResponse, response)
	}

	out, err := strconv.ParseUint(string(k), 16, 8)
	if err != nil || uint8(out) != ch {
		return fmt.Errorf("%s: %w: unexpected channel %q", command, ErrInvalidResponse, k)
	}

	return expect(command, v, value)
}
