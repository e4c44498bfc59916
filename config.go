package rcbled

import (
	"fmt"
	"os"
	"time"

	"github.com/go-ble/ble"
	"github.com/mdouchement/rcbled/lifecycle"
	"github.com/mdouchement/rcbled/protocol"
	"go.yaml.in/yaml/v4"
)

const (
	DriverMotorboard = "motorboard"
	DriverSysfs      = "sysfs"

	PortAuto = "auto"
)

type Config struct {
	Debug     bool      `yaml:"debug"`
	Socket    string    `yaml:"socket"`
	BLE       BLE       `yaml:"ble"`
	Motor     Motor     `yaml:"motor"`
	Steering  Steering  `yaml:"steering"`
	Telemetry Telemetry `yaml:"telemetry"`
}

type BLE struct {
	DeviceID    int      `yaml:"device_id"`
	Name        string   `yaml:"name"`
	ServiceUUID string   `yaml:"service_uuid"`
	TxUUID      string   `yaml:"tx_uuid"`
	RxUUID      string   `yaml:"rx_uuid"`
	SettleDelay Duration `yaml:"settle_delay"`
	RetryDelay  Duration `yaml:"retry_delay"`
}

type Motor struct {
	Driver          string `yaml:"driver"`
	Frequency       int    `yaml:"frequency"` // Hz
	Port            string `yaml:"port"`
	Baudrate        int    `yaml:"baudrate"`
	Chip            int    `yaml:"chip"`
	ForwardChannel  int    `yaml:"forward_channel"`
	BackwardChannel int    `yaml:"backward_channel"`
}

type Steering struct {
	Chip        int                `yaml:"chip"`
	Channel     int                `yaml:"channel"`
	MinPulse    int                `yaml:"min_pulse"` // µs
	MaxPulse    int                `yaml:"max_pulse"` // µs
	MinAngle    float64            `yaml:"min_angle"`
	MaxAngle    float64            `yaml:"max_angle"`
	Calibration []CalibrationPoint `yaml:"calibration"`
}

type CalibrationPoint struct {
	Angle float64 `yaml:"angle"`
	Pulse int     `yaml:"pulse"` // µs
}

type Telemetry struct {
	// FaultThreshold is the number of consecutive failures of a peripheral write
	// before it is notified to the client.
	FaultThreshold int `yaml:"fault_threshold"`
}

// Default returns the configuration matching the stock vehicle.
func Default() Config {
	return Config{
		Socket: "/run/rcbled/rcbled.sock",
		BLE: BLE{
			Name:        protocol.DeviceName,
			ServiceUUID: protocol.ServiceUUID,
			TxUUID:      protocol.TxCharUUID,
			RxUUID:      protocol.RxCharUUID,
			SettleDelay: Duration{lifecycle.DefaultSettleDelay},
			RetryDelay:  Duration{lifecycle.DefaultRetryDelay},
		},
		Motor: Motor{
			Driver:          DriverMotorboard,
			Frequency:       1000,
			Port:            PortAuto,
			Baudrate:        115200,
			ForwardChannel:  0,
			BackwardChannel: 1,
		},
		Steering: Steering{
			Channel:  2,
			MinPulse: 750,
			MaxPulse: 2250,
			MinAngle: -45,
			MaxAngle: 45,
		},
		Telemetry: Telemetry{
			FaultThreshold: 3,
		},
	}
}

func Load(path string) (Config, error) {
	c := Default()

	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()

	codec := yaml.NewDecoder(f)
	err = codec.Decode(&c)
	if err != nil {
		return c, err
	}

	return c, c.Validate()
}

// Validate checks the configuration and fills the steering calibration when none is given.
func (c *Config) Validate() error {
	if c.Socket == "" {
		return fmt.Errorf("socket: must not be empty")
	}

	//

	if c.BLE.Name == "" {
		return fmt.Errorf("ble.name: must not be empty")
	}
	for key, uuid := range map[string]string{
		"ble.service_uuid": c.BLE.ServiceUUID,
		"ble.tx_uuid":      c.BLE.TxUUID,
		"ble.rx_uuid":      c.BLE.RxUUID,
	} {
		if _, err := ble.Parse(uuid); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.BLE.TxUUID == c.BLE.RxUUID {
		return fmt.Errorf("ble.rx_uuid: must differ from tx_uuid")
	}
	if c.BLE.SettleDelay.Duration < 0 {
		return fmt.Errorf("ble.settle_delay: must be positive")
	}
	if c.BLE.RetryDelay.Duration <= 0 {
		return fmt.Errorf("ble.retry_delay: must be greater than 0")
	}

	//

	switch c.Motor.Driver {
	case DriverMotorboard:
		if c.Motor.Port == "" {
			return fmt.Errorf("motor.port: must be a serial port or %s", PortAuto)
		}
		if c.Motor.Baudrate <= 0 {
			return fmt.Errorf("motor.baudrate: must be greater than 0")
		}
	case DriverSysfs:
	default:
		return fmt.Errorf("motor.driver: %s: must be %s or %s", c.Motor.Driver, DriverMotorboard, DriverSysfs)
	}
	if c.Motor.Frequency <= 0 || c.Motor.Frequency > 0xFFFF {
		return fmt.Errorf("motor.frequency: must be in range ]0,65535]")
	}
	if c.Motor.ForwardChannel < 0 || c.Motor.BackwardChannel < 0 {
		return fmt.Errorf("motor: channels must be positive")
	}
	if c.Motor.ForwardChannel == c.Motor.BackwardChannel {
		return fmt.Errorf("motor.backward_channel: must differ from forward_channel")
	}

	//

	s := &c.Steering
	if s.Channel < 0 {
		return fmt.Errorf("steering.channel: must be positive")
	}
	if c.Motor.Driver == DriverSysfs && s.Chip == c.Motor.Chip && (s.Channel == c.Motor.ForwardChannel || s.Channel == c.Motor.BackwardChannel) {
		return fmt.Errorf("steering.channel: already used by the motor")
	}
	if s.MinPulse <= 0 || s.MinPulse >= s.MaxPulse || s.MaxPulse > 0xFFFF {
		return fmt.Errorf("steering: min_pulse and max_pulse must satisfy 0 < min_pulse < max_pulse <= 65535")
	}
	if s.MinAngle > 0 || s.MaxAngle < 0 || s.MinAngle >= s.MaxAngle {
		return fmt.Errorf("steering: min_angle and max_angle must satisfy min_angle <= 0 <= max_angle")
	}

	if len(s.Calibration) == 0 {
		s.Calibration = []CalibrationPoint{
			{Angle: -90, Pulse: s.MinPulse},
			{Angle: 0, Pulse: (s.MinPulse + s.MaxPulse) / 2},
			{Angle: 90, Pulse: s.MaxPulse},
		}
	}
	if len(s.Calibration) < 2 {
		return fmt.Errorf("steering.calibration: at least 2 points are required")
	}
	for i, p := range s.Calibration {
		if i > 0 && p.Angle <= s.Calibration[i-1].Angle {
			return fmt.Errorf("steering.calibration: angles must be strictly increasing")
		}
		if p.Pulse < s.MinPulse || p.Pulse > s.MaxPulse {
			return fmt.Errorf("steering.calibration: %v°: pulse %dµs out of range [%d,%d]", p.Angle, p.Pulse, s.MinPulse, s.MaxPulse)
		}
	}

	//

	if c.Telemetry.FaultThreshold < 1 {
		return fmt.Errorf("telemetry.fault_threshold: must be greater than 0")
	}

	return nil
}

func (s Steering) PulseRange() (time.Duration, time.Duration) {
	return time.Duration(s.MinPulse) * time.Microsecond, time.Duration(s.MaxPulse) * time.Microsecond
}
