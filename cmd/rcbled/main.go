package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"

	"github.com/go-ble/ble"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/rcbled"
	"github.com/mdouchement/rcbled/actuator"
	"github.com/mdouchement/rcbled/blelink"
	showmapping "github.com/mdouchement/rcbled/cmd/rcbled/show_mapping"
	showports "github.com/mdouchement/rcbled/cmd/rcbled/show_ports"
	"github.com/mdouchement/rcbled/motorboard"
	"github.com/mdouchement/rcbled/sysfs/pwm"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath string
	dummy bool
)

func main() {
	cmd := &cobra.Command{
		Use:     "rcbled",
		Short:   "A BLE controlled RC vehicle daemon",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		RunE:    daemon,
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", "/etc/rcbled/rcbled.yml", "Configfile path")
	cmd.Flags().BoolVarP(&dummy, "dummy", "", false, "Start rcbled with a dummy motor driver and a bench link instead of BLE")
	cmd.AddCommand(showmapping.Command())
	cmd.AddCommand(showports.Command())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for rcbled",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func daemon(_ *cobra.Command, args []string) error {
	cfg, err := rcbled.Load(cpath)
	if dummy && errors.Is(err, os.ErrNotExist) {
		cfg = rcbled.Default()
		err = cfg.Validate()
	}
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	h := logger.NewSlogTextHandler(os.Stdout, &logger.SlogTextOption{
		Level:            level,
		ForceColors:      true,
		ForceFormatting:  true,
		PrefixRE:         regexp.MustCompile(`^(\[.*?\])\s`),
		DisableTimestamp: true, // Provided by journalctl
	})
	log := logger.WrapSlogHandler(h)
	ctx := logger.WithLogger(context.Background(), log)

	log.Infof("rcbled version %s", version)

	var link rcbled.Link
	var driver rcbled.MotorDriver

	if dummy {
		d := rcbled.NewDummyMotorDriver()
		if cfg.Debug {
			d.SetLogger(log.WithPrefix("[dummy]"))
		}

		driver = d
		link = rcbled.NewBenchLink()
	} else {
		var closer func() error
		driver, closer, err = openDriver(cfg, log)
		if err != nil {
			return err
		}
		defer closer()

		link, err = blelink.Open(blelink.Options{
			DeviceID: cfg.BLE.DeviceID,
			Name:     cfg.BLE.Name,
			Service:  ble.MustParse(cfg.BLE.ServiceUUID),
			Tx:       ble.MustParse(cfg.BLE.TxUUID),
			Rx:       ble.MustParse(cfg.BLE.RxUUID),
			Logger:   log.WithPrefix("[ble]"),
		})
		if err != nil {
			return fmt.Errorf("ble: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)

	controller, err := rcbled.New(cfg, link, driver, driver)
	if err != nil {
		cancel()
		link.Close()
		return err
	}
	controller.Launch(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	cancel()
	<-controller.Done()

	log.Info("Gracefully shutdown")
	return nil
}

func openDriver(cfg rcbled.Config, log logger.Logger) (rcbled.MotorDriver, func() error, error) {
	switch cfg.Motor.Driver {
	case rcbled.DriverSysfs:
		motor, err := pwm.OpenMotor(cfg.Motor.Chip, cfg.Motor.ForwardChannel, cfg.Motor.BackwardChannel, cfg.Motor.Frequency)
		if err != nil {
			return nil, nil, fmt.Errorf("motor: %w", err)
		}

		servo, err := pwm.OpenServo(cfg.Steering.Chip, cfg.Steering.Channel)
		if err != nil {
			motor.Close()
			return nil, nil, fmt.Errorf("steering: %w", err)
		}

		log.Infof("Motor on pwmchip%d (forward: pwm%d, backward: pwm%d) - Servo on pwmchip%d/pwm%d",
			cfg.Motor.Chip, cfg.Motor.ForwardChannel, cfg.Motor.BackwardChannel, cfg.Steering.Chip, cfg.Steering.Channel)

		driver := struct {
			actuator.PWM
			actuator.Servo
		}{motor, servo}

		return driver, func() error {
			return errors.Join(motor.Close(), servo.Close())
		}, nil
	default:
		var ctrl *motorboard.Controller
		var err error
		if cfg.Motor.Port == rcbled.PortAuto {
			ctrl, err = motorboard.OpenAuto(cfg.Motor.Baudrate)
		} else {
			ctrl, err = motorboard.Open(cfg.Motor.Port, cfg.Motor.Baudrate)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("motorboard: %w", err)
		}
		if cfg.Debug {
			ctrl.SetLogger(log.WithPrefix("[motorboard]"))
		}

		log.Infof("Motor board port `%s`", ctrl.Port())

		hw, err := ctrl.HardwareInfo()
		if err != nil {
			ctrl.Close()
			return nil, nil, err
		}
		log.Infof("Hardware - REV: %s - MCU: %s - USB: %s - CHANNELS: %s - DRIVER: %s", hw.Revision, hw.MCU, hw.USB, hw.Channels, hw.Driver)

		fw, err := ctrl.FirmwareInfo()
		if err != nil {
			ctrl.Close()
			return nil, nil, err
		}
		log.Infof("Firmware - REV: %s - PROTOCOL_VERSION: %s", fw.Revision, fw.ProtocolVersion)

		err = ctrl.SetChannels(uint8(cfg.Motor.ForwardChannel), uint8(cfg.Motor.BackwardChannel))
		if err == nil {
			err = ctrl.SetFrequency(uint16(cfg.Motor.Frequency))
		}
		if err != nil {
			ctrl.Close()
			return nil, nil, fmt.Errorf("motorboard: %w", err)
		}

		return ctrl, ctrl.Close, nil
	}
}
