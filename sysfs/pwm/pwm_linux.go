package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mdouchement/rcbled/sysfs/environment"
)

// Chips lists the PWM controllers known by the kernel.
func Chips() ([]Chip, error) {
	// e.g. /sys/class/pwm/pwmchip0 /sys/class/pwm/pwmchip2
	dirs, err := filepath.Glob(environment.HostSys("/class/pwm/pwmchip*"))
	if err != nil {
		return nil, err
	}

	chips := make([]Chip, 0, len(dirs))
	for _, dir := range dirs {
		id, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "pwmchip"))
		if err != nil {
			continue
		}

		npwm, err := readInt(filepath.Join(dir, "npwm"))
		if err != nil {
			return nil, fmt.Errorf("pwmchip%d: %w", id, err)
		}

		chips = append(chips, Chip{ID: id, Path: dir, NPWM: npwm})
	}

	slices.SortFunc(chips, func(a, b Chip) int {
		return a.ID - b.ID
	})
	return chips, nil
}

// A Channel is one exported PWM output.
// Durations are written in nanoseconds as expected by the kernel.
type Channel struct {
	chip     string
	path     string
	id       int
	period   time.Duration
	enabled  bool
	exported bool
}

// OpenChannel exports the channel when needed and sets its period, leaving the output disabled.
func OpenChannel(chip, channel int, period time.Duration) (*Channel, error) {
	c := &Channel{
		chip:   environment.HostSys("/class/pwm", fmt.Sprintf("pwmchip%d", chip)),
		id:     channel,
		period: period,
	}
	c.path = filepath.Join(c.chip, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(c.chip); err != nil {
		return nil, fmt.Errorf("pwmchip%d: %w", chip, err)
	}

	if _, err := os.Stat(c.path); errors.Is(err, os.ErrNotExist) {
		if err = write(filepath.Join(c.chip, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("pwm%d: export: %w", channel, err)
		}
		c.exported = true

		if err = c.awaitExport(); err != nil {
			return nil, err
		}
	}

	// The kernel refuses a period shorter than the current duty cycle.
	if err := write(filepath.Join(c.path, "enable"), "0"); err != nil {
		return nil, fmt.Errorf("pwm%d: %w", channel, err)
	}
	if err := c.writeDuration("duty_cycle", 0); err != nil {
		return nil, err
	}
	if err := c.writeDuration("period", period); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Channel) Period() time.Duration {
	return c.period
}

func (c *Channel) SetDutyCycle(d time.Duration) error {
	if err := c.writeDuration("duty_cycle", min(max(d, 0), c.period)); err != nil {
		return err
	}

	if c.enabled {
		return nil
	}
	if err := write(filepath.Join(c.path, "enable"), "1"); err != nil {
		return fmt.Errorf("pwm%d: enable: %w", c.id, err)
	}
	c.enabled = true
	return nil
}

// Disable drives the output low.
func (c *Channel) Disable() error {
	errD := c.writeDuration("duty_cycle", 0)

	errE := write(filepath.Join(c.path, "enable"), "0")
	if errE == nil {
		c.enabled = false
	} else {
		errE = fmt.Errorf("pwm%d: disable: %w", c.id, errE)
	}

	return errors.Join(errD, errE)
}

// Close disables the output and unexports the channel if it has been exported by Open.
func (c *Channel) Close() error {
	err := c.Disable()
	if !c.exported {
		return err
	}

	return errors.Join(err, write(filepath.Join(c.chip, "unexport"), strconv.Itoa(c.id)))
}

func (c *Channel) awaitExport() error {
	deadline := time.Now().Add(ExportTimeout)
	for {
		if _, err := os.Stat(filepath.Join(c.path, "enable")); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pwm%d: %w", c.id, ErrExport)
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func (c *Channel) writeDuration(name string, d time.Duration) error {
	if err := write(filepath.Join(c.path, name), strconv.FormatInt(d.Nanoseconds(), 10)); err != nil {
		return fmt.Errorf("pwm%d: %s: %w", c.id, name, err)
	}
	return nil
}

// write does not create the file, sysfs attributes always exist.
func write(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}

	_, err = f.WriteString(value)
	return errors.Join(err, f.Close())
}

func readInt(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(strings.TrimSpace(string(raw)))
}
