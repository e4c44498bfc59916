package showports

import (
	"fmt"
	"strings"

	"github.com/mdouchement/rcbled/motorboard"
	"github.com/mdouchement/rcbled/sysfs/pwm"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "show-ports",
		Short: "Show the serial ports and the PWM chips usable as motor driver",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			ports, err := enumerator.GetDetailedPortsList()
			if err != nil {
				return err
			}

			fmt.Println("Serial ports:")
			if len(ports) == 0 {
				fmt.Println("  none")
			}
			for _, p := range ports {
				if !p.IsUSB {
					fmt.Printf("  %s\n", p.Name)
					continue
				}

				var board string
				if strings.EqualFold(p.VID, motorboard.VID) && strings.EqualFold(p.PID, motorboard.PID) {
					board = " (motor board)"
				}
				fmt.Printf("  %s - VID: %s - PID: %s - SN: %s%s\n", p.Name, p.VID, p.PID, p.SerialNumber, board)
			}

			chips, err := pwm.Chips()
			if err != nil {
				return err
			}

			fmt.Println("PWM chips:")
			if len(chips) == 0 {
				fmt.Println("  none")
			}
			for _, chip := range chips {
				fmt.Printf("  pwmchip%d - channels: %d - %s\n", chip.ID, chip.NPWM, chip.Path)
			}

			return nil
		},
	}
}
