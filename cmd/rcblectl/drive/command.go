// Package drive sends commands to a rcbled started in dummy mode through its bench endpoints.
package drive

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mdouchement/rcbled/protocol"
	"github.com/spf13/cobra"
)

func Command(client *http.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Drive a rcbled started with --dummy",
	}

	motion := func(d protocol.Direction) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, args []string) error {
			duty, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return err
			}

			p, err := protocol.EncodeMotion(d, duty)
			if err != nil {
				return err
			}
			return send(client, "/bench/rx", p)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "forward <duty>",
		Short: "Run forward at the given duty (0-100)",
		Args:  cobra.ExactArgs(1),
		RunE:  motion(protocol.Forward),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "backward <duty>",
		Short: "Run backward at the given duty (0-100)",
		Args:  cobra.ExactArgs(1),
		RunE:  motion(protocol.Backward),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the motor",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := protocol.EncodeMotion(protocol.Stop, 0)
			if err != nil {
				return err
			}
			return send(client, "/bench/rx", p)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "steer <angle>",
		Short: "Steer at the given angle in degrees, negative is left",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			angle, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return err
			}
			return send(client, "/bench/rx", protocol.EncodeSteering(angle))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "raw <hex>",
		Short: "Write the given bytes as is on the RX characteristic",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := hex.DecodeString(args[0])
			if err != nil {
				return err
			}
			return send(client, "/bench/rx", p)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "connect",
		Short: "Simulate a client connection",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return send(client, "/bench/connect", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disconnect",
		Short: "Simulate a client disconnection",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return send(client, "/bench/disconnect", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "notifications",
		Short: "Show the notifications sent to the client",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return notifications(client)
		},
	})

	return cmd
}

func send(client *http.Client, path string, p []byte) error {
	resp, err := client.Post("http://unix"+path, "application/octet-stream", bytes.NewReader(p))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("bench endpoints are only available when rcbled runs with --dummy")
	}
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("bad status: %s body=%q", resp.Status, string(b))
	}

	time.Sleep(100 * time.Millisecond) // Let the event loop handle it.
	return notifications(client)
}

func notifications(client *http.Client) error {
	resp, err := client.Get("http://unix/bench/tx")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var tx []string
	if err = json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return err
	}

	for _, h := range tx {
		p, err := hex.DecodeString(h)
		if err != nil {
			return err
		}

		n, err := protocol.DecodeTelemetry(p)
		if err != nil {
			fmt.Printf("%s: %s\n", h, err)
			continue
		}

		switch n.Kind {
		case protocol.TelemetryState:
			fmt.Printf("%s: state %s %.1f%% steering %+.0f°\n", h, n.Direction, n.Duty, n.Steering)
		case protocol.TelemetryLink:
			fmt.Printf("%s: link %t\n", h, n.Link == protocol.LinkConnected)
		case protocol.TelemetryFault:
			fmt.Printf("%s: fault 0x%02X x%d\n", h, n.FaultOp, n.Consecutive)
		}
	}

	return nil
}
