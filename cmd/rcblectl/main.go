package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"

	"github.com/mdouchement/rcbled/cmd/rcblectl/drive"
	"github.com/mdouchement/rcbled/cmd/rcblectl/monitor"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"
)

func main() {
	client := &http.Client{}
	var socket string

	cmd := &cobra.Command{
		Use:     "rcblectl",
		Short:   "A ctl use to interact with rcbled",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			var err error
			if socket == "" {
				socket, err = locate()
				if err != nil {
					return err
				}
			} else if isSocket(socket) {
				cpath, err := settingsPath()
				if err == nil {
					err = remember(cpath, socket)
				}
				if err != nil {
					fmt.Println("Could not remember the socket path:", err)
				}
			}

			client.Transport = &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&socket, "socket", "s", "", "rcbled socket path")
	cmd.AddCommand(monitor.Command(client))
	cmd.AddCommand(drive.Command(client))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for rcblectl",
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
