//go:build linux

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/smazurov/echotherm/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 output devices",
		Long:  `Lists video devices that accept frames, such as v4l2loopback nodes. Use one as --loopback-device.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			find := v4l2.FindOutputDevices
			if all {
				find = v4l2.FindDevices
			}
			devices, err := find()
			if err != nil {
				return fmt.Errorf("scan video devices: %w", err)
			}
			if len(devices) == 0 {
				fmt.Fprintln(c.OutOrStdout(), "No devices found")
				return nil
			}

			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tNAME\tDRIVER\tOUTPUT\tLOOPBACK")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", d.DevicePath, d.DeviceName, d.Driver, d.IsOutput(), d.IsLoopback())
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include capture-only devices")
	cmd.SilenceUsage = true
	return cmd
}
