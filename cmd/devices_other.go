//go:build !linux

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List V4L2 output devices",
		RunE: func(*cobra.Command, []string) error {
			return errors.New("V4L2 devices are only available on Linux")
		},
	}
}
