package cmd

import (
	"fmt"
	"syscall"

	"github.com/smazurov/echotherm/internal/lockfile"
	"github.com/spf13/cobra"
)

// CreateKillCmd creates the kill command.
func CreateKillCmd() *cobra.Command {
	var lockPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Stop the running daemon",
		Long:  `Sends SIGTERM, or SIGKILL with --force, to the process recorded in the lock file.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			sig := syscall.SIGTERM
			if force {
				sig = syscall.SIGKILL
			}
			pid, err := lockfile.Signal(lockPath, sig)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Sent %s to %d\n", sig, pid)
			return nil
		},
	}

	cmd.Flags().StringVar(&lockPath, "lock-file", lockfile.DefaultPath, "daemon lock file")
	cmd.Flags().BoolVar(&force, "force", false, "send SIGKILL instead of SIGTERM")
	cmd.SilenceUsage = true
	return cmd
}
