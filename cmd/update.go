package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/echotherm/internal/updater"
	"github.com/smazurov/echotherm/internal/version"
	"github.com/spf13/cobra"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var opts updater.Options
	var checkOnly bool
	var rollback bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update echotherm to the latest release",
		Long: `Downloads the latest GitHub release for this platform and replaces the running binary, ` +
			`keeping a backup for --rollback. A running daemon keeps the old version until restarted.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			out := c.OutOrStdout()
			opts.Restart = func() {
				fmt.Fprintln(out, "Restart the daemon to use the new binary")
			}
			svc, err := updater.NewService(&opts)
			if err != nil {
				return err
			}
			if !svc.IsEnabled() {
				return errors.New("updates disabled: " + svc.DisabledReason())
			}

			ctx, cancel := context.WithTimeout(c.Context(), 5*time.Minute)
			defer cancel()

			if rollback {
				target := svc.GetStatus(ctx).BackupVersion
				if err := svc.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Rolled back to", target)
				return nil
			}

			info, err := svc.CheckForUpdate(ctx)
			if err != nil {
				return err
			}
			if !info.UpdateAvailable {
				fmt.Fprintf(out, "Already up to date (%s)\n", info.CurrentVersion)
				return nil
			}
			fmt.Fprintf(out, "Update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if info.ReleaseURL != "" {
				fmt.Fprintln(out, info.ReleaseURL)
			}
			if checkOnly {
				return nil
			}

			if err := svc.ApplyUpdate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Updated to", info.LatestVersion)
			// the restart callback runs shortly after ApplyUpdate returns
			time.Sleep(time.Second)
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "only report whether an update is available")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "restore the binary saved by the last update")
	cmd.Flags().BoolVar(&opts.Prerelease, "prerelease", false, "include prereleases")
	cmd.Flags().StringVar(&opts.Repository, "repository", updater.DefaultRepository, "GitHub repository to update from")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")
	cmd.SilenceUsage = true
	return cmd
}

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintln(c.OutOrStdout(), version.Get().String())
		},
	}
}
