package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and recover operation locks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove stale locks left by dead processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newAppService(cmd)
			removed, err := service.CleanStaleLocks(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed stale locks: %d\n", len(removed))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "release <operation>",
		Short: "Force release a lock, e.g. install-module:acme/blog or update-kernel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := newAppService(cmd)
			if err := service.ForceReleaseLock(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <operation>",
		Short: "Show which process holds a lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := newAppService(cmd)
			info, err := service.InspectLock(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if info == nil {
				fmt.Fprintf(out, "%s is free\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "%s held by pid %d on %s since %s\n",
				info.Operation, info.PID, info.Hostname, info.Timestamp.Format("2006-01-02 15:04:05"))
			return nil
		},
	})
	return cmd
}
