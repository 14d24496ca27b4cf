package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "List, restore and prune module and kernel backups",
	}
	cmd.AddCommand(newBackupListCommand())
	cmd.AddCommand(newBackupRestoreCommand())
	cmd.AddCommand(newBackupPruneCommand())
	return cmd
}

func newBackupListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [label]",
		Short: "List backups, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := ""
			if len(args) == 1 {
				label = args[0]
			}
			return runBackupList(cmd.Context(), cmd, label)
		},
	}
}

func runBackupList(ctx context.Context, cmd *cobra.Command, label string) error {
	service := newAppService(cmd)
	backups, err := service.ListBackups(ctx, label)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(backups) == 0 {
		fmt.Fprintln(out, "no backups")
		return nil
	}
	for _, backup := range backups {
		fmt.Fprintf(out, "%s\t%s\t%d bytes\t%s\n",
			backup.CreatedAt.Format("2006-01-02 15:04:05"), backup.Label, backup.SizeBytes, backup.Dir)
	}
	return nil
}

func newBackupRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-dir> <target>",
		Short: "Restore a backup over a path relative to the app root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := newAppService(cmd)
			if err := service.RestoreBackup(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s into %s\n", args[0], args[1])
			return nil
		},
	}
}
