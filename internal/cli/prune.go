package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type pruneOptions struct {
	Keep int
}

func newBackupPruneCommand() *cobra.Command {
	opts := pruneOptions{}
	cmd := &cobra.Command{
		Use:   "prune [label]",
		Short: "Delete all but the newest backups of each label",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := ""
			if len(args) == 1 {
				label = args[0]
			}
			return runPrune(cmd.Context(), cmd, label, opts)
		},
	}
	cmd.Flags().IntVar(&opts.Keep, "keep", 0, "Backups to keep per label (defaults to backup_keep)")
	_ = viper.BindPFlag("backup_keep", cmd.Flags().Lookup("keep"))
	return cmd
}

func runPrune(ctx context.Context, cmd *cobra.Command, label string, opts pruneOptions) error {
	service := newAppService(cmd)
	removed, err := service.PruneBackups(ctx, label, resolveInt(cmd, opts.Keep, "backup_keep", "keep"))
	if err != nil {
		return err
	}
	for _, dir := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", dir)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned backups: %d\n", len(removed))
	return nil
}
