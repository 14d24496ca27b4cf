package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"webkernel-modules/internal/app"
)

type updateKernelOptions struct {
	Version    string
	Latest     bool
	Prerelease bool
	Token      string
	Backup     bool
	Force      bool
	NoHooks    bool
	NoValidate bool
	DryRun     bool
}

func newUpdateKernelCommand() *cobra.Command {
	opts := updateKernelOptions{}
	cmd := &cobra.Command{
		Use:   "update-kernel",
		Short: "Update the kernel to a release of the kernel source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdateKernel(cmd.Context(), cmd, opts)
		},
	}
	addReleaseFlags(cmd, &opts.Version, &opts.Latest, &opts.Prerelease, &opts.Token)
	cmd.Flags().BoolVar(&opts.Backup, "backup", true, "Back up the current kernel before replacing it")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Allow reinstalling or downgrading the kernel")
	cmd.Flags().BoolVar(&opts.NoHooks, "no-hooks", false, "Skip update and post-update hooks")
	cmd.Flags().BoolVar(&opts.NoValidate, "no-validate", false, "Skip required file checks")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Report the current version only")
	_ = viper.BindPFlag("kernel_backup", cmd.Flags().Lookup("backup"))
	return cmd
}

func runUpdateKernel(ctx context.Context, cmd *cobra.Command, opts updateKernelOptions) error {
	service := newAppService(cmd)
	result := service.UpdateKernel(ctx, app.UpdateKernelRequest{
		Version:            opts.Version,
		IncludePrereleases: opts.Prerelease,
		Token:              opts.Token,
		CreateBackup:       resolveBool(cmd, opts.Backup, "kernel_backup", "backup"),
		RunHooks:           !opts.NoHooks,
		Validate:           !opts.NoValidate,
		DryRun:             opts.DryRun,
		Force:              opts.Force,
	})
	if !result.Success {
		return operationError(result.ErrorKind, result.Error)
	}
	out := cmd.OutOrStdout()
	current := result.PreviousVersion
	if current == "" {
		current = "unknown"
	}
	switch {
	case result.DryRun:
		fmt.Fprintf(out, "dry-run: kernel at %s is %s, source %s\n", result.KernelDir, current, result.Provider)
		return nil
	case result.Skipped:
		fmt.Fprintf(out, "kernel already at %s\n", current)
		return nil
	}
	fmt.Fprintf(out, "kernel updated from %s to %s\n", current, result.Version)
	if len(result.Preserved) > 0 {
		fmt.Fprintf(out, "preserved: %s\n", strings.Join(result.Preserved, ", "))
	}
	if result.Backup != "" {
		fmt.Fprintf(out, "backup: %s\n", result.Backup)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", strings.TrimSpace(warning))
	}
	return nil
}
