package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"webkernel-modules/internal/app"
)

type installOptions struct {
	Version    string
	Latest     bool
	Prerelease bool
	Token      string
	Backup     bool
	NoHooks    bool
	NoValidate bool
	DryRun     bool
}

func newInstallCommand() *cobra.Command {
	opts := installOptions{}
	cmd := &cobra.Command{
		Use:   "install <identifier>",
		Short: "Install or upgrade a module from a Git host or the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), cmd, args[0], opts)
		},
	}
	addReleaseFlags(cmd, &opts.Version, &opts.Latest, &opts.Prerelease, &opts.Token)
	cmd.Flags().BoolVar(&opts.Backup, "backup", true, "Back up the installed module before replacing it")
	cmd.Flags().BoolVar(&opts.NoHooks, "no-hooks", false, "Skip install and post-install hooks")
	cmd.Flags().BoolVar(&opts.NoValidate, "no-validate", false, "Skip module validation")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Resolve the provider only")
	_ = viper.BindPFlag("install_backup", cmd.Flags().Lookup("backup"))
	return cmd
}

// addReleaseFlags registers the release selection flags shared by install
// and update-kernel.
func addReleaseFlags(cmd *cobra.Command, version *string, latest *bool, prerelease *bool, token *string) {
	cmd.Flags().StringVar(version, "version", "", "Exact release tag to install")
	cmd.Flags().BoolVar(latest, "latest", false, "Install the newest release")
	cmd.Flags().BoolVar(prerelease, "prerelease", false, "Consider prereleases when picking the newest release")
	cmd.Flags().StringVar(token, "token", "", "Access token for this run only")
	cmd.MarkFlagsMutuallyExclusive("version", "latest")
}

func runInstall(ctx context.Context, cmd *cobra.Command, identifier string, opts installOptions) error {
	service := newAppService(cmd)
	result := service.InstallModule(ctx, app.InstallRequest{
		Identifier:         identifier,
		Version:            opts.Version,
		IncludePrereleases: opts.Prerelease,
		Token:              opts.Token,
		CreateBackup:       resolveBool(cmd, opts.Backup, "install_backup", "backup"),
		RunHooks:           !opts.NoHooks,
		Validate:           !opts.NoValidate,
		DryRun:             opts.DryRun,
	})
	if !result.Success {
		return operationError(result.ErrorKind, result.Error)
	}
	out := cmd.OutOrStdout()
	if result.DryRun {
		fmt.Fprintf(out, "dry-run: %s would be installed through %s\n", result.Identifier, result.Provider)
		return nil
	}
	fmt.Fprintf(out, "installed %s %s into %s\n", result.Identifier, result.Version, result.InstallPath)
	if result.Backup != "" {
		fmt.Fprintf(out, "backup: %s\n", result.Backup)
	}
	if !result.DependenciesRegenerated {
		fmt.Fprintln(out, "dependencies were not regenerated")
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", strings.TrimSpace(warning))
	}
	return nil
}
