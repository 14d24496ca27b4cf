package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"webkernel-modules/internal/app"
)

func setConfigDefaults() {
	defaults := app.DefaultSettings()
	viper.SetDefault("app_root", defaults.AppRoot)
	viper.SetDefault("modules_dir", defaults.ModulesDir)
	viper.SetDefault("state_dir", defaults.StateDir)
	viper.SetDefault("kernel_dir", defaults.KernelDir)
	viper.SetDefault("kernel_source", defaults.KernelSource)
	viper.SetDefault("kernel_preserve", defaults.KernelPreserve)
	viper.SetDefault("kernel_required_files", []string{})
	viper.SetDefault("backup_keep", defaults.BackupKeep)
	viper.SetDefault("install_backup", true)
	viper.SetDefault("kernel_backup", true)
	viper.SetDefault("lock_timeout", defaults.LockTimeout)
	viper.SetDefault("lock_stale_after", defaults.LockStaleAfter)
	viper.SetDefault("hook_timeout", defaults.HookTimeout)
	viper.SetDefault("http_timeout", defaults.HTTPTimeout)
	viper.SetDefault("download_timeout", defaults.DownloadTimeout)
	viper.SetDefault("max_redirects", defaults.MaxRedirects)
	viper.SetDefault("github_api", defaults.GitHubAPI)
	viper.SetDefault("registry_api", defaults.RegistryAPI)
	viper.SetDefault("dependency_command", defaults.DependencyCommand)
	viper.SetDefault("log_level", "info")
}

// loadSettings reads the resolved configuration. Only this package talks
// to viper; the app layer receives plain Settings.
func loadSettings() app.Settings {
	return app.Settings{
		AppRoot:             viper.GetString("app_root"),
		ModulesDir:          viper.GetString("modules_dir"),
		StateDir:            viper.GetString("state_dir"),
		KernelDir:           viper.GetString("kernel_dir"),
		KernelSource:        viper.GetString("kernel_source"),
		KernelPreserve:      viper.GetStringSlice("kernel_preserve"),
		KernelRequiredFiles: viper.GetStringSlice("kernel_required_files"),
		BackupKeep:          viper.GetInt("backup_keep"),
		LockTimeout:         viper.GetDuration("lock_timeout"),
		LockStaleAfter:      viper.GetDuration("lock_stale_after"),
		HookTimeout:         viper.GetDuration("hook_timeout"),
		HTTPTimeout:         viper.GetDuration("http_timeout"),
		DownloadTimeout:     viper.GetDuration("download_timeout"),
		MaxRedirects:        viper.GetInt("max_redirects"),
		GitHubAPI:           viper.GetString("github_api"),
		RegistryAPI:         viper.GetString("registry_api"),
		DependencyCommand:   viper.GetStringSlice("dependency_command"),
	}
}

func newAppService(cmd *cobra.Command) app.Service {
	var opts []app.Option
	if prompter := newTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()); prompter != nil {
		opts = append(opts, app.WithPrompter(prompter))
	}
	return app.NewService(loadSettings(), opts...)
}
