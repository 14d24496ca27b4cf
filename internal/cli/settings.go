package cli

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"webkernel-modules/internal/app"
	"webkernel-modules/internal/types"
)

type settingKind int

const (
	settingString settingKind = iota
	settingList
	settingInt
	settingBool
	settingDuration
)

// storedSettings lists the keys the state store may hold. app_root and
// state_dir locate the store itself; log_level is applied before it is read.
var storedSettings = map[string]settingKind{
	"modules_dir":           settingString,
	"kernel_dir":            settingString,
	"kernel_source":         settingString,
	"kernel_preserve":       settingList,
	"kernel_required_files": settingList,
	"backup_keep":           settingInt,
	"install_backup":        settingBool,
	"kernel_backup":         settingBool,
	"lock_timeout":          settingDuration,
	"lock_stale_after":      settingDuration,
	"hook_timeout":          settingDuration,
	"http_timeout":          settingDuration,
	"download_timeout":      settingDuration,
	"max_redirects":         settingInt,
	"github_api":            settingString,
	"registry_api":          settingString,
	"dependency_command":    settingList,
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings stored under the state directory",
		Long: "Manage settings stored under the state directory. Stored settings rank below " +
			"flags, environment variables and the config file. List values are space separated.",
	}
	cmd.AddCommand(newConfigGetCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigListCommand())
	return cmd
}

func newConfigGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			kind, ok := storedSettings[key]
			if !ok {
				return unknownSetting(key)
			}
			fmt.Fprintln(cmd.OutOrStdout(), effectiveSetting(key, kind))
			return nil
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			value, err := normalizeSetting(key, args[1])
			if err != nil {
				return err
			}
			service := newAppService(cmd)
			if err := service.SetSetting(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}

func newConfigListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stored, err := newAppService(cmd).StoredSettings()
			if err != nil {
				return err
			}
			if len(stored) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stored settings")
				return nil
			}
			keys := make([]string, 0, len(stored))
			for key := range stored {
				keys = append(keys, key)
			}
			slices.Sort(keys)
			for _, key := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, stored[key])
			}
			return nil
		},
	}
}

func unknownSetting(key string) error {
	known := make([]string, 0, len(storedSettings))
	for name := range storedSettings {
		known = append(known, name)
	}
	slices.Sort(known)
	return types.NewModuleError(
		fmt.Sprintf("unknown setting %q (known: %s)", key, strings.Join(known, ", ")), nil)
}

// normalizeSetting checks value against the type of key and returns the
// form that is stored.
func normalizeSetting(key string, value string) (string, error) {
	kind, ok := storedSettings[key]
	if !ok {
		return "", unknownSetting(key)
	}
	value = strings.TrimSpace(value)
	invalid := func(err error) error {
		return types.NewModuleError(fmt.Sprintf("invalid value for %s: %s", key, value), err)
	}
	switch kind {
	case settingList:
		return strings.Join(strings.Fields(value), " "), nil
	case settingInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", invalid(err)
		}
		if n < 0 {
			return "", invalid(nil)
		}
		return strconv.Itoa(n), nil
	case settingBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", invalid(err)
		}
		return strconv.FormatBool(b), nil
	case settingDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return "", invalid(err)
		}
		if d <= 0 {
			return "", invalid(nil)
		}
		return d.String(), nil
	default:
		if value == "" {
			return "", invalid(nil)
		}
		return value, nil
	}
}

func effectiveSetting(key string, kind settingKind) string {
	if kind == settingList {
		return strings.Join(viper.GetStringSlice(key), " ")
	}
	return viper.GetString(key)
}

// applyStoredSettings layers stored settings over the built-in defaults.
// A store that cannot be read only costs the stored values.
func applyStoredSettings(ctx context.Context) {
	stored, err := app.NewService(loadSettings()).StoredSettings()
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("stored settings ignored")
		return
	}
	for key, value := range stored {
		if _, ok := storedSettings[key]; !ok {
			log.Ctx(ctx).Debug().Str("key", key).Msg("unknown stored setting ignored")
			continue
		}
		viper.SetDefault(key, value)
	}
}
