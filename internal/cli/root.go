package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"webkernel-modules/internal/types"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "WEBKERNEL_MODULES"

type RootConfig struct {
	ConfigFile string
	LogLevel   string
	AppRoot    string
}

func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the command tree with args and returns the process exit
// code. Failures are reported on stderr as a single "error: " line.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		reportError(stderr, err)
		return exitCodeForError(err)
	}
	return 0
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "webkernel-modules",
		Short:         "Install and update WebKernel modules and the kernel",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), viper.GetString("log_level"))
			cmd.SetContext(log.Logger.WithContext(cmd.Context()))
			applyStoredSettings(cmd.Context())
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(err.Error()).
			WithCause(err)
	})
	cmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&cfg.AppRoot, "app-root", ".", "Application root directory")
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("app_root", cmd.PersistentFlags().Lookup("app-root"))

	cmd.AddCommand(newInstallCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newUpdateKernelCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newInspectCommand())
	cmd.AddCommand(newBackupCommand())
	cmd.AddCommand(newLockCommand())
	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newConfigCommand())
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	setConfigDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("webkernel-modules")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/webkernel-modules")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse config file").
			WithCause(err)
	}
	return nil
}

// setupLogging writes console logs to w so stdout stays free for command
// output.
func setupLogging(w io.Writer, level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
	zerolog.DefaultContextLogger = &log.Logger
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %s\n", errorMessage(err))
}

// exitCodeForError maps every handled failure to 1. Invalid invocations
// exit with 2.
func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	if types.KindOf(err) != "" {
		return 1
	}
	if errbuilder.CodeOf(err) == errbuilder.CodeInvalidArgument {
		return 2
	}
	return 1
}

// errorMessage renders err on a single line.
func errorMessage(err error) string {
	message := err.Error()
	var lifecycle *types.Error
	if !errors.As(err, &lifecycle) {
		var builder *errbuilder.ErrBuilder
		if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
			message = builder.Msg
		}
	}
	return strings.Join(strings.Fields(message), " ")
}

// operationError turns a failed result record into the command's error.
func operationError(kind types.ErrorKind, message string) error {
	return types.NewError(kind, message, nil)
}
