package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"webkernel-modules/internal/types"
)

type tokenOptions struct {
	Scope string
	Value string
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage stored access tokens",
		Long: "Manage stored access tokens. Targets are owner or owner/repo on a Git host; " +
			"registry tokens use the owner registry:<host>.",
	}
	cmd.AddCommand(newTokenSetCommand())
	cmd.AddCommand(newTokenForgetCommand())
	return cmd
}

func newTokenSetCommand() *cobra.Command {
	opts := tokenOptions{}
	cmd := &cobra.Command{
		Use:   "set <owner[/repo]>",
		Short: "Store an encrypted access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo := splitTokenTarget(args[0])
			scope, err := tokenScope(opts.Scope, repo)
			if err != nil {
				return err
			}
			value := strings.TrimSpace(opts.Value)
			if value == "" {
				if value, err = readTokenValue(cmd, args[0]); err != nil {
					return err
				}
			}
			service := newAppService(cmd)
			if err := service.SaveToken(cmd.Context(), owner, repo, scope, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved for %s (%s)\n", args[0], scope)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "Token scope: repo or owner (defaults from the target)")
	cmd.Flags().StringVar(&opts.Value, "value", "", "Token value; prompted for or read from stdin when empty")
	return cmd
}

func newTokenForgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <owner[/repo]>",
		Short: "Delete a stored access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo := splitTokenTarget(args[0])
			service := newAppService(cmd)
			if err := service.ForgetToken(cmd.Context(), owner, repo); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token forgotten for %s\n", args[0])
			return nil
		},
	}
}

func splitTokenTarget(target string) (string, string) {
	owner, repo, _ := strings.Cut(strings.TrimSpace(target), "/")
	return strings.TrimSpace(owner), strings.TrimSpace(repo)
}

// tokenScope validates --scope. Session tokens make no sense for a command
// that exits right away.
func tokenScope(flag string, repo string) (types.TokenScope, error) {
	if strings.TrimSpace(flag) == "" {
		if repo == "" {
			return types.TokenScopeOwner, nil
		}
		return types.TokenScopeRepo, nil
	}
	scope, ok := types.ParseTokenScope(flag)
	if !ok || scope == types.TokenScopeSession {
		return "", types.NewModuleError("unsupported token scope "+flag+" (use repo or owner)", nil)
	}
	if scope == types.TokenScopeRepo && repo == "" {
		return "", types.NewModuleError("repo scope needs an owner/repo target", nil)
	}
	return scope, nil
}

func readTokenValue(cmd *cobra.Command, target string) (string, error) {
	if prompter := newTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()); prompter != nil {
		value := ""
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Access token for " + target).
				EchoMode(huh.EchoModePassword).
				Value(&value),
		)).WithInput(cmd.InOrStdin()).WithOutput(cmd.ErrOrStderr()).RunWithContext(cmd.Context())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return "", types.NewModuleError("no token given: pass --value or pipe it on stdin", nil)
	}
	return strings.TrimSpace(line), nil
}
