package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"webkernel-modules/internal/types"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command) error {
	service := newAppService(cmd)
	result := service.ListInstalledModules(ctx)
	if !result.Success {
		return operationError(types.ErrorKindModule, result.Error)
	}
	renderModules(cmd.OutOrStdout(), result.Modules)
	return nil
}

func renderModules(w io.Writer, modules []types.InstalledModule) {
	if len(modules) == 0 {
		fmt.Fprintln(w, "no modules installed")
		return
	}
	rows := make([][]string, 0, len(modules))
	for _, module := range modules {
		rows = append(rows, moduleRow(module))
	}
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("MODULE", "NAME", "VERSION", "SOURCE", "NAMESPACE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	fmt.Fprintln(w, t.Render())
}

// moduleRow prefers the ledger version, which is the installed release tag,
// over the version written in the declaration.
func moduleRow(module types.InstalledModule) []string {
	version, source, namespace := "-", "-", "-"
	if module.Metadata != nil {
		if module.Metadata.Version != "" {
			version = module.Metadata.Version
		}
		if module.Metadata.Namespace != "" {
			namespace = module.Metadata.Namespace
		}
	}
	if module.Ledger != nil {
		version = module.Ledger.Version
		source = module.Ledger.Provider + ":" + module.Ledger.Identifier
	}
	return []string{module.Vendor + "/" + module.Name, module.DisplayName(), version, source, namespace}
}
