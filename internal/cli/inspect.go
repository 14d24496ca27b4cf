package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <module-dir>",
		Short: "Show the declaration of a module directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := newAppService(cmd)
			declaration, err := service.InspectModule(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "declaration: %s\n", declaration.Path)
			fmt.Fprintf(out, "module: %s extends %s\n", declaration.ClassName, declaration.Extends)
			meta := declaration.Metadata
			if meta == nil {
				fmt.Fprintln(out, "metadata: none")
				return nil
			}
			fmt.Fprintf(out, "namespace: %s\n", meta.Namespace)
			fmt.Fprintf(out, "install path: %s\n", meta.InstallPath)
			fmt.Fprintf(out, "name: %s\nversion: %s\n", meta.Name, meta.Version)
			if meta.Description != "" {
				fmt.Fprintf(out, "description: %s\n", meta.Description)
			}
			for _, key := range sortedKeys(meta.SupportElements) {
				fmt.Fprintf(out, "support %s: %s\n", key, meta.SupportElements[key])
			}
			for _, key := range sortedKeys(meta.Extra) {
				fmt.Fprintf(out, "%s: %s\n", key, meta.Extra[key])
			}
			return nil
		},
	}
	return cmd
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
