package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sight/internal/services"
)

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the service types built into sight",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, typ := range services.NewFactory().Types() {
				fmt.Fprintln(cmd.OutOrStdout(), typ)
			}
		},
	}
}
