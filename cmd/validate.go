package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sight/internal/config"
	"sight/internal/service"
	"sight/internal/services"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <app.yaml>",
		Short: "Check an application definition without running it",
		Long: `Parses the application definition, reports every structural problem
and checks that each service type is provided by this build of sight.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.LoadAppDefinition(args[0])
			if err != nil {
				return err
			}
			if err := checkTypes(def, services.NewFactory()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Application %s is valid: %d services, %d objects\n",
				def.Name, len(def.Services), len(def.Objects))
			return nil
		},
	}
}

func checkTypes(def *config.AppDefinition, factory *service.Factory) error {
	for _, sd := range def.Services {
		if !factory.Has(service.Type(sd.Type)) {
			return fmt.Errorf("service %s: %w: %s", sd.ID, service.ErrFactoryNotFound, sd.Type)
		}
	}
	return nil
}
