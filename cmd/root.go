package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const versionTemplate = `{{printf "sight version %s\n" .Version}}`

var rootCmd = &cobra.Command{
	Use:   "sight",
	Short: "Run applications assembled from Sight services",
	Long: `sight builds an application from a YAML definition of services, data
objects and connections, drives every service through its lifecycle and
keeps the object bindings in sync while the application runs.

Process settings are read from ~/.config/sight/config.yaml and
./.sight/config.yaml, the latter taking precedence.`,
	// Errors from RunE are reported without the usage text.
	SilenceUsage: true,
}

// SetVersion records the build version shown by --version and self-update.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	rootCmd.SetVersionTemplate(versionTemplate)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newDescribeCmd(),
		newTypesCmd(),
		newServeCmd(),
		newVersionCmd(),
		newSelfUpdateCmd(),
	)
}
