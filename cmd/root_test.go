package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "sight", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.Contains(t, rootCmd.Long, "drives every service")
	assert.True(t, rootCmd.SilenceUsage)
}

func TestVersionTemplate(t *testing.T) {
	cmd := &cobra.Command{Use: "sight", Version: "1.0.0"}
	cmd.SetVersionTemplate(versionTemplate)

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "sight version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	registered := map[string]*cobra.Command{}
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = cmd
	}

	for _, name := range []string{"run", "validate", "describe", "types", "serve", "version", "self-update"} {
		cmd, ok := registered[name]
		if assert.True(t, ok, "subcommand %s", name) {
			assert.NotEmpty(t, cmd.Short, name)
		}
	}

	// Commands taking a definition refuse to run without one.
	for _, name := range []string{"run", "validate", "describe", "serve"} {
		assert.Error(t, registered[name].Args(registered[name], nil), name)
	}
}
