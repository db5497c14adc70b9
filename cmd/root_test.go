//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"match", "zones", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "zonematch", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestMatchCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "output", "persist", "skip", "workers"} {
		assert.NotNil(t, matchCmd.Flags().Lookup(name), "match should have --%s flag", name)
	}
	assert.Equal(t, "-", matchCmd.Flags().Lookup("output").DefValue)
}

func TestZonesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range zonesCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"inspect", "locate", "publish", "export"} {
		assert.True(t, names[name], "zones should have subcommand %q", name)
	}

	flag := zonesInspectCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)

	for _, name := range []string{"layer", "table", "code-column", "geom-column"} {
		assert.NotNil(t, zonesPublishCmd.Flags().Lookup(name), "zones publish should have --%s flag", name)
	}
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}
