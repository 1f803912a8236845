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

	for _, name := range []string{"serve", "import", "status"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "roadwatch", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestImportCommand_Subcommands(t *testing.T) {
	subs := make(map[string]bool)
	for _, c := range importCmd.Commands() {
		subs[c.Name()] = true
	}
	for _, name := range []string{"cameras", "speed-limits", "zones", "hazard-roads", "status"} {
		assert.True(t, subs[name], "expected import subcommand %q not found", name)
	}

	input := importCamerasCmd.Flags().Lookup("input")
	require.NotNil(t, input, "import cameras should have --input flag")

	kind := importZonesCmd.Flags().Lookup("kind")
	require.NotNil(t, kind, "import zones should have --kind flag")
	assert.Equal(t, "school", kind.DefValue)

	limit := importStatusCmd.Flags().Lookup("limit")
	require.NotNil(t, limit, "import status should have --limit flag")
	assert.Equal(t, "10", limit.DefValue)
}
