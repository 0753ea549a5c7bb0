package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/pipeline"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"run", "fixjson", "cite", "seed", "serve", "export", "runs", "jobs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "outreach-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_LongNamesRealSteps(t *testing.T) {
	for name := range pipeline.DefaultJobs() {
		assert.Contains(t, rootCmd.Long, "run "+name, "built-in job %q missing from help", name)
	}
	for _, c := range rootCmd.Commands() {
		switch c.Name() {
		case "fixjson", "cite", "seed", "serve", "export", "runs":
			assert.Contains(t, rootCmd.Long, c.Name())
		}
	}
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"once", "offline", "skip", "limit", "input", "output", "charset"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s flag", name)
	}
	assert.Equal(t, "false", runCmd.Flags().Lookup("once").DefValue)
	assert.Equal(t, "0", runCmd.Flags().Lookup("limit").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "csv", flag.DefValue)
	require.NotNil(t, exportCmd.Flags().Lookup("list"))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}
}
