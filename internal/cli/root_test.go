package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "eamsync", cmd.Use)
	assert.Contains(t, cmd.Long, "Reconciles", "Long should say what the tool does")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"sync", "cleanup", "status", "taxonomy", "login"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestTaxonomyPullPresence(t *testing.T) {
	cmd := NewRootCommand()
	subCmd, _, err := cmd.Find([]string{"taxonomy", "pull"})
	require.NoError(t, err)
	assert.Equal(t, "pull", subCmd.Name())

	dictFlag := subCmd.Flags().Lookup("dictionary")
	require.NotNil(t, dictFlag)
	assert.Equal(t, "", dictFlag.DefValue)
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "eamsync.yaml", configFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	logFileFlag := cmd.PersistentFlags().Lookup("log-file")
	require.NotNil(t, logFileFlag)
	assert.Equal(t, "", logFileFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadConfig_DefaultPathOptional(t *testing.T) {
	opts := &RootOptions{ConfigFile: filepath.Join(t.TempDir(), "eamsync.yaml")}
	cmd := NewStatusCommand(opts)

	// The default config file does not exist; the command falls back to
	// environment and defaults instead of failing.
	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, ".eamsync", cfg.StateDir)
}
