package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/server-updater/internal/logger"
)

// TestProvidersCommand lists built-in names without a settings file.
func TestProvidersCommand(t *testing.T) {
	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"providers", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "paper\n")
	require.Contains(t, out.String(), "bungeecord\n")
	require.Contains(t, out.String(), "pufferfish\n")
}

// TestApplyLogLevel rejects unknown levels.
func TestApplyLogLevel(t *testing.T) {
	logLevel = "loud"

	t.Cleanup(func() {
		logLevel = ""
		logger.SetLevel(zapcore.InfoLevel)
	})

	require.Error(t, applyLogLevel())

	logLevel = "debug"
	require.NoError(t, applyLogLevel())
	require.Equal(t, zapcore.DebugLevel, logger.Level())
}

// TestStatusService verifies arguments are normalized the way the daemon names services.
func TestStatusService(t *testing.T) {
	t.Parallel()

	require.Empty(t, statusService(nil))
	require.Equal(t, "paper", statusService([]string{" Paper "}))
	require.Equal(t, "paper/a/server.jar", statusService([]string{"Paper", "./a/server.jar"}))
}
