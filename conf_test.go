/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Tests for conf.go
 */

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func resetConf() {
	Conf = Configuration{
		LogLevel:     LogError | LogInfo,
		ColorConsole: true,
		PollInterval: time.Second,
		DefaultBaud:  9600,
	}
}

func TestConfLoadExplicitPathMissingIsError(t *testing.T) {
	resetConf()
	err := ConfLoad(filepath.Join(t.TempDir(), "missing.conf"))
	require.Error(t, err)
	var be *BridgeError
	require.ErrorAs(t, err, &be)
	require.Equal(t, KindConfig, be.Kind)
}

func TestConfLoadExplicitPathOverridesDefaults(t *testing.T) {
	resetConf()
	path := filepath.Join(t.TempDir(), "bridge.conf")
	body := "log_level = debug\ncolor_console = false\npoll_interval_ms = 250\ndefault_baud = 57600\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	require.NoError(t, ConfLoad(path))
	require.Equal(t, LogAll, Conf.LogLevel)
	require.False(t, Conf.ColorConsole)
	require.Equal(t, 250*time.Millisecond, Conf.PollInterval)
	require.Equal(t, 57600, Conf.DefaultBaud)
}

func TestConfLoadPartialFileOnlyOverridesSetKeys(t *testing.T) {
	resetConf()
	path := filepath.Join(t.TempDir(), "bridge.conf")
	require.NoError(t, os.WriteFile(path, []byte("default_baud = 19200\n"), 0644))

	require.NoError(t, ConfLoad(path))
	require.Equal(t, 19200, Conf.DefaultBaud)
	require.Equal(t, LogError|LogInfo, Conf.LogLevel, "unset keys must keep their default")
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, LogError, parseLogLevel("error"))
	require.Equal(t, LogAll, parseLogLevel("debug"))
	require.Equal(t, LogError|LogInfo, parseLogLevel("info"))
	require.Equal(t, LogError|LogInfo, parseLogLevel("anything-else"))
}
