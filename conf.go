/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Program configuration
 */

package main

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

// ConfFileName is the bridge's configuration file name, searched for
// in /etc and next to the executable when no --config path is given.
const ConfFileName = "ch34xbridge.conf"

// PathConfDir is where a system-wide configuration file is expected.
const PathConfDir = "/etc"

// Configuration is the process-wide configuration loaded once at
// startup.
type Configuration struct {
	LogLevel     LogLevel
	ColorConsole bool
	PollInterval time.Duration
	DefaultBaud  int
}

// Conf is the global configuration instance.
var Conf = Configuration{
	LogLevel:     LogError | LogInfo,
	ColorConsole: true,
	PollInterval: time.Second,
	DefaultBaud:  9600,
}

// ConfLoad loads the configuration. If explicitPath is non-empty, only
// that file is tried and a missing file is an error; otherwise
// /etc/ch34xbridge.conf and an executable-relative ch34xbridge.conf are
// tried in order, each silently skipped if absent.
func ConfLoad(explicitPath string) error {
	if explicitPath != "" {
		return confLoadFile(explicitPath, true)
	}

	candidates := []string{filepath.Join(PathConfDir, ConfFileName)}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ConfFileName))
	}

	for _, path := range candidates {
		if err := confLoadFile(path, false); err != nil {
			return err
		}
	}
	return nil
}

func confLoadFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return newErr(KindConfig, "conf", err)
	}

	f, err := ini.Load(path)
	if err != nil {
		return newErr(KindConfig, "conf", err)
	}

	sec := f.Section("")
	if sec.HasKey("log_level") {
		Conf.LogLevel = parseLogLevel(sec.Key("log_level").String())
	}
	if sec.HasKey("color_console") {
		Conf.ColorConsole = sec.Key("color_console").MustBool(Conf.ColorConsole)
	}
	if sec.HasKey("poll_interval_ms") {
		ms := sec.Key("poll_interval_ms").MustInt(int(Conf.PollInterval / time.Millisecond))
		Conf.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if sec.HasKey("default_baud") {
		Conf.DefaultBaud = sec.Key("default_baud").MustInt(Conf.DefaultBaud)
	}

	return nil
}
