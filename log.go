/* ch34xbridge - USB-serial-to-PTY bridge for the WCH CH34x chip family
 *
 * Logging
 */

package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// LogLevel is a bitmask; levels combine (e.g. LogError|LogInfo).
type LogLevel int

const (
	LogError LogLevel = 1 << iota
	LogInfo
	LogDebug
)

// LogAll enables every level.
const LogAll = LogError | LogInfo | LogDebug

func parseLogLevel(s string) LogLevel {
	switch s {
	case "error":
		return LogError
	case "debug":
		return LogAll
	default:
		return LogError | LogInfo
	}
}

// Logger writes one line per call, level-gated, optionally colorized
// when writing to a terminal.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level LogLevel
	color bool
}

func NewLogger(out io.Writer, level LogLevel) *Logger {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	return &Logger{out: out, level: level, color: color}
}

func (l *Logger) logf(level LogLevel, prefix byte, format string, args ...interface{}) {
	if l.level&level == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s %c %s\n", time.Now().Format("15:04:05.000"), prefix, fmt.Sprintf(format, args...))
	if l.color {
		line = colorize(level, line)
	}
	l.out.Write([]byte(line))
}

func (l *Logger) Error(prefix byte, format string, args ...interface{}) {
	l.logf(LogError, prefix, format, args...)
}

func (l *Logger) Info(prefix byte, format string, args ...interface{}) {
	l.logf(LogInfo, prefix, format, args...)
}

func (l *Logger) Debug(prefix byte, format string, args ...interface{}) {
	l.logf(LogDebug, prefix, format, args...)
}

func colorize(level LogLevel, s string) string {
	var col string
	switch {
	case level&LogError != 0:
		col = "\033[31;1m" // Red
	case level&LogInfo != 0:
		col = "\033[32;1m" // Green
	default:
		col = "\033[37m" // Gray
	}
	return col + s + "\033[0m"
}
