package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	logMu           sync.Mutex
	logOutput       io.Writer = os.Stderr
	currentLogLevel           = LevelInfo
	useColors                 = true
)

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	currentLogLevel = level
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		currentLogLevel = LevelDebug
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		currentLogLevel = LevelError
	}
}

// IsVerbose reports whether debug messages are shown
func IsVerbose() bool {
	return currentLogLevel <= LevelDebug
}

// IsQuiet reports whether only errors are shown
func IsQuiet() bool {
	return currentLogLevel >= LevelError
}

// SetColors enables or disables colored output
func SetColors(enabled bool) {
	useColors = enabled
}

// SetLogOutput redirects log output. Tests use this to capture messages.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logOutput = w
}

func colorize(color string, text string) string {
	if !useColors {
		return text
	}
	reset := "\033[0m"
	return color + text + reset
}

func write(level LogLevel, color, label, format string, args ...interface{}) {
	if currentLogLevel > level {
		return
	}
	msg := fmt.Sprintf(format, args...)

	logMu.Lock()
	defer logMu.Unlock()
	fmt.Fprintf(logOutput, "%s %s %s\n", colorize(color, timestamp()), label, msg)
}

// DebugLog logs debug messages
func DebugLog(format string, args ...interface{}) {
	write(LevelDebug, "\033[90m", "[DEBUG]", format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...interface{}) {
	write(LevelInfo, "\033[36m", "[INFO] ", format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...interface{}) {
	write(LevelWarn, "\033[33m", "[WARN] ", format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...interface{}) {
	write(LevelError, "\033[31m", "[ERROR]", format, args...)
}

// SuccessLog logs success messages (always shown unless quiet)
func SuccessLog(format string, args ...interface{}) {
	write(LevelInfo, "\033[32m", "[OK]   ", format, args...)
}

// DryRunLog logs an operation that was skipped because of --dry-run
func DryRunLog(operation, detail string) {
	InfoLog("[DRY-RUN] %s: %s", operation, detail)
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}
