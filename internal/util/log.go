package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// Component is a logger that tags every line with the name of the part of
// the adapter that wrote it, e.g. "tracker: connected (peer 2)".
type Component string

func (c Component) Debug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(string(c) + ": " + fmt.Sprintf(format, args...))
}

func (c Component) Info(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(string(c) + ": " + fmt.Sprintf(format, args...))
}

func (c Component) Warn(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(string(c) + ": " + fmt.Sprintf(format, args...))
}

func (c Component) Error(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(string(c) + ": " + fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
