package utils

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	consoleOnce   sync.Once
	consoleLogger *log.Logger
)

// Console returns the process-wide logger for user-facing lifecycle lines.
// Verbose mode lowers its level to debug.
func Console() *log.Logger {
	consoleOnce.Do(func() {
		consoleLogger = NewConsole(os.Stderr)
	})
	if IsVerbose() {
		consoleLogger.SetLevel(log.DebugLevel)
	}
	return consoleLogger
}

// NewConsole builds a console logger writing to w.
func NewConsole(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          "HFetch",
		Level:           log.InfoLevel,
	})
}
