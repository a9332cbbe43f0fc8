package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hf_downloader/internal/config"
)

const (
	logPrefix = "hfetch-"
	logSuffix = ".log"
)

var (
	verbose atomic.Bool
	logsDir atomic.Value // string

	debugMu   sync.Mutex
	debugFile *os.File
)

// ConfigureDebug sets where the verbose log file is created. A file already
// open in another directory is closed so the next line starts a new one.
func ConfigureDebug(dir string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	if prev, _ := logsDir.Load().(string); prev != dir && debugFile != nil {
		_ = debugFile.Close()
		debugFile = nil
	}
	logsDir.Store(dir)
}

func SetVerbose(enabled bool) {
	verbose.Store(enabled)
}

func IsVerbose() bool {
	return verbose.Load()
}

func currentLogsDir() string {
	if dir, ok := logsDir.Load().(string); ok && dir != "" {
		return dir
	}
	return config.GetLogsDir()
}

// Debug writes a timestamped line to the run's log file when verbose mode is
// on. The file hfetch-YYYYMMDD-HHMMSS.log is created on first use.
func Debug(format string, args ...any) {
	if !IsVerbose() {
		return
	}
	line := fmt.Sprintf(format, args...)

	debugMu.Lock()
	defer debugMu.Unlock()
	if debugFile == nil {
		dir := currentLogsDir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
		name := logPrefix + time.Now().Format("20060102-150405") + logSuffix
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		debugFile = f
	}
	fmt.Fprintf(debugFile, "[%s] %s\n", time.Now().Format("2006-01-02 15:04:05.000"), line)
}

// CloseDebug closes the log file, if one is open.
func CloseDebug() {
	debugMu.Lock()
	defer debugMu.Unlock()
	if debugFile != nil {
		_ = debugFile.Close()
		debugFile = nil
	}
}

// CleanupLogs keeps the newest retentionCount log files. A negative count
// keeps everything.
func CleanupLogs(retentionCount int) {
	if retentionCount < 0 {
		return
	}
	dir, _ := logsDir.Load().(string)
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var logs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), logPrefix) && strings.HasSuffix(e.Name(), logSuffix) {
			logs = append(logs, e.Name())
		}
	}
	if len(logs) <= retentionCount {
		return
	}
	// Names embed the timestamp, so reverse lexical order is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(logs)))
	for _, name := range logs[retentionCount:] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
