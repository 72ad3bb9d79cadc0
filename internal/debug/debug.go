// Package debug provides BD_DEBUG-gated diagnostic logging.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	enabled = os.Getenv("BD_DEBUG") != ""
	out     io.Writer = os.Stderr
	logFile *lumberjack.Logger
)

// Enabled reports whether debug output is on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// SetEnabled turns debug output on or off (used by --verbose and tests).
func SetEnabled(on bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = on
}

// SetOutput redirects debug output. nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeLogFileLocked()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

// SetLogFile sends debug output to a size-rotated file and enables it.
func SetLogFile(path string, maxSizeMB int) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	mu.Lock()
	defer mu.Unlock()
	closeLogFileLocked()
	logFile = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}
	out = logFile
	enabled = true
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := closeLogFileLocked()
	out = os.Stderr
	return err
}

func closeLogFileLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Logf writes a debug message when debugging is enabled.
func Logf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	fmt.Fprintf(out, format, args...)
}
