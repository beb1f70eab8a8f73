package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu      sync.Mutex
	file    *os.File
	logger  = slog.New(slog.DiscardHandler)
	enabled bool
)

// Init routes logging to w at the given level. Used by the CLI to log to
// stderr; the router uses Enable.
func Init(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	setOutput(w, level)
}

func setOutput(w io.Writer, level slog.Level) {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	})
	logger = slog.New(h)
	enabled = true
}

// DefaultPath is ~/.config/go-midirouter/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "go-midirouter", "debug.log")
}

// Enable starts debug logging to path, truncating it
func Enable(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		return nil
	}
	if path == "" {
		path = DefaultPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	file = f
	setOutput(f, slog.LevelDebug)
	logger.Info("=== Debug logging started ===", "cat", "debug")
	return nil
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	logger = slog.New(slog.DiscardHandler)
	enabled = false
}

// Enabled reports whether any output is configured
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Logger returns the current structured logger
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Log writes a formatted debug message under a category
func Log(category, format string, args ...any) {
	Logger().Debug(fmt.Sprintf(format, args...), "cat", category)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
