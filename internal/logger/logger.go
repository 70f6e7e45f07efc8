// Package logger provides leveled console logging with an optional
// append-only run log file. Console output is suppressed while a
// progress bar owns the terminal; the file always gets everything.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger is safe for concurrent use by the upload workers.
type Logger struct {
	Verbose bool

	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	fileLog *os.File
	hasBar  bool
}

func New(verbose bool) *Logger {
	return &Logger{
		Verbose: verbose,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
}

// SetFileLog mirrors all output, including suppressed debug lines, to
// the given file.
func (l *Logger) SetFileLog(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	l.fileLog = f
	l.mu.Unlock()
	return nil
}

// SetProgressBar marks the terminal as owned by a progress bar. While
// set, non-verbose console output is held back so the bar line is not
// broken up.
func (l *Logger) SetProgressBar(active bool) {
	l.mu.Lock()
	l.hasBar = active
	l.mu.Unlock()
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog == nil {
		return nil
	}
	err := l.fileLog.Close()
	l.fileLog = nil
	return err
}

// Info prints without a level prefix; it is the normal user-facing output.
func (l *Logger) Info(format string, args ...any) {
	l.emit(l.out, "", true, format, args...)
}

// Debug prints only in verbose mode but is always written to the file log.
func (l *Logger) Debug(format string, args ...any) {
	l.emit(l.out, "DEBUG", l.Verbose, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.emit(l.out, "WARN", true, format, args...)
}

// Error always reaches the terminal, progress bar or not.
func (l *Logger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf("[ERROR] "+format+"\n", args...)
	fmt.Fprint(l.errOut, msg)
	l.toFile(msg)
}

func (l *Logger) emit(w io.Writer, level string, console bool, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := ""
	if level != "" {
		prefix = "[" + level + "] "
	}
	msg := fmt.Sprintf(prefix+format+"\n", args...)

	if console && (l.Verbose || !l.hasBar) {
		fmt.Fprint(w, msg)
	}
	l.toFile(msg)
}

// toFile prepends a timestamp so run logs can be correlated with the
// catalog's generated_at. Caller holds mu.
func (l *Logger) toFile(msg string) {
	if l.fileLog == nil {
		return
	}
	l.fileLog.WriteString(time.Now().Format("2006-01-02 15:04:05") + " " + msg)
}
