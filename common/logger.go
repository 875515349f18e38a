package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger is the leveled logging interface shared by every engine subsystem.
// Components accept a Logger through their builder options and fall back to
// NewNopLogger when none is given.
type Logger interface {
	// DebugEnabled reports whether Debugf output is emitted.
	//
	// Returns:
	//   - bool: true if debug output is enabled
	DebugEnabled() bool

	// SetDebug enables or disables Debugf output.
	//
	// Parameters:
	//   - enabled: true to emit debug output
	SetDebug(enabled bool)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger writes leveled messages through the standard log package.
// Debug and info go to the out writer, warnings and errors to the err writer.
type DefaultLogger struct {
	mu     sync.Mutex
	debug  bool
	prefix string
	out    *log.Logger
	err    *log.Logger
}

var _ Logger = &DefaultLogger{}

// NewDefaultLogger creates a DefaultLogger writing to stdout and stderr.
//
// Parameters:
//   - prefix: tag printed in brackets before the level, e.g. "Deferred"
//   - debug: whether Debugf output is enabled initially
//
// Returns:
//   - *DefaultLogger: the logger
func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return NewWriterLogger(prefix, debug, os.Stdout, os.Stderr)
}

// NewWriterLogger creates a DefaultLogger writing to the given writers. Tests use
// it to capture output.
//
// Parameters:
//   - prefix: tag printed in brackets before the level
//   - debug: whether Debugf output is enabled initially
//   - out: destination for debug and info messages
//   - errOut: destination for warnings and errors
//
// Returns:
//   - *DefaultLogger: the logger
func NewWriterLogger(prefix string, debug bool, out, errOut io.Writer) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		debug:  debug,
		prefix: prefix,
		out:    log.New(out, "", flags),
		err:    log.New(errOut, "", flags),
	}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

func (l *DefaultLogger) prefixf(level string, format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s: %s", l.prefix, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.out.Print(l.prefixf("DEBUG", format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Print(l.prefixf("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.err.Print(l.prefixf("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Print(l.prefixf("ERROR", format, args...))
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything.
//
// Returns:
//   - Logger: the no-op logger
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) DebugEnabled() bool                { return false }
func (nopLogger) SetDebug(enabled bool)             {}
func (nopLogger) Debugf(format string, args ...any) {}
func (nopLogger) Infof(format string, args ...any)  {}
func (nopLogger) Warnf(format string, args ...any)  {}
func (nopLogger) Errorf(format string, args ...any) {}
