// Package logger provides a small leveled logger on top of the standard
// log package.
//
// EDUCATIONAL NOTES:
// ------------------
// Each level owns its own *log.Logger with a prefix. Changing the level
// does not filter messages one by one; it swaps the output of the
// disabled loggers to io.Discard. A disabled level therefore costs one
// formatting call and nothing else.
//
// Loggers are values passed to constructors (table.WithLogger,
// workspace.New). There is no package-level default that code writes to
// behind the caller's back.

package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// Level selects which messages are written.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{"none", "error", "info", "debug"}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel resolves a level name, ignoring case.
func ParseLevel(name string) (Level, error) {
	for i, n := range levelNames {
		if strings.EqualFold(n, name) {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("unknown log level %q", name)
}

// Logger writes errors to one writer and info and debug messages to
// another.
type Logger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	errOut io.Writer
	info   *log.Logger
	errl   *log.Logger
	debug  *log.Logger
}

// New creates a logger. Info and debug messages go to out, errors go to
// errOut.
func New(out, errOut io.Writer, level Level) *Logger {
	flags := log.LstdFlags | log.Lmsgprefix
	l := &Logger{
		out:    out,
		errOut: errOut,
		info:   log.New(io.Discard, "INFO: ", flags),
		errl:   log.New(io.Discard, "ERROR: ", flags),
		debug:  log.New(io.Discard, "DEBUG: ", flags),
	}
	l.SetLevel(level)
	return l
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return New(io.Discard, io.Discard, LevelNone)
}

// SetLevel changes the level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level

	l.errl.SetOutput(io.Discard)
	l.info.SetOutput(io.Discard)
	l.debug.SetOutput(io.Discard)
	if level >= LevelError {
		l.errl.SetOutput(l.errOut)
	}
	if level >= LevelInfo {
		l.info.SetOutput(l.out)
	}
	if level >= LevelDebug {
		l.debug.SetOutput(l.out)
	}
}

// Level returns the current level.
func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.errl.Printf(format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.info.Printf(format, args...)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.debug.Printf(format, args...)
}

// Std returns a standard logger that writes at info level, for libraries
// that expect a *log.Logger.
func (l *Logger) Std() *log.Logger {
	return l.info
}
