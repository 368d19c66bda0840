// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the leveled logger shared by cubestore commands,
// fragment stores and importers.
package logger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Logger represents an interface for a shared logger.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Panicf(format string, v ...interface{})
	// WithPrefix returns a Logger writing to the same destination with
	// prefix added after the level of every line.
	WithPrefix(prefix string) Logger
}

const (
	LevelPanic = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelPrefixes = [...]string{"PANIC: ", "ERROR: ", "WARN:  ", "INFO:  ", "DEBUG: "}

// timeFormat is UTC with constant width and microsecond resolution.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// NopLogger represents a Logger that doesn't do anything.
var NopLogger Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Printf(format string, v ...interface{}) {}
func (nopLogger) Debugf(format string, v ...interface{}) {}
func (nopLogger) Infof(format string, v ...interface{})  {}
func (nopLogger) Warnf(format string, v ...interface{})  {}
func (nopLogger) Errorf(format string, v ...interface{}) {}
func (nopLogger) Panicf(format string, v ...interface{}) {}
func (n nopLogger) WithPrefix(string) Logger             { return n }

// output is a destination shared by a logger and its prefixed children.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

// streamLogger writes one timestamped line per message at or below its
// verbosity.
type streamLogger struct {
	out       *output
	verbosity int
	prefix    string
}

// NewLogger returns a logger writing info level and above to w, and debug
// messages too when verbose is set.
func NewLogger(w io.Writer, verbose bool) Logger {
	verbosity := LevelInfo
	if verbose {
		verbosity = LevelDebug
	}
	return &streamLogger{out: &output{w: w}, verbosity: verbosity}
}

func (s *streamLogger) logf(level int, format string, v ...interface{}) {
	if level > s.verbosity {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if n := len(msg); n == 0 || msg[n-1] != '\n' {
		msg += "\n"
	}
	s.out.mu.Lock()
	defer s.out.mu.Unlock()
	fmt.Fprintf(s.out.w, "%s %s%s%s", time.Now().UTC().Format(timeFormat), levelPrefixes[level], s.prefix, msg)
}

func (s *streamLogger) Printf(format string, v ...interface{}) { s.logf(LevelInfo, format, v...) }
func (s *streamLogger) Debugf(format string, v ...interface{}) { s.logf(LevelDebug, format, v...) }
func (s *streamLogger) Infof(format string, v ...interface{})  { s.logf(LevelInfo, format, v...) }
func (s *streamLogger) Warnf(format string, v ...interface{})  { s.logf(LevelWarn, format, v...) }
func (s *streamLogger) Errorf(format string, v ...interface{}) { s.logf(LevelError, format, v...) }
func (s *streamLogger) Panicf(format string, v ...interface{}) { s.logf(LevelPanic, format, v...) }

func (s *streamLogger) WithPrefix(prefix string) Logger {
	return &streamLogger{out: s.out, verbosity: s.verbosity, prefix: s.prefix + prefix}
}

// Logfer is a thing that has only a Logf() method, like for instance,
// testing.T or testing.B.
type Logfer interface {
	Logf(format string, v ...interface{})
}

// LogfLogger makes a Logfer act like our logger. Tests hand it a
// *testing.T so store and import logs land in the test output.
type LogfLogger struct {
	wrapped Logfer
	prefix  string
}

func NewLogfLogger(l Logfer) *LogfLogger {
	return &LogfLogger{wrapped: l}
}

func (ll *LogfLogger) logf(level int, format string, v ...interface{}) {
	ll.wrapped.Logf(levelPrefixes[level]+ll.prefix+format, v...)
}

func (ll *LogfLogger) Printf(format string, v ...interface{}) { ll.logf(LevelInfo, format, v...) }
func (ll *LogfLogger) Debugf(format string, v ...interface{}) { ll.logf(LevelDebug, format, v...) }
func (ll *LogfLogger) Infof(format string, v ...interface{})  { ll.logf(LevelInfo, format, v...) }
func (ll *LogfLogger) Warnf(format string, v ...interface{})  { ll.logf(LevelWarn, format, v...) }
func (ll *LogfLogger) Errorf(format string, v ...interface{}) { ll.logf(LevelError, format, v...) }
func (ll *LogfLogger) Panicf(format string, v ...interface{}) { ll.logf(LevelPanic, format, v...) }

func (ll *LogfLogger) WithPrefix(prefix string) Logger {
	return &LogfLogger{wrapped: ll.wrapped, prefix: ll.prefix + prefix}
}
