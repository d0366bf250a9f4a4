package utils

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// LogLevel controls how much this core logs.
type LogLevel uint8

const (
	logEnv = "MVFST_LOG_LEVEL"

	LogLevelNothing LogLevel = 0
	LogLevelError   LogLevel = 1
	LogLevelInfo    LogLevel = 2
	LogLevelDebug   LogLevel = 3
)

var (
	logLevel   = LogLevelNothing
	timeFormat = ""
)

// SetLogLevel sets the log level.
func SetLogLevel(level LogLevel) {
	logLevel = level
}

// SetLogTimeFormat sets the timestamp format prefixed to each log line; an
// empty string disables timestamps.
func SetLogTimeFormat(format string) {
	log.SetFlags(0)
	timeFormat = format
}

// Debugf logs a debug-level message.
func Debugf(format string, args ...interface{}) {
	if logLevel == LogLevelDebug {
		logMessage(format, args...)
	}
}

// Infof logs an info-level message.
func Infof(format string, args ...interface{}) {
	if logLevel >= LogLevelInfo {
		logMessage(format, args...)
	}
}

// Errorf logs an error-level message.
func Errorf(format string, args ...interface{}) {
	if logLevel >= LogLevelError {
		logMessage(format, args...)
	}
}

func logMessage(format string, args ...interface{}) {
	if len(timeFormat) > 0 {
		log.Printf(time.Now().Format(timeFormat)+" "+format, args...)
		return
	}
	log.Printf(format, args...)
}

// ConnLogger prefixes every line it logs with a connection identifier, so
// log output from multiple concurrent connections stays attributable. The
// package-level Debugf/Infof/Errorf remain for call sites with no
// connection in scope (the ack tracker's loss declarations and the flow
// controllers' window growth, for instance); everything that already owns a connection ID should log
// through a ConnLogger instead.
type ConnLogger struct {
	tag string
}

// NewConnLogger builds a ConnLogger tagging its output with id's string
// form.
func NewConnLogger(id fmt.Stringer) ConnLogger {
	return ConnLogger{tag: id.String()}
}

func (l ConnLogger) Debugf(format string, args ...interface{}) { Debugf(l.prefix(format), args...) }
func (l ConnLogger) Infof(format string, args ...interface{})  { Infof(l.prefix(format), args...) }
func (l ConnLogger) Errorf(format string, args ...interface{}) { Errorf(l.prefix(format), args...) }

func (l ConnLogger) prefix(format string) string {
	return "conn " + l.tag + ": " + format
}

func init() {
	if v := os.Getenv(logEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			SetLogLevel(LogLevel(n))
		}
	}
}
