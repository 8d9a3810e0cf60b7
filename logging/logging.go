// Package logging provides structured console logging for connkit.
// Output is line-oriented key=value text aimed at real-time monitoring
// of connection and heartbeat activity.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	conn      string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Discard returns a logger that writes nowhere. Useful as a default
// when no logger was configured.
func Discard() *Logger {
	return &Logger{
		output:   io.Discard,
		minLevel: LevelError,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		conn:      l.conn,
	}
}

// WithConn returns a new logger tagged with a connection name. The
// name appears as a conn=... field on every line.
func (l *Logger) WithConn(name string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		conn:      name,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.conn != "" {
		fieldStr += " conn=" + l.conn
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Connection event methods ---
// Thin wrappers called from the conn and heartbeat packages so event
// names stay consistent across transports.

// HeartbeatSent logs an outgoing heartbeat (real-time output).
func (l *Logger) HeartbeatSent(drift int64) {
	l.Debug("heartbeat_sent", map[string]interface{}{
		"drift": drift,
	})
}

// HeartbeatReceived logs an inbound heartbeat marker.
func (l *Logger) HeartbeatReceived(drift int64) {
	l.Debug("heartbeat_received", map[string]interface{}{
		"drift": drift,
	})
}

// HeartbeatMissed logs a heartbeat drift breach.
func (l *Logger) HeartbeatMissed(drift int64, tolerance int) {
	l.Warn("heartbeat_missed", map[string]interface{}{
		"drift":     drift,
		"tolerance": tolerance,
	})
}

// ConnOpened logs a connection becoming usable.
func (l *Logger) ConnOpened(transport string) {
	l.Info("conn_opened", map[string]interface{}{
		"transport": transport,
	})
}

// ConnClosed logs connection termination with its cause, if any.
func (l *Logger) ConnClosed(err error) {
	if err != nil {
		l.Warn("conn_closed", map[string]interface{}{
			"cause": err.Error(),
		})
		return
	}
	l.Info("conn_closed")
}

// SubmitFailed logs a failed write.
func (l *Logger) SubmitFailed(err error) {
	l.Error("submit_failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// FrameDropped logs an inbound frame that could not be decoded.
func (l *Logger) FrameDropped(reason string) {
	l.Debug("frame_dropped", map[string]interface{}{
		"reason": reason,
	})
}
