package logger

import "strings"

// TestLogEntry records a single call made to a TestLogger.
type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
}

// TestLogger is a Logger implementation that records entries instead of
// printing them, for use in package tests that assert on warning/error
// behavior (e.g. the "consider bumping version" corruption warning).
type TestLogger struct {
	metadata map[string]interface{}
	Logs     []TestLogEntry
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger returns a new Logger instance useful for testing.
func NewTestLogger() *TestLogger {
	return &TestLogger{Logs: make([]TestLogEntry, 0)}
}

func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{}, len(c.metadata)+len(metadata))
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{metadata: kv, Logs: c.Logs}
}

func (c *TestLogger) record(level string, msg string, args ...interface{}) {
	c.Logs = append(c.Logs, TestLogEntry{Severity: level, Message: msg, Arguments: args})
}

func (c *TestLogger) Debug(msg string, args ...interface{}) { c.record("DEBUG", msg, args...) }
func (c *TestLogger) Info(msg string, args ...interface{})  { c.record("INFO", msg, args...) }
func (c *TestLogger) Warn(msg string, args ...interface{})  { c.record("WARN", msg, args...) }
func (c *TestLogger) Error(msg string, args ...interface{}) { c.record("ERROR", msg, args...) }
func (c *TestLogger) Fatal(msg string, args ...interface{}) { c.record("FATAL", msg, args...) }

func (c *TestLogger) IsDebugEnabled() bool { return true }

// HasMessageContaining reports whether any recorded entry's message contains substr.
func (c *TestLogger) HasMessageContaining(substr string) bool {
	for _, entry := range c.Logs {
		if strings.Contains(entry.Message, substr) {
			return true
		}
	}
	return false
}
