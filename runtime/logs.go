package runtime

import (
	"sync"
	"time"
)

// LogLevel is the severity of a collected log line.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// LogCollector accumulates the log lines of a single phase. Entries are kept
// in memory and bulk-persisted when the phase finalizes.
type LogCollector struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewLogCollector() *LogCollector {
	return &LogCollector{}
}

func (c *LogCollector) append(level LogLevel, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, LogEntry{
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	})
}

func (c *LogCollector) Info(message string)    { c.append(LevelInfo, message) }
func (c *LogCollector) Warning(message string) { c.append(LevelWarning, message) }
func (c *LogCollector) Error(message string)   { c.append(LevelError, message) }

// All returns the collected entries in append order.
func (c *LogCollector) All() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
