package pool

import (
	"strings"
	"sync"
)

// RunLog is the append-only sequence of completion records produced by a
// run. Entries are ordered by observation time, i.e. the order children
// terminated in, not the order jobs were submitted in.
//
// RunLog is safe for concurrent use: the reaper appends from its own
// goroutine while the caller may be reading.
type RunLog struct {
	mu      sync.Mutex
	entries []string
}

// Record appends a message to the log. Empty and blank messages are
// ignored.
func (l *RunLog) Record(msg string) {
	if strings.TrimSpace(msg) == "" {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, msg)
	l.mu.Unlock()
}

// Entries returns a copy of all records in observation order.
func (l *RunLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of records.
func (l *RunLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the log.
func (l *RunLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
