// Package eventlog keeps a durable record of monitor lifecycle changes,
// recorded silences and alerts in a single JSON lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-silencewatch/internal/silence"
	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
)

// EventType represents the type of event.
type EventType string

// Event types.
const (
	MonitorStarted  EventType = "monitor_started"
	MonitorStopped  EventType = "monitor_stopped"
	SilenceDetected EventType = "silence_detected"
	SilenceAlert    EventType = "silence_alert"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	Type      EventType       `json:"type"`
	Message   string          `json:"msg,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// Logger writes events to a JSON lines file. It listens to the monitor
// directly.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
	now      func() time.Time
}

// NewLogger opens (or creates) the log file at filePath for appending.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
		now:      time.Now,
	}, nil
}

// Log writes an event with details marshaled as JSON.
func (l *Logger) Log(eventType EventType, message string, details any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}

	event := Event{Timestamp: l.now(), Type: eventType, Message: message}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		event.Details = raw
	}
	return l.encoder.Encode(&event)
}

// SilenceDetected records a finalized silence.
func (l *Logger) SilenceDetected(s silence.Silence) {
	l.logOrWarn(SilenceDetected, fmt.Sprintf("%s silence of %d ms", s.Category, s.DurationMs), s)
}

// SilenceAlert records an alert.
func (l *Logger) SilenceAlert(a silence.Alert) {
	l.logOrWarn(SilenceAlert, fmt.Sprintf("%s severity alert after %d ms", a.Severity, a.DurationMs), a)
}

// MonitorStateChanged records the monitor starting and stopping.
func (l *Logger) MonitorStateChanged(state types.MonitorState) {
	switch state {
	case types.StateRunning:
		l.logOrWarn(MonitorStarted, "monitoring started", nil)
	case types.StateStopped:
		l.logOrWarn(MonitorStopped, "monitoring stopped", nil)
	}
}

func (l *Logger) logOrWarn(eventType EventType, message string, details any) {
	if err := l.Log(eventType, message, details); err != nil {
		slog.Warn("failed to write event log", "type", eventType, "error", err)
	}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterSilence TypeFilter = "silence"
	FilterAlert   TypeFilter = "alert"
	FilterMonitor TypeFilter = "monitor"
)

// ErrUnknownFilter is returned for a filter name ParseFilter does not know.
var ErrUnknownFilter = errors.New("unknown event filter")

// ParseFilter converts a query value into a TypeFilter.
func ParseFilter(s string) (TypeFilter, error) {
	switch f := TypeFilter(s); f {
	case FilterAll, FilterSilence, FilterAlert, FilterMonitor:
		return f, nil
	default:
		return FilterAll, fmt.Errorf("%w: %q", ErrUnknownFilter, s)
	}
}

// Matches reports whether t passes the filter.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterSilence:
		return t == SilenceDetected
	case FilterAlert:
		return t == SilenceAlert
	case FilterMonitor:
		return t == MonitorStarted || t == MonitorStopped
	default:
		return true
	}
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast returns up to n events after skipping offset matches, newest
// first, and reports whether older matching events remain. Malformed lines
// are skipped and a missing file reads as empty.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}
	offset = max(offset, 0)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer func() { _ = file.Close() }()

	var lines [][]byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	matched := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal(lines[i], &event); err != nil {
			continue
		}
		if !filter.Matches(event.Type) {
			continue
		}
		matched++
		if matched <= offset {
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}
