package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventRun        EventType = "run"
	EventBatch      EventType = "batch"
	EventTranscode  EventType = "transcode"
	EventTransfer   EventType = "transfer"
	EventScan       EventType = "scan"
	EventCheckpoint EventType = "checkpoint"
	EventRecord     EventType = "record"
	EventMerge      EventType = "merge"
	EventSkip       EventType = "skip"
	EventError      EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a level name to an EventLevel, defaulting to info
func ParseLevel(s string) EventLevel {
	switch EventLevel(s) {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return EventLevel(s)
	}
	return LevelInfo
}

// Event represents a single event in a sync or catalog run
type Event struct {
	Timestamp   time.Time         `json:"ts"`
	Level       EventLevel        `json:"level"`
	Event       EventType         `json:"event"`
	DateContext string            `json:"date_context,omitempty"`
	SrcPath     string            `json:"src_path,omitempty"`
	DestPath    string            `json:"dest_path,omitempty"`
	Action      string            `json:"action,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Files       int               `json:"files,omitempty"`
	ExitCode    *int              `json:"exit_code,omitempty"`
	Duration    int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error       string            `json:"error,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

func levelFor(err error, ok EventLevel) (EventLevel, string) {
	if err != nil {
		return LevelError, err.Error()
	}
	return ok, ""
}

// LogRun logs the start or end of a sync run
func (l *EventLogger) LogRun(action string, mappings int, duration time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:    level,
		Event:    EventRun,
		Action:   action,
		Files:    mappings,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogBatch logs the outcome of one date-context batch
func (l *EventLogger) LogBatch(dateContext string, files int, duration time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:       level,
		Event:       EventBatch,
		DateContext: dateContext,
		Files:       files,
		Duration:    duration.Milliseconds(),
		Error:       errMsg,
	})
}

// LogTranscode logs a single encoded file
func (l *EventLogger) LogTranscode(srcPath, destPath string, duration time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelDebug)
	return l.Log(&Event{
		Level:    level,
		Event:    EventTranscode,
		SrcPath:  srcPath,
		DestPath: destPath,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogTransfer logs a transport invocation and its exit code
func (l *EventLogger) LogTransfer(dateContext, srcPath string, exitCode int, dryRun bool, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:       level,
		Event:       EventTransfer,
		DateContext: dateContext,
		SrcPath:     srcPath,
		ExitCode:    &exitCode,
		Error:       errMsg,
		Extra: map[string]string{
			"dry_run": strconv.FormatBool(dryRun),
		},
	})
}

// LogScan logs a completed or failed remote library scan
func (l *EventLogger) LogScan(dateContext string, full bool, duration time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	mode := "quick"
	if full {
		mode = "full"
	}
	return l.Log(&Event{
		Level:       level,
		Event:       EventScan,
		DateContext: dateContext,
		Action:      mode,
		Duration:    duration.Milliseconds(),
		Error:       errMsg,
	})
}

// LogCheckpoint logs a checkpoint advance
func (l *EventLogger) LogCheckpoint(dateContext string, timestamp int64) error {
	return l.Log(&Event{
		Level:       LevelInfo,
		Event:       EventCheckpoint,
		DateContext: dateContext,
		Extra: map[string]string{
			"timestamp": strconv.FormatInt(timestamp, 10),
		},
	})
}

// LogRecord logs a track added to or updated in the catalog
func (l *EventLogger) LogRecord(srcPath, action, trackID string) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventRecord,
		SrcPath: srcPath,
		Action:  action,
		Extra: map[string]string{
			"track_id": trackID,
		},
	})
}

// LogMerge logs a catalog merge
func (l *EventLogger) LogMerge(primary, secondary, output string, tracks, pruned int) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventMerge,
		SrcPath:  primary,
		DestPath: output,
		Files:    tracks,
		Extra: map[string]string{
			"secondary": secondary,
			"pruned":    strconv.Itoa(pruned),
		},
	})
}

// LogSkip logs a file or track skipped on a best-effort basis
func (l *EventLogger) LogSkip(srcPath, reason string) error {
	return l.Log(&Event{
		Level:   LevelWarning,
		Event:   EventSkip,
		SrcPath: srcPath,
		Reason:  reason,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, srcPath string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		SrcPath: srcPath,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
