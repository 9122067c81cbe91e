package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	SessionStarted Type = iota + 1
	ScanComplete
	FileProcessed
	FileSplit
	FileSkipped
	FileFailed
	BatchCommitted
	BatchFailed
	PushRetried
	Cancelled
	Log
)

var typeNames = [...]string{
	SessionStarted: "SessionStarted",
	ScanComplete:   "ScanComplete",
	FileProcessed:  "FileProcessed",
	FileSplit:      "FileSplit",
	FileSkipped:    "FileSkipped",
	FileFailed:     "FileFailed",
	BatchCommitted: "BatchCommitted",
	BatchFailed:    "BatchFailed",
	PushRetried:    "PushRetried",
	Cancelled:      "Cancelled",
	Log:            "Log",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Severity classifies a log event for presentation adapters.
type Severity int

const (
	Debug Severity = iota
	Info
	Success
	Warn
	Error
)

var severityNames = [...]string{
	Debug:   "debug",
	Info:    "info",
	Success: "success",
	Warn:    "warn",
	Error:   "error",
}

func (s Severity) String() string {
	if int(s) >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "unknown"
}

// Event is a single progress or log record emitted by the upload session.
// Progress-bearing events carry Processed/Total; Log events carry Message
// and Severity. The session never blocks on rendering: events flow through
// a buffered channel drained by a presentation adapter.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // relative path, when the event concerns one entry
	Message   string
	Severity  Severity
	Processed int64 // entries processed so far
	Total     int64 // total estimate from the pre-scan
	Size      int64 // file size or batch size in bytes, when known
	Err       error
}
