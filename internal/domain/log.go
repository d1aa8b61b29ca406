package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// LogLevel is the severity attached to every log record.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// Levels lists the accepted severities from least to most severe.
var Levels = []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}

// ParseLevel reports whether value names one of the accepted levels.
func ParseLevel(value string) (LogLevel, bool) {
	candidate := LogLevel(strings.TrimSpace(value))
	for _, level := range Levels {
		if level == candidate {
			return level, true
		}
	}
	return "", false
}

// Log represents a single record submitted by a client application.
type Log struct {
	ID         string
	ProjectID  string
	Level      LogLevel
	Message    string
	Metadata   []byte
	SourceFile string
	LineNumber *int
	RequestID  string
	UserID     string
	IPAddress  string
	Timestamp  time.Time
}

type logJSON struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"projectId"`
	Level      LogLevel        `json:"level"`
	Message    string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	SourceFile string          `json:"sourceFile,omitempty"`
	LineNumber *int            `json:"lineNumber,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

// MarshalJSON renders the wire form shared by query responses and live streams.
func (l Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(logJSON{
		ID:         l.ID,
		ProjectID:  l.ProjectID,
		Level:      l.Level,
		Message:    l.Message,
		Metadata:   json.RawMessage(l.Metadata),
		SourceFile: l.SourceFile,
		LineNumber: l.LineNumber,
		RequestID:  l.RequestID,
		UserID:     l.UserID,
		IPAddress:  l.IPAddress,
		Timestamp:  l.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// SearchDocument is the weighted text indexed for full-text search.
type SearchDocument struct {
	// Primary carries the highest weight (the message).
	Primary string
	// Secondary is the serialized metadata.
	Secondary string
}

// IndexedLog pairs a log with the document its search vector is built from.
type IndexedLog struct {
	Log    Log
	Search SearchDocument
}

// LogFilter narrows a project log listing.
type LogFilter struct {
	ProjectID string
	Levels    []LogLevel
	// SearchTerms are sanitized tokens matched conjunctively.
	SearchTerms []string
	From        *time.Time
	To          *time.Time
}

// LogPosition anchors keyset pagination to one row.
type LogPosition struct {
	Timestamp time.Time
	ID        string
}

// LogPage requests one page of logs, newest first.
type LogPage struct {
	Filter LogFilter
	After  *LogPosition
	Offset int
	Limit  int
}

// TimeBucket is the number of logs whose timestamp falls in [Start, Start+span).
type TimeBucket struct {
	Start time.Time
	Count int64
}
