package logs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/logwell/logwell/internal/domain"
)

// MaxBatchSize caps the number of records per ingest call.
const MaxBatchSize = 100

// IngestEntry is one client-submitted record before validation.
type IngestEntry struct {
	Level      string          `json:"level"`
	Message    string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	SourceFile string          `json:"sourceFile,omitempty"`
	LineNumber *int            `json:"lineNumber,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	// Service names the emitting service; it is stored as metadata.service
	// unless the metadata already carries one.
	Service string `json:"service,omitempty"`
	// Timestamp is RFC 3339; empty means receipt time.
	Timestamp string `json:"timestamp,omitempty"`
}

// InsertedLog identifies a stored record.
type InsertedLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestResult reports a committed batch.
type IngestResult struct {
	Inserted int           `json:"inserted"`
	Logs     []InsertedLog `json:"logs"`
}

// Ingest validates and stores a batch, then publishes it to live streams.
// Either the whole batch is stored or nothing is.
func (s Service) Ingest(ctx context.Context, projectID string, entries []IngestEntry) (IngestResult, error) {
	if strings.TrimSpace(projectID) == "" {
		return IngestResult{}, fmt.Errorf("project id required")
	}
	switch {
	case len(entries) == 0:
		return IngestResult{}, invalid("logs", "at least one log is required")
	case len(entries) > MaxBatchSize:
		return IngestResult{}, invalid("logs", fmt.Sprintf("at most %d logs per request", MaxBatchSize))
	}

	receivedAt := s.now().UTC().Truncate(time.Microsecond)
	indexed := make([]domain.IndexedLog, 0, len(entries))
	for i, entry := range entries {
		item, err := prepare(projectID, entry, receivedAt)
		if err != nil {
			err.Field = fmt.Sprintf("logs[%d].%s", i, err.Field)
			return IngestResult{}, err
		}
		indexed = append(indexed, item)
	}

	if err := s.repo.InsertLogs(ctx, indexed); err != nil {
		return IngestResult{}, fmt.Errorf("insert logs: %w", err)
	}

	result := IngestResult{Inserted: len(indexed), Logs: make([]InsertedLog, 0, len(indexed))}
	for _, item := range indexed {
		result.Logs = append(result.Logs, InsertedLog{ID: item.Log.ID, Timestamp: item.Log.Timestamp})
		ingestedTotal.WithLabelValues(string(item.Log.Level)).Inc()
		if s.hub != nil {
			s.hub.Emit(item.Log)
		}
	}
	s.logger.Debug("logs ingested", "project_id", projectID, "count", result.Inserted)
	return result, nil
}

func prepare(projectID string, entry IngestEntry, receivedAt time.Time) (domain.IndexedLog, *ValidationError) {
	level, ok := domain.ParseLevel(entry.Level)
	if !ok {
		return domain.IndexedLog{}, invalid("level", "level must be one of debug, info, warn, error, fatal")
	}
	if strings.TrimSpace(entry.Message) == "" {
		return domain.IndexedLog{}, invalid("message", "message is required")
	}

	timestamp := receivedAt
	if raw := strings.TrimSpace(entry.Timestamp); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.IndexedLog{}, invalid("timestamp", "timestamp must be RFC 3339")
		}
		timestamp = parsed.UTC().Truncate(time.Microsecond)
	}

	metadata, err := normalizeMetadata(entry.Metadata, strings.TrimSpace(entry.Service))
	if err != nil {
		return domain.IndexedLog{}, invalid("metadata", "metadata must be a JSON object")
	}
	if entry.LineNumber != nil && *entry.LineNumber < 0 {
		return domain.IndexedLog{}, invalid("lineNumber", "lineNumber must not be negative")
	}

	record := domain.Log{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Level:      level,
		Message:    entry.Message,
		Metadata:   metadata,
		SourceFile: strings.TrimSpace(entry.SourceFile),
		LineNumber: entry.LineNumber,
		RequestID:  strings.TrimSpace(entry.RequestID),
		UserID:     strings.TrimSpace(entry.UserID),
		IPAddress:  strings.TrimSpace(entry.IPAddress),
		Timestamp:  timestamp,
	}
	return domain.IndexedLog{
		Log:    record,
		Search: domain.SearchDocument{Primary: record.Message, Secondary: string(metadata)},
	}, nil
}

// normalizeMetadata returns compact JSON for an object, nil when absent.
func normalizeMetadata(raw json.RawMessage, service string) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	var object map[string]any
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, err
		}
	}
	if service != "" {
		if _, ok := object["service"]; !ok {
			if object == nil {
				object = make(map[string]any, 1)
			}
			object["service"] = service
			return json.Marshal(object)
		}
	}
	if object == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
