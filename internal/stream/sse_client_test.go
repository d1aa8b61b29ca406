package stream

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/logwell/logwell/internal/domain"
)

func TestSSEClientFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, rec, discardLogger())

	entries := []domain.Log{{ID: "1", ProjectID: "proj", Level: domain.LevelInfo, Message: "hello", Timestamp: time.Unix(0, 0)}}
	if err := client.SendLogs(entries); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: logs\ndata: [{") {
		t.Fatalf("unexpected event frame: %q", body)
	}
	if !strings.Contains(body, `"message":"hello"`) {
		t.Fatalf("payload missing message: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n: heartbeat\n\n") {
		t.Fatalf("heartbeat frame missing: %q", body)
	}
	if !rec.Flushed {
		t.Fatalf("expected writes to be flushed")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("reset by peer") }

type nopFlusher struct{}

func (nopFlusher) Flush() {}

func TestSSEClientStopsAfterWriteFailure(t *testing.T) {
	client := NewSSEClient(failingWriter{}, nopFlusher{}, discardLogger())
	if err := client.Heartbeat(); err == nil {
		t.Fatalf("expected write error")
	}
	if err := client.Heartbeat(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF once closed, got %v", err)
	}
}
