package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/logwell/logwell/internal/domain"
)

type recordingSink struct {
	mu         sync.Mutex
	batches    chan []domain.Log
	heartbeats chan struct{}
	block      chan struct{}
	entered    chan struct{}
	blockOnce  sync.Once
	err        error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		batches:    make(chan []domain.Log, 64),
		heartbeats: make(chan struct{}, 64),
	}
}

func (s *recordingSink) SendLogs(entries []domain.Log) error {
	if s.block != nil {
		s.blockOnce.Do(func() {
			close(s.entered)
			<-s.block
		})
	}
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.batches <- entries
	return nil
}

func (s *recordingSink) Heartbeat() error {
	s.heartbeats <- struct{}{}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type running struct {
	cancel context.CancelFunc
	done   chan error
}

func startServe(t *testing.T, streamer *Streamer, projectID string, sink Sink) running {
	t.Helper()
	before := streamer.Hub().ListenerCount(projectID)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- streamer.Serve(ctx, projectID, sink) }()
	waitFor(t, time.Second, func() bool { return streamer.Hub().ListenerCount(projectID) == before+1 })
	return running{cancel: cancel, done: done}
}

func (r running) stop(t *testing.T) error {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after cancel")
		return nil
	}
}

func makeLogs(projectID string, n int) []domain.Log {
	out := make([]domain.Log, n)
	for i := range out {
		out[i] = domain.Log{ID: fmt.Sprintf("%s-%d", projectID, i), ProjectID: projectID, Level: domain.LevelInfo, Message: "m"}
	}
	return out
}

func TestFullBatchFlushesWithoutWaitingForTimer(t *testing.T) {
	hub := NewHub()
	streamer := NewStreamer(hub, Options{FlushInterval: 10 * time.Second, BatchSize: 50, Heartbeat: time.Hour}, discardLogger())
	sink := newRecordingSink()
	run := startServe(t, streamer, "proj", sink)

	for _, entry := range makeLogs("proj", 50) {
		hub.Emit(entry)
	}

	select {
	case batch := <-sink.batches:
		if len(batch) != 50 {
			t.Fatalf("expected a batch of 50, got %d", len(batch))
		}
		for i, entry := range batch {
			if entry.ID != fmt.Sprintf("proj-%d", i) {
				t.Fatalf("batch out of order at %d: %s", i, entry.ID)
			}
		}
	case <-time.After(time.Second):
		t.Fatalf("full batch was not flushed promptly")
	}

	if err := run.stop(t); err != nil {
		t.Fatalf("unexpected serve error: %v", err)
	}
}

func TestSparseLogsFlushTogetherAfterWindow(t *testing.T) {
	hub := NewHub()
	window := 150 * time.Millisecond
	streamer := NewStreamer(hub, Options{FlushInterval: window, BatchSize: 50, Heartbeat: time.Hour}, discardLogger())
	sink := newRecordingSink()
	run := startServe(t, streamer, "proj", sink)
	defer run.stop(t)

	start := time.Now()
	for _, entry := range makeLogs("proj", 3) {
		hub.Emit(entry)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case batch := <-sink.batches:
		if len(batch) != 3 {
			t.Fatalf("expected the three logs in one batch, got %d", len(batch))
		}
		if elapsed := time.Since(start); elapsed < window {
			t.Fatalf("batch flushed after %s, before the %s window", elapsed, window)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("window flush never happened")
	}

	select {
	case batch := <-sink.batches:
		t.Fatalf("unexpected extra batch %v", batch)
	case <-time.After(2 * window):
	}
}

func TestDisconnectRestoresListenerCount(t *testing.T) {
	hub := NewHub()
	existing := hub.Subscribe("proj", func(domain.Log) {})
	defer existing.Unsubscribe()

	streamer := NewStreamer(hub, Options{Heartbeat: time.Hour}, discardLogger())
	gaugeBefore := testutil.ToFloat64(activeConnections)
	run := startServe(t, streamer, "proj", newRecordingSink())
	if got := testutil.ToFloat64(activeConnections); got != gaugeBefore+1 {
		t.Fatalf("expected connection gauge %v, got %v", gaugeBefore+1, got)
	}
	if err := run.stop(t); err != nil {
		t.Fatalf("unexpected serve error: %v", err)
	}

	if got := hub.ListenerCount("proj"); got != 1 {
		t.Fatalf("expected listener count back at 1, got %d", got)
	}
	if got := testutil.ToFloat64(activeConnections); got != gaugeBefore {
		t.Fatalf("expected connection gauge %v, got %v", gaugeBefore, got)
	}
}

func TestStreamIgnoresOtherProjects(t *testing.T) {
	hub := NewHub()
	streamer := NewStreamer(hub, Options{FlushInterval: 30 * time.Millisecond, Heartbeat: time.Hour}, discardLogger())
	sink := newRecordingSink()
	run := startServe(t, streamer, "proj-a", sink)
	defer run.stop(t)

	for _, entry := range makeLogs("proj-b", 5) {
		hub.Emit(entry)
	}
	select {
	case batch := <-sink.batches:
		t.Fatalf("received logs of another project: %v", batch)
	case <-time.After(150 * time.Millisecond):
	}

	hub.Emit(domain.Log{ID: "a-1", ProjectID: "proj-a"})
	select {
	case batch := <-sink.batches:
		if len(batch) != 1 || batch[0].ProjectID != "proj-a" {
			t.Fatalf("unexpected batch %v", batch)
		}
	case <-time.After(time.Second):
		t.Fatalf("own project log not delivered")
	}
}

func TestHeartbeatFiresWithoutTraffic(t *testing.T) {
	hub := NewHub()
	streamer := NewStreamer(hub, Options{Heartbeat: 20 * time.Millisecond}, discardLogger())
	sink := newRecordingSink()
	run := startServe(t, streamer, "proj", sink)
	defer run.stop(t)

	for i := 0; i < 2; i++ {
		select {
		case <-sink.heartbeats:
		case <-time.After(time.Second):
			t.Fatalf("heartbeat %d not sent", i+1)
		}
	}
}

func TestSinkErrorEndsServeAndUnsubscribes(t *testing.T) {
	hub := NewHub()
	streamer := NewStreamer(hub, Options{FlushInterval: 10 * time.Millisecond, Heartbeat: time.Hour}, discardLogger())
	sink := newRecordingSink()
	sink.err = errors.New("broken pipe")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- streamer.Serve(ctx, "proj", sink) }()
	waitFor(t, time.Second, func() bool { return hub.ListenerCount("proj") == 1 })

	hub.Emit(domain.Log{ID: "1", ProjectID: "proj"})
	select {
	case err := <-done:
		if err == nil || err.Error() != "broken pipe" {
			t.Fatalf("expected sink error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not stop on sink error")
	}
	if got := hub.ListenerCount("proj"); got != 0 {
		t.Fatalf("subscription leaked: %d", got)
	}
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	hub := NewHub()
	streamer := NewStreamer(hub, Options{FlushInterval: 10 * time.Second, BatchSize: 50, MaxPending: 60, Heartbeat: time.Hour}, discardLogger())
	sink := newRecordingSink()
	sink.block = make(chan struct{})
	sink.entered = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- streamer.Serve(ctx, "proj", sink) }()
	waitFor(t, time.Second, func() bool { return hub.ListenerCount("proj") == 1 })

	for _, entry := range makeLogs("proj", 50) {
		hub.Emit(entry)
	}
	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatalf("first batch never reached the sink")
	}
	for _, entry := range makeLogs("proj", 100) {
		hub.Emit(entry)
	}
	close(sink.block)

	select {
	case err := <-done:
		if !errors.Is(err, ErrSlowConsumer) {
			t.Fatalf("expected ErrSlowConsumer, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("slow consumer was not disconnected")
	}
	if got := hub.ListenerCount("proj"); got != 0 {
		t.Fatalf("subscription leaked: %d", got)
	}
}
