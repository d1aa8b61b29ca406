package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/logwell/logwell/internal/domain"
)

// Defaults for the flush window and connection upkeep.
const (
	DefaultFlushInterval = 1500 * time.Millisecond
	DefaultBatchSize     = 50
	DefaultHeartbeat     = 15 * time.Second
	DefaultMaxPending    = 10000
)

// ErrSlowConsumer is returned when a connection falls too far behind.
var ErrSlowConsumer = errors.New("stream consumer too slow")

// Sink is the transport behind one live connection.
type Sink interface {
	SendLogs(entries []domain.Log) error
	Heartbeat() error
}

// Options tunes a Streamer. Zero values select the defaults.
type Options struct {
	FlushInterval time.Duration
	BatchSize     int
	Heartbeat     time.Duration
	MaxPending    int
}

// Streamer batches hub events per connection.
type Streamer struct {
	hub    *Hub
	opts   Options
	logger *slog.Logger
}

// NewStreamer builds a Streamer reading from hub.
func NewStreamer(hub *Hub, opts Options, logger *slog.Logger) *Streamer {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{hub: hub, opts: opts, logger: logger.With("component", "stream")}
}

// Hub exposes the hub the streamer subscribes to.
func (s *Streamer) Hub() *Hub {
	return s.hub
}

type pendingQueue struct {
	mu      sync.Mutex
	entries []domain.Log
}

func (q *pendingQueue) push(entry domain.Log) {
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// take removes up to n entries from the head.
func (q *pendingQueue) take(n int) []domain.Log {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.entries) {
		n = len(q.entries)
	}
	out := make([]domain.Log, n)
	copy(out, q.entries[:n])
	q.entries = q.entries[n:]
	if len(q.entries) == 0 {
		q.entries = nil
	}
	return out
}

// Serve pushes logs of projectID into sink until ctx is done or a write
// fails. The subscription is always released before Serve returns.
func (s *Streamer) Serve(ctx context.Context, projectID string, sink Sink) error {
	activeConnections.Inc()
	defer activeConnections.Dec()

	pending := &pendingQueue{}
	notify := make(chan struct{}, 1)
	sub := s.hub.Subscribe(projectID, func(entry domain.Log) {
		pending.push(entry)
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer sub.Unsubscribe()

	log := s.logger.With("project_id", projectID)
	log.Debug("stream opened")

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	var (
		flushTimer *time.Timer
		flushC     <-chan time.Time
	)
	stopTimer := func() {
		if flushTimer != nil {
			flushTimer.Stop()
		}
		flushTimer, flushC = nil, nil
	}
	defer stopTimer()

	// send drains full batches, or everything when all is set.
	send := func(all bool) error {
		for {
			n := pending.len()
			if n > s.opts.MaxPending {
				log.Warn("closing slow stream consumer", "pending", n)
				return ErrSlowConsumer
			}
			if n == 0 || (!all && n < s.opts.BatchSize) {
				return nil
			}
			if err := sink.SendLogs(pending.take(s.opts.BatchSize)); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug("stream closed")
			return nil
		case <-notify:
			if n := pending.len(); n >= s.opts.BatchSize || n > s.opts.MaxPending {
				stopTimer()
				if err := send(false); err != nil {
					return err
				}
			}
			if pending.len() > 0 && flushC == nil {
				flushTimer = time.NewTimer(s.opts.FlushInterval)
				flushC = flushTimer.C
			}
		case <-flushC:
			flushTimer, flushC = nil, nil
			if err := send(true); err != nil {
				return err
			}
		case <-heartbeat.C:
			if err := sink.Heartbeat(); err != nil {
				return err
			}
		}
	}
}
