package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/logwell/logwell/internal/domain"
	"github.com/logwell/logwell/internal/repository"
	"github.com/logwell/logwell/internal/service/apikey"
	"github.com/logwell/logwell/internal/service/auth"
	"github.com/logwell/logwell/internal/service/logs"
	"github.com/logwell/logwell/internal/service/project"
	"github.com/logwell/logwell/internal/stream"
	jwtpkg "github.com/logwell/logwell/pkg/jwt"
)

const (
	testSecret = "test-secret"
	testKey    = "lw_abcdefghijklmnopqrstuvwxyz012345"
)

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

type rateLimitCall struct {
	key    string
	limit  int
	window time.Duration
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, limit: limit, window: window})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (rl *rateLimiterStub) Close() {}

type projectRepoStub struct {
	mu       sync.Mutex
	projects map[string]domain.Project
	lookups  int
}

func newProjectRepoStub(projects ...domain.Project) *projectRepoStub {
	stub := &projectRepoStub{projects: make(map[string]domain.Project)}
	for _, p := range projects {
		stub.projects[p.ID] = p
	}
	return stub
}

func (s *projectRepoStub) CreateProject(_ context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = *p
	return nil
}

func (s *projectRepoStub) GetProjectByID(_ context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *projectRepoStub) GetProjectIDByAPIKey(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	for _, p := range s.projects {
		if p.APIKey == key {
			return p.ID, nil
		}
	}
	return "", repository.ErrNotFound
}

func (s *projectRepoStub) ListProjects(_ context.Context) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}

func (s *projectRepoStub) ListProjectsByOwner(_ context.Context, ownerID string) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Project
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *projectRepoStub) UpdateAPIKey(_ context.Context, id, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.APIKey = key
	s.projects[id] = p
	return nil
}

func (s *projectRepoStub) UpdateRetention(_ context.Context, id string, days *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.RetentionDays = days
	s.projects[id] = p
	return nil
}

func (s *projectRepoStub) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

func (s *projectRepoStub) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// logRepoStub keeps logs in memory and honours project, level and keyset
// filters. Search is not modelled.
type logRepoStub struct {
	mu   sync.Mutex
	logs []domain.Log
}

func (s *logRepoStub) InsertLogs(_ context.Context, entries []domain.IndexedLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		s.logs = append(s.logs, entry.Log)
	}
	return nil
}

func newerThan(a, b domain.Log) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

func (s *logRepoStub) filtered(filter domain.LogFilter) []domain.Log {
	var out []domain.Log
	for _, entry := range s.logs {
		if entry.ProjectID != filter.ProjectID {
			continue
		}
		if len(filter.Levels) > 0 {
			match := false
			for _, level := range filter.Levels {
				match = match || entry.Level == level
			}
			if !match {
				continue
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return newerThan(out[i], out[j]) })
	return out
}

func (s *logRepoStub) ListLogs(_ context.Context, page domain.LogPage) ([]domain.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.filtered(page.Filter)
	var out []domain.Log
	for _, entry := range all {
		if page.After != nil && !newerThan(domain.Log{Timestamp: page.After.Timestamp, ID: page.After.ID}, entry) {
			continue
		}
		out = append(out, entry)
	}
	if page.After == nil && page.Offset > 0 {
		if page.Offset >= len(out) {
			return nil, nil
		}
		out = out[page.Offset:]
	}
	if len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (s *logRepoStub) CountLogs(_ context.Context, filter domain.LogFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filtered(filter))), nil
}

func (s *logRepoStub) CountLogsByBucket(context.Context, string, time.Time, time.Time, time.Duration) ([]domain.TimeBucket, error) {
	return nil, nil
}

func (s *logRepoStub) CountLogsByLevel(_ context.Context, projectID string) (map[domain.LogLevel]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.LogLevel]int64)
	for _, entry := range s.logs {
		if entry.ProjectID == projectID {
			counts[entry.Level]++
		}
	}
	return counts, nil
}

func (s *logRepoStub) DeleteLogsBefore(context.Context, string, time.Time, int) (int64, error) {
	return 0, nil
}

func (s *logRepoStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

type testEnv struct {
	router   *Router
	projects *projectRepoStub
	logs     *logRepoStub
	limiter  *rateLimiterStub
	hub      *stream.Hub
	token    string
}

func setupRouter(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	projects := newProjectRepoStub(
		domain.Project{ID: "proj-1", Name: "api", APIKey: testKey, OwnerID: "user-123", CreatedAt: time.Now()},
		domain.Project{ID: "proj-2", Name: "other", APIKey: "lw_zyxwvutsrqponmlkjihgfedcba543210", OwnerID: "user-999", CreatedAt: time.Now()},
	)
	logRepo := &logRepoStub{}
	hub := stream.NewHub()
	keys := apikey.NewAuthenticator(projects, apikey.NewCache(time.Minute, nil), logger)
	streamer := stream.NewStreamer(hub, stream.Options{FlushInterval: 20 * time.Millisecond, Heartbeat: time.Hour}, logger)
	limiter := newRateLimiterStub()

	router := NewRouter(
		logger,
		auth.New(testSecret, logger),
		keys,
		project.New(projects, keys, logger),
		logs.New(logRepo, hub, logger),
		streamer,
		limiter,
		opts,
		nil,
	)
	token, err := jwtpkg.GenerateToken("user-123", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return &testEnv{router: router, projects: projects, logs: logRepo, limiter: limiter, hub: hub, token: token}
}

type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	status int
	buf    bytes.Buffer
	flush  int
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (s *streamRecorder) Header() http.Header {
	return s.header
}

func (s *streamRecorder) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.buf.Write(b)
}

func (s *streamRecorder) WriteHeader(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *streamRecorder) Flush() {
	s.mu.Lock()
	s.flush++
	s.mu.Unlock()
}

func (s *streamRecorder) body() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *streamRecorder) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush
}

func (s *streamRecorder) statusCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// extractSSEPayloads decodes every data line; each carries a JSON array of logs.
func extractSSEPayloads(body string) ([][]map[string]any, error) {
	var payloads [][]map[string]any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var batch []map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &batch); err != nil {
			return nil, err
		}
		payloads = append(payloads, batch)
	}
	return payloads, nil
}

type noFlushRecorder struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func newNoFlushRecorder() *noFlushRecorder {
	return &noFlushRecorder{header: make(http.Header)}
}

func (r *noFlushRecorder) Header() http.Header {
	return r.header
}

func (r *noFlushRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.buf.Write(b)
}

func (r *noFlushRecorder) WriteHeader(status int) {
	r.status = status
}

func (r *noFlushRecorder) body() string {
	return r.buf.String()
}

func (r *noFlushRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func parseError(t *testing.T, body string) errorBody {
	t.Helper()
	var payload errorBody
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload
}
