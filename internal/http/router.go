package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logwell/logwell/internal/service/apikey"
	"github.com/logwell/logwell/internal/service/auth"
	"github.com/logwell/logwell/internal/service/logs"
	"github.com/logwell/logwell/internal/service/project"
	"github.com/logwell/logwell/internal/stream"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	keys     *apikey.Authenticator
	project  project.Service
	logs     logs.Service
	streamer *stream.Streamer
	upgrader websocket.Upgrader
	limiter  RateLimiter
	opts     Options
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// Options carries request limits.
type Options struct {
	IngestMaxBodyBytes  int64
	IngestRatePerMinute int
	QueryRatePerMinute  int
}

const (
	rateWindowDefault      = time.Minute
	rateWindowRealtime     = 30 * time.Second
	rateLimitIngestDefault = 600
	rateLimitQueryDefault  = 240
	rateLimitUserWrite     = 60
	rateLimitStream        = 30
	defaultIngestBodyLimit = 1 << 20
	healthCheckTimeout     = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, keys *apikey.Authenticator, projectSvc project.Service, logSvc logs.Service, streamer *stream.Streamer, limiter RateLimiter, opts Options, dbHealth func(context.Context) error) *Router {
	if opts.IngestMaxBodyBytes <= 0 {
		opts.IngestMaxBodyBytes = defaultIngestBodyLimit
	}
	if opts.IngestRatePerMinute == 0 {
		opts.IngestRatePerMinute = rateLimitIngestDefault
	}
	if opts.QueryRatePerMinute == 0 {
		opts.QueryRatePerMinute = rateLimitQueryDefault
	}
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		keys:     keys,
		project:  projectSvc,
		logs:     logSvc,
		streamer: streamer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		opts:     opts,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	ingest := r.audit("ingest", r.requireAPIKey(r.limited(ingestPolicy(r.opts.IngestRatePerMinute), r.handleIngest)))
	r.mux.HandleFunc("/v1/ingest", ingest)
	r.mux.HandleFunc("/v1/logs", ingest)

	r.mux.HandleFunc("/api/projects", r.audit("projects", r.sessionLimited(userPolicy("projects", rateLimitUserWrite, rateWindowDefault), r.handleProjects)))
	r.mux.HandleFunc("/api/projects/", r.audit("project", r.requireAuth(r.handleAPIProjectSubroutes)))
	r.mux.HandleFunc("/projects/", r.audit("dashboard_logs", r.sessionLimited(userPolicy("dashboard_logs", r.opts.QueryRatePerMinute, rateWindowDefault), r.handleDashboardSubroutes)))
	r.mux.HandleFunc("/ws/logs", r.audit("ws_logs", r.sessionLimited(userPolicy("ws_logs", rateLimitStream, rateWindowRealtime), r.handleLogsWS)))
}

// handleAPIProjectSubroutes dispatches /api/projects/{id}/... and applies
// the per-route rate limit.
func (r *Router) handleAPIProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/projects/"), "/")
	parts := strings.Split(trimmed, "/")
	if trimmed == "" || parts[0] == "" {
		r.notFound(w)
		return
	}
	projectID := parts[0]
	sub := strings.Join(parts[1:], "/")

	var (
		route   string
		limit   int
		window  = rateWindowDefault
		handler func(http.ResponseWriter, *http.Request, string)
	)
	switch sub {
	case "":
		route, limit, handler = "project", rateLimitUserWrite, r.handleProject
	case "logs":
		route, limit, handler = "logs", r.opts.QueryRatePerMinute, r.handleQueryLogs
	case "stats":
		route, limit, handler = "stats", r.opts.QueryRatePerMinute, r.handleLevelStats
	case "stats/timeseries":
		route, limit, handler = "timeseries", r.opts.QueryRatePerMinute, r.handleTimeSeries
	case "stream":
		route, limit, window, handler = "stream", rateLimitStream, rateWindowRealtime, r.handleStream
	case "regenerate":
		route, limit, handler = "regenerate", rateLimitUserWrite, r.handleRegenerateKey
	case "retention":
		route, limit, handler = "retention", rateLimitUserWrite, r.handleRetention
	default:
		r.notFound(w)
		return
	}
	r.limited(userPolicy(route, limit, window), func(w http.ResponseWriter, req *http.Request) {
		handler(w, req, projectID)
	})(w, req)
}

// handleDashboardSubroutes serves /projects/{id}/logs, the dashboard loader.
func (r *Router) handleDashboardSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/projects/"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "logs" {
		r.notFound(w)
		return
	}
	r.serveLogQuery(w, req, parts[0], logs.CursorLenient)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			if info.UserID != "" {
				actor = "user"
				fields = append(fields, "user_id", info.UserID)
			}
			if info.ProjectID != "" {
				actor = "api_key"
				fields = append(fields, "project_id", info.ProjectID)
			}
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
		if !decision.allowed {
			retry := time.Until(decision.windowEnd).Round(time.Second)
			if retry < time.Second {
				retry = time.Second
			}
			headers.Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
		}
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not_found", "not found")
}
