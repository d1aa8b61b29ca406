package httpx

import (
	"net/http"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// rateScope names who a request is counted against.
type rateScope string

const (
	scopeProject rateScope = "project"
	scopeUser    rateScope = "user"
	scopeIP      rateScope = "ip"
)

// ratePolicy is the budget of one route. Requests that cannot be attributed
// to the policy's scope are counted per client address instead.
type ratePolicy struct {
	route  string
	limit  int
	window time.Duration
	scope  rateScope
}

func ingestPolicy(limit int) ratePolicy {
	return ratePolicy{route: "ingest", limit: limit, window: rateWindowDefault, scope: scopeProject}
}

func userPolicy(route string, limit int, window time.Duration) ratePolicy {
	return ratePolicy{route: route, limit: limit, window: window, scope: scopeUser}
}

// subject resolves the scope and identity a request is charged to.
func (p ratePolicy) subject(req *http.Request) (rateScope, string) {
	info, _ := authInfoFromContext(req.Context())
	switch {
	case p.scope == scopeProject && info.ProjectID != "":
		return scopeProject, info.ProjectID
	case p.scope == scopeUser && info.UserID != "":
		return scopeUser, info.UserID
	}
	ip := clientIP(req)
	if ip == "" {
		ip = "unknown"
	}
	return scopeIP, ip
}

// key is the limiter bucket: route, then scope and identity.
func (p ratePolicy) key(req *http.Request) (string, rateScope) {
	scope, id := p.subject(req)
	return p.route + "|" + string(scope) + ":" + id, scope
}

// limited enforces policy in front of next and reports remaining budget in
// response headers.
func (r *Router) limited(policy ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if policy.limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key, scope := policy.key(req)
		decision := r.limiter.Allow(key, policy.limit, policy.window)
		r.applyRateHeaders(w, policy.limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(policy.route, scope)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// sessionLimited authenticates the caller, then charges the request to them.
func (r *Router) sessionLimited(policy ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.limited(policy, next))
}

// memoryRateLimiter keeps one fixed window per key in process memory.
type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]fixedWindow
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

type fixedWindow struct {
	count int
	end   time.Time
}

// NewMemoryRateLimiter returns a process-local limiter. Expired windows are
// swept in the background until Close.
func NewMemoryRateLimiter() RateLimiter {
	rl := newMemoryRateLimiter(time.Now)
	go rl.sweepLoop()
	return rl
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{
		windows: make(map[string]fixedWindow),
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	current, ok := rl.windows[key]
	if !ok || !now.Before(current.end) {
		current = fixedWindow{end: now.Add(window)}
	}
	if current.count < limit {
		current.count++
		rl.windows[key] = current
		return rateDecision{allowed: true, count: current.count, windowEnd: current.end}
	}
	return rateDecision{allowed: false, count: current.count, windowEnd: current.end}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

// sweep drops windows that ended at or before now.
func (rl *memoryRateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if !now.Before(w.end) {
			delete(rl.windows, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}
