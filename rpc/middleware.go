package rpc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"workescrow/observability/metrics"
)

// RequestIDHeader carries the request correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "rpc.requestID"

const visitorIdleTTL = 10 * time.Minute

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestIDFrom returns the id assigned to the request carried by ctx.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("rpc: response writer cannot be hijacked")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RPC().Observe(route, r.Method, recorder.status, time.Since(start))
	})
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter hands out one token bucket per client address.
type clientLimiter struct {
	perSecond rate.Limit
	burst     int
	now       func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	swept    time.Time
}

func newClientLimiter(requestsPerMinute float64, burst int, now func() time.Time) *clientLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		perSecond: rate.Limit(requestsPerMinute / 60.0),
		burst:     burst,
		now:       now,
		visitors:  make(map[string]*visitor),
	}
}

func (l *clientLimiter) allow(client string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.swept) > visitorIdleTTL {
		for id, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTTL {
				delete(l.visitors, id)
			}
		}
		l.swept = now
	}
	v, ok := l.visitors[client]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[client] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientSource(r)
		if !s.limiter.allow(client) {
			metrics.RPC().IncThrottle()
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", client)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if candidate != "" {
			return candidate
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
