// Package middleware rate limits the unauthenticated entry points of the API.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/metrics"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/normalize"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Limiter decides whether one more event for key is permitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LimiterStore maintains per-key token buckets in process memory and
// performs periodic cleanup. Use it for a single API instance.
type LimiterStore struct {
	mu              sync.Mutex
	limit           rate.Limit
	burst           int
	clients         map[string]*clientEntry
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore creates a new store for per-key rate limiters.
// limitPerMinute controls allowed events per minute; burst is the burst capacity.
func NewLimiterStore(limitPerMinute int, burst int, cleanupInterval time.Duration) *LimiterStore {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	s := &LimiterStore{
		limit:           rate.Every(time.Minute / time.Duration(limitPerMinute)),
		burst:           burst,
		clients:         map[string]*clientEntry{},
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *LimiterStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evict(time.Now().Add(-10 * time.Minute))
		case <-s.stopCh:
			return
		}
	}
}

func (s *LimiterStore) evict(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.clients {
		if v.lastSeen.Before(cutoff) {
			delete(s.clients, k)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (s *LimiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// getLimiter returns or creates a limiter for key
func (s *LimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.clients[key]; ok {
		e.lastSeen = time.Now()
		return e.limiter
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.clients[key] = &clientEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// Allow checks whether an event for the given key is permitted. It never
// returns an error.
func (s *LimiterStore) Allow(_ context.Context, key string) (bool, error) {
	return s.getLimiter(key).Allow(), nil
}

// RateLimit returns HTTP middleware that applies limiter to every request it
// wraps. Requests carrying a JSON "email" field are keyed by the normalized
// address so one account cannot be hammered from many addresses; others are
// keyed by client IP. Limiter errors are logged and the request is let through.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Printf("rate limiter unavailable, allowing %s: %v", key, err)
				ok = true
			}
			if !ok {
				metrics.RateLimited.WithLabelValues("http").Inc()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"code": "rate_limited", "message": "rate limit exceeded"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const maxPeekBytes = 1 << 16

// requestKey peeks at the JSON body for an email and restores the body for
// the next handler.
func requestKey(r *http.Request) string {
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
		if err == nil {
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
			var payload struct {
				Email string `json:"email"`
			}
			if json.Unmarshal(body, &payload) == nil {
				if e := normalize.Email(payload.Email); e != "" {
					return "email:" + e
				}
			}
		}
	}
	return "ip:" + clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// RateLimitUnaryInterceptor returns a grpc.UnaryServerInterceptor that applies
// rate limiting to the supplied methods, keyed by the remote peer address.
func RateLimitUnaryInterceptor(limiter Limiter, limitedMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		// Only apply to selected methods
		if !limitedMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		key := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			key = "ip:" + clientIP(p.Addr.String())
		}

		ok, err := limiter.Allow(ctx, key)
		if err != nil {
			log.Printf("rate limiter unavailable, allowing %s: %v", key, err)
			ok = true
		}
		if !ok {
			metrics.RateLimited.WithLabelValues("grpc").Inc()
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
		}

		return handler(ctx, req)
	}
}
