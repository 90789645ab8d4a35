package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/auth"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/lifecycle"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/metrics"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// userStore is the subset of data.UsersStore the HTTP layer needs for
// identity; everything else goes through the lifecycle controller.
type userStore interface {
	CreateUser(ctx context.Context, user *data.User) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByID(ctx context.Context, id string) (*data.User, error)
}

// pinger reports database reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	users   userStore
	ctrl    *lifecycle.Controller
	auth    *auth.JWTManager
	limiter middleware.Limiter
	db      pinger
}

// newServer returns a ready-to-use Server wired with stores, controller and auth manager.
func newServer(users userStore, ctrl *lifecycle.Controller, authMgr *auth.JWTManager, limiter middleware.Limiter, db pinger) *Server {
	return &Server{users: users, ctrl: ctrl, auth: authMgr, limiter: limiter, db: db}
}

// Router builds the HTTP route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(cors)

	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.limiter))
		r.Post("/api/register", s.handleRegister)
		r.Post("/api/login", s.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/api/pickups", s.handleCreatePickup)
		r.Get("/api/pickups", s.handleListPickups)
		r.Get("/api/pickups/{id}", s.handleGetPickup)
		r.Put("/api/pickups/{id}/assign", s.handleAssignPickup)
		r.Put("/api/pickups/{id}/status", s.handleUpdateStatus)
		r.Post("/api/pickups/{id}/rate", s.handleRatePickup)

		r.Post("/api/chat/{id}", s.handleSendMessage)
		r.Get("/api/chat/{id}", s.handleListMessages)

		r.Get("/api/stats/user", s.handleStats)

		r.Get("/api/admin/users", s.handleListUsers)
		r.Put("/api/admin/users/{id}/toggle", s.handleToggleUser)
	})

	return r
}

// requestLogger logs each request and counts it by route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		log.Printf("%s %s %d %s %s", r.Method, r.URL.Path, status, time.Since(start).Round(time.Microsecond), r.RemoteAddr)
	})
}

// cors allows browser clients from any origin; authentication is by bearer
// token, never by cookie.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		log.Printf("health check: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
