package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khiwniti/beta-bitebase/internal/logging"
	"github.com/khiwniti/beta-bitebase/internal/metrics"
)

const Version = "1.0.0"

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"`
	Service   string                   `json:"service"`
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime"`
	Services  map[string]ServiceHealth `json:"services"`
	Timestamp string                   `json:"timestamp"`
}

// ServiceHealth represents a dependency health status
type ServiceHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Config holds listen settings for one service
type Config struct {
	Name           string
	Host           string
	Port           int
	AllowedOrigins []string
}

// Server is one BiteBase HTTP surface
type Server struct {
	name       string
	mux        *http.ServeMux
	httpServer *http.Server
	origins    map[string]bool
	checks     map[string]HealthCheck
	onShutdown []func(ctx context.Context)
	startTime  time.Time
	logger     *slog.Logger
}

// New creates a server with /health and /metrics registered
func New(cfg Config) *Server {
	s := &Server{
		name:      cfg.Name,
		mux:       http.NewServeMux(),
		origins:   make(map[string]bool, len(cfg.AllowedOrigins)),
		checks:    make(map[string]HealthCheck),
		startTime: time.Now(),
		logger:    logging.WithComponent(cfg.Name + "-server"),
	}
	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = true
	}

	s.HandleFunc("GET /health", s.healthHandler)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handle registers an instrumented handler for a ServeMux pattern
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, s.instrument(pattern, h))
}

// HandleFunc registers an instrumented handler function
func (s *Server) HandleFunc(pattern string, h http.HandlerFunc) {
	s.Handle(pattern, h)
}

// AddCheck adds a dependency to the health report
func (s *Server) AddCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// OnShutdown registers a hook that runs after the listener stops
func (s *Server) OnShutdown(fn func(ctx context.Context)) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Handler returns the routed handler wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	return s.cors(s.mux)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server and runs shutdown hooks
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	for _, fn := range s.onShutdown {
		fn(ctx)
	}
	s.logger.Info("HTTP server stopped")
	return err
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	services := map[string]ServiceHealth{
		"http": {Healthy: true, Message: "HTTP server running"},
	}
	status := "healthy"
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			services[name] = ServiceHealth{Healthy: false, Message: err.Error()}
			status = "degraded"
			continue
		}
		services[name] = ServiceHealth{Healthy: true}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Service:   s.name,
		Version:   Version,
		Uptime:    time.Since(s.startTime).String(),
		Services:  services,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.origins["*"] || s.origins[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	endpoint := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		endpoint = pattern[i+1:]
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RequestDuration.WithLabelValues(s.name, r.Method, endpoint).Observe(time.Since(start).Seconds())
		metrics.RequestCount.WithLabelValues(s.name, r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// statusRecorder captures the response status. It passes Hijack through so
// WebSocket upgrades keep working.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
}

// queryInt parses a positive integer query parameter, or returns def.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// background tracks goroutines a handler leaves running after it responds.
type background struct {
	wg sync.WaitGroup
}

func (b *background) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// Wait blocks until all tracked goroutines return or ctx ends.
func (b *background) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
