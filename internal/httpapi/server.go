// Package httpapi exposes the tracker as a JSON API.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/cache"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
)

type Server struct {
	http.Server
	tracker  *services.Tracker
	limiter  *ratelimit.Limiter
	clientIP *security.ClientIPResolver

	// Summary responses are recomputed from the whole dataset on every
	// read, so they are worth caching between mutations.
	summaryCache *cache.LRUCache[summaryResponse]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, tracker *services.Tracker) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server:       http.Server{Addr: addr},
		tracker:      tracker,
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		clientIP:     security.NewClientIPResolver(),
		summaryCache: cache.NewLRUCache[summaryResponse](16, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Reconciliation passes triggered by the retry loop or a reconnect
	// install a merged snapshot without any handler running, so the cached
	// summary has to be dropped from the sync path too.
	tracker.OnSyncCompleted(s.invalidateDerived)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/incomes", s.handleListIncomes)
	mux.HandleFunc("POST /api/incomes", s.handleCreateIncome)
	mux.HandleFunc("PUT /api/incomes/{id}", s.handleUpdateIncome)
	mux.HandleFunc("DELETE /api/incomes/{id}", s.handleDeleteIncome)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/segments", s.handleListSegments)
	mux.HandleFunc("POST /api/segments", s.handleCreateSegment)
	mux.HandleFunc("PUT /api/segments/{id}", s.handleUpdateSegment)
	mux.HandleFunc("DELETE /api/segments/{id}", s.handleDeleteSegment)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/sync", s.handleTriggerSync)
	mux.HandleFunc("POST /api/online", s.handleSetOnline)

	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/export/xlsx", s.handleExportXLSX)

	traced := trace.NewMiddleware(s.clientIP.ExtractClientIP)
	withLogger := applog.Middleware(applog.Default(applog.ComponentHTTP))
	s.Handler = withLogger(traced.Middleware(security.NewHeadersMiddleware(security.APIHeadersConfig()).Middleware(s.withRateLimit(mux))))

	return s
}

// withRateLimit throttles mutating requests per client IP.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			if !s.limiter.Allow(s.clientIP.ExtractClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the initial dataset load finished.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.tracker.IsLoading() {
		writeError(w, r, http.StatusServiceUnavailable, "still loading")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the HTTP server and the cache janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// invalidateDerived drops cached responses after a mutation.
func (s *Server) invalidateDerived() {
	s.summaryCache.Delete(s.tracker.Scope())
}
