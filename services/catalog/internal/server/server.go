package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/cors"

	"bookfinder/internal/ratelimit"
	"bookfinder/internal/util"
	"bookfinder/pkg/domain"
	"bookfinder/services/catalog/internal/app"
	"bookfinder/services/catalog/internal/googlebooks"
)

const (
	msgQueryRequired     = "Query parameter 'q' is required"
	msgInvalidPagination = "Invalid pagination parameters"
	msgBookNotFound      = "Book not found"
	msgUpstreamTimeout   = "Upstream timeout from Google Books"
	msgRateLimited       = "Too many requests. Please try again later."
)

// Catalog is the read surface the handlers serve.
type Catalog interface {
	Search(ctx context.Context, p googlebooks.SearchParams) domain.SearchResult
	Book(ctx context.Context, id string) (domain.Book, error)
	ClearSearches(ctx context.Context) error
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Config configures the HTTP server.
type Config struct {
	App            Catalog
	CORSOrigins    []string
	GlobalLimiter  Limiter
	SearchLimiter  Limiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the catalog API.
type Server struct {
	app           Catalog
	mux           *http.ServeMux
	corsOrigins   []string
	globalLimiter Limiter
	searchLimiter Limiter
	trusted       *util.TrustedProxies
}

func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.GlobalLimiter == nil || cfg.SearchLimiter == nil {
		return nil, errors.New("rate limiters are required")
	}
	s := &Server{
		app:           cfg.App,
		mux:           http.NewServeMux(),
		corsOrigins:   cfg.CORSOrigins,
		globalLimiter: cfg.GlobalLimiter,
		searchLimiter: cfg.SearchLimiter,
		trusted:       cfg.TrustedProxies,
	}
	s.routes()
	return s, nil
}

// Router returns the HTTP handler with request id, access log, security
// headers, CORS and the per-client quota applied.
func (s *Server) Router() http.Handler {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return util.WithRequestID(util.WithRequestLog("catalog", util.WithSecurityHeaders(corsHandler(s.limited(s.globalLimiter, s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /api/books/search", s.limited(s.searchLimiter, http.HandlerFunc(s.handleSearch)))
	s.mux.HandleFunc("GET /api/books/{id}", s.handleBook)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.ClearSearches(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Warn("search cache clear failed", "err", err)
	} else {
		util.LoggerFromContext(r.Context()).Info("search cache cleared")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, msgQueryRequired)
		return
	}
	start, limit, ok := parsePagination(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidPagination)
		return
	}
	res := s.app.Search(r.Context(), googlebooks.SearchParams{Query: q, StartIndex: start, MaxResults: limit})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.app.Book(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, book)
	case errors.Is(err, app.ErrBookIDRequired), googlebooks.IsNotFound(err):
		writeError(w, http.StatusNotFound, msgBookNotFound)
	case googlebooks.IsTimeout(err):
		writeError(w, http.StatusGatewayTimeout, msgUpstreamTimeout)
	default:
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Upstream error: %v", err))
	}
}

func parsePagination(r *http.Request) (start, limit int, ok bool) {
	start, limit = 0, googlebooks.DefaultMaxResults
	var err error
	if raw := r.URL.Query().Get("start"); raw != "" {
		if start, err = strconv.Atoi(strings.TrimSpace(raw)); err != nil || start < 0 {
			return 0, 0, false
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(strings.TrimSpace(raw)); err != nil || limit < 1 || limit > googlebooks.MaxResultsLimit {
			return 0, 0, false
		}
	}
	return start, limit, true
}

// limited applies limiter per client IP. Limiter failures deny.
func (s *Server) limited(limiter Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ip := util.ClientIP(r, s.trusted)
		d, err := limiter.Allow(r.Context(), ip)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "err", err)
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			util.LoggerFromContext(r.Context()).Warn("security_event",
				"event", "catalog.rate_limit",
				"outcome", "rate_limited",
				"path", r.URL.Path,
				"method", r.Method,
				"ip", ip,
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter(time.Now()).Seconds())))
			writeError(w, http.StatusTooManyRequests, msgRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
