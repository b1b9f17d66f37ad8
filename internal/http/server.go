package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"sales/internal/ledger"
	"sales/internal/log"
	"sales/internal/metrics"
	"sales/internal/session"
)

// Options configures the API server.
type Options struct {
	Ledger   *ledger.Ledger
	Sessions *session.Store
	// Ready reports whether the period store accepts live writes.
	Ready func() bool
	Logger *log.Logger

	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledger     *ledger.Ledger
	sessions   *session.Store
	ready      func() bool
	logger     *log.Logger
	structured *log.StructuredLogger
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	ready := opts.Ready
	if ready == nil {
		ready = func() bool { return true }
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:     opts.Ledger,
		sessions:   opts.Sessions,
		ready:      ready,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
	}
	s.Handler = s.routes(opts)
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	}))
	r.Use(s.requestLogging)
	r.Use(middleware.Recoverer)
	r.Use(NewHeadersMiddleware(DefaultHeadersConfig()).Middleware)

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", OperatorHeader},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	if opts.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
	}

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{operatorID}", s.handleGetSession)
		r.Delete("/sessions/{operatorID}", s.handleEndSession)

		r.Post("/sales", s.handleRecordSale)

		r.Get("/reports/{granularity}/{label}", s.handleReport)
		r.Delete("/reports/{granularity}/{label}", s.handleResetPeriod)
		r.Get("/income/{granularity}/{label}", s.handleIncome)
		r.Get("/periods/{granularity}", s.handlePeriods)
		r.Post("/exports/{granularity}/{label}", s.handleExport)
	})

	return r
}

// requestLogging logs the start and completion of every request.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := clientIP(r)
		ctx := r.Context()

		s.structured.LogHTTPStart(ctx, r, clientIP)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.structured.LogHTTPEnd(ctx, r, status, time.Since(start).Milliseconds(), clientIP)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		http.Error(w, "period store not open", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
