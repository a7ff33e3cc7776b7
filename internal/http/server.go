// Package http serves the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	applog "pocketmoney/internal/log"
	"pocketmoney/internal/middleware/ratelimit"
	"pocketmoney/internal/middleware/security"
	"pocketmoney/internal/middleware/trace"
)

type Server struct {
	http.Server
	ledger   Ledger
	logger   *applog.Logger
	audit    *applog.StructuredLogger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
}

type Options struct {
	Logger         *applog.Logger
	RateLimitRPM   int
	TrustedProxies []string
}

func NewServer(addr string, ledger Ledger, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector(logger)
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		ledger:   ledger,
		logger:   logger,
		audit:    applog.NewStructuredLogger(logger.WithComponent(applog.ComponentLedger)),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM}),
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ClientIP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /balance", s.handleBalance)

	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /expenses", s.handleListExpenses)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("POST /gifts", s.handleCreateGift)
	mux.HandleFunc("GET /gifts", s.handleListGifts)
	mux.HandleFunc("DELETE /gifts/{id}", s.handleDeleteGift)

	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("POST /settings", s.handleUpdateSettings)
	mux.HandleFunc("POST /settings/reset", s.handleResetSettings)
	mux.HandleFunc("GET /settings/history", s.handleSettingsHistory)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// middleware wraps the mux, outermost first: security headers, probe
// detection, tracing, request logger, rate limit.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ClientIP(r),
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})(next)
	h = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = applog.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(h)
	return security.HeadersMiddleware(security.DefaultHeadersConfig())(h)
}

// Shutdown stops the rate limiter janitor, then drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	stats := s.tracer.GetMetrics()
	s.logger.Info("HTTP server shutting down",
		"requests", stats.TotalRequests,
		"failed", stats.FailedRequests,
		"rate_limited", s.limiter.Stats().Rejected,
		"suspicious", s.detector.SuspiciousCount())
	return s.Server.Shutdown(ctx)
}
