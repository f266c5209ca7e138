package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"civicledger/core/auth"
	"civicledger/core/ledger"
)

// TLSConfig enables HTTPS when both paths are set.
type TLSConfig struct {
	CertPath string
	KeyPath  string
}

func (t TLSConfig) enabled() bool { return t.CertPath != "" && t.KeyPath != "" }

// Server is the gateway in front of one channel node.
type Server struct {
	node       *ledger.Node
	authorizer *auth.Authorizer
	log        *zap.Logger
	limiter    *RateLimiter
	started    time.Time

	ListenAddr    string
	TLS           TLSConfig
	ShutdownGrace time.Duration
}

type Option func(*Server)

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log.Named("gateway") }
}

func WithRateLimiter(l *RateLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

func WithTLS(cfg TLSConfig) Option {
	return func(s *Server) { s.TLS = cfg }
}

func WithShutdownGrace(d time.Duration) Option {
	return func(s *Server) { s.ShutdownGrace = d }
}

func NewServer(node *ledger.Node, authorizer *auth.Authorizer, listenAddr string, opts ...Option) *Server {
	s := &Server{
		node:          node,
		authorizer:    authorizer,
		log:           zap.NewNop(),
		started:       time.Now(),
		ListenAddr:    listenAddr,
		ShutdownGrace: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed gateway with rate limiting and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and status
	mux.HandleFunc("GET /nodehealth", s.HandleNodeHealth)
	mux.HandleFunc("GET /health/liveness", s.HandleLiveness)
	mux.HandleFunc("GET /health/readiness", s.HandleReadiness)
	mux.HandleFunc("GET /status", s.HandleStatus)

	// Contracts
	mux.HandleFunc("POST /api/v1/contracts/{contract}/submit/{fn}", s.authenticated("submit", s.handleSubmit))
	mux.HandleFunc("POST /api/v1/contracts/{contract}/evaluate/{fn}", s.authenticated("evaluate", s.handleEvaluate))
	mux.HandleFunc("GET /api/v1/contracts", s.authenticated("contracts", s.handleContracts))

	// Ledger
	mux.HandleFunc("GET /api/v1/blocks", s.authenticated("blocks", s.handleListBlocks))
	mux.HandleFunc("GET /api/v1/blocks/{number}", s.authenticated("blocks", s.handleGetBlock))
	mux.HandleFunc("GET /api/v1/events", s.authenticated("events", s.handleEvents))

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.rateLimited(h)
	}
	return s.logged(h)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		if s.TLS.enabled() {
			s.log.Info("HTTPS enabled", zap.String("addr", s.ListenAddr), zap.String("cert", s.TLS.CertPath))
			errCh <- srv.ListenAndServeTLS(s.TLS.CertPath, s.TLS.KeyPath)
			return
		}
		s.log.Warn("HTTPS disabled, serving HTTP only", zap.String("addr", s.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownGrace)
	defer cancel()
	s.log.Info("shutting down gateway")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if s.limiter.IsBanned(host) {
			writeProblem(w, http.StatusForbidden, "FORBIDDEN", "client is banned")
			return
		}
		if !s.limiter.Allow(host) {
			s.log.Warn("rate limit exceeded", zap.String("client", host))
			writeProblem(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
