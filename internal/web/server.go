package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/hpungsan/plate/internal/config"
	"github.com/hpungsan/plate/internal/errors"
	"github.com/hpungsan/plate/internal/events"
	"github.com/hpungsan/plate/internal/ops"
	"github.com/hpungsan/plate/internal/telemetry"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// NewServer creates and configures the HTTP server for the plate JSON API.
// hub may be nil, in which case GET /ws is not registered.
func NewServer(deps ops.Deps, hub *events.Hub, cfg *config.Config, logger *log.Logger, version string) *http.Server {
	h := &Handlers{
		deps:    deps,
		cfg:     cfg,
		hub:     hub,
		logger:  telemetry.OrNop(logger),
		version: version,
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           h.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// routes builds the handler tree. Split from NewServer so tests can drive it
// through httptest without binding a port.
func (h *Handlers) routes() http.Handler {
	submit := submissionLimiter(h.cfg.HTTP.SubmitRatePerSecond, h.cfg.HTTP.SubmitBurst)

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /health", h.HandleHealth)

	mux.Handle("POST /jobs/image", submit(http.HandlerFunc(h.HandleSubmitImage)))
	mux.Handle("POST /jobs/text", submit(http.HandlerFunc(h.HandleSubmitText)))
	mux.Handle("POST /entries/{id}/fix", submit(http.HandlerFunc(h.HandleSubmitFix)))

	mux.HandleFunc("GET /jobs", h.HandleListPending)
	mux.HandleFunc("GET /jobs/{id}", h.HandleGetJob)
	mux.HandleFunc("GET /fix-jobs", h.HandleListFixJobs)
	mux.HandleFunc("GET /fix-jobs/{id}", h.HandleGetFixJob)

	mux.HandleFunc("GET /entries", h.HandleListEntries)
	mux.HandleFunc("POST /entries", h.HandleQuickAdd)
	mux.HandleFunc("GET /entries/{id}", h.HandleGetEntry)
	mux.HandleFunc("DELETE /entries/{id}", h.HandleDeleteEntry)

	if h.hub != nil {
		mux.HandleFunc("GET /ws", h.HandleEvents)
	}

	return securityHeaders(servertiming.Middleware(mux, nil))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// submissionLimiter throttles the submission routes with one shared token
// bucket. perSecond <= 0 disables throttling.
func submissionLimiter(perSecond float64, burst int) func(http.Handler) http.Handler {
	if perSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				renderError(w, errors.NewRateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM
// or when ctx is cancelled.
func Run(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	logger = telemetry.OrNop(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info().Str("addr", srv.Addr).Msg("plate API listening")

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, "[::]") || strings.HasPrefix(srv.Addr, ":") {
		logger.Warn().Str("addr", srv.Addr).Msg("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
