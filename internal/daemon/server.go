// Package daemon serves the phone-facing HTTP API: read the resolved pane's
// output, type into it, list tracked instances and switch between them.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/epinadev/claude-remote-ui/internal/api"
	"github.com/epinadev/claude-remote-ui/internal/config"
	"github.com/epinadev/claude-remote-ui/internal/gateway"
	"github.com/epinadev/claude-remote-ui/internal/model"
	"github.com/epinadev/claude-remote-ui/internal/registry"
	"github.com/epinadev/claude-remote-ui/internal/resolver"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxRequestBody        = 64 << 10
)

type Options struct {
	// Addr overrides cfg.Server host:port.
	Addr           string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Server struct {
	cfg         config.Config
	gw          gateway.SessionGateway
	reg         *registry.Registry
	res         *resolver.Resolver
	logger      *slog.Logger
	addr        string
	httpSrv     *http.Server
	instanceID  string
	mu          sync.Mutex
	listener    net.Listener
	lock        *flock.Flock
	shutdown    sync.Once
	shutdownErr error
}

func NewServer(cfg config.Config, gw gateway.SessionGateway, reg *registry.Registry, res *resolver.Resolver, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	addr := opts.Addr
	if addr == "" {
		addr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}
	s := &Server{
		cfg:        cfg,
		gw:         gw,
		reg:        reg,
		res:        res,
		logger:     logger.With("component", "http"),
		addr:       addr,
		instanceID: uuid.NewString(),
	}
	s.httpSrv = &http.Server{
		Handler:           s.routes(opts.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) routes(timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)
	r.Use(chimw.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, model.CodeBadRequest, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, model.CodeBadRequest, "method not allowed")
	})

	r.Get("/", s.indexHandler)
	r.Get("/health", s.healthHandler)
	r.Route("/api", func(r chi.Router) {
		r.Get("/output", s.outputHandler)
		r.Post("/send", s.sendHandler)
		r.Get("/instances", s.instancesHandler)
		r.Post("/switch", s.switchHandler)
	})
	return r
}

// Start listens on the configured TCP address and serves until ctx is
// cancelled. Only one server per state dir may run.
func (s *Server) Start(ctx context.Context) error {
	if err := s.acquireLock(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "instance", s.instanceID)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.mu.Lock()
		s.listener = nil
		s.mu.Unlock()
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
		}
	})
	return s.shutdownErr
}

func (s *Server) acquireLock() error {
	dir := s.cfg.Registry.StateDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, "server.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock server: %w", err)
	}
	if !ok {
		return fmt.Errorf("server already running (lock %s held)", lock.Path())
	}
	s.mu.Lock()
	s.lock = lock
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	lock := s.lock
	s.lock = nil
	s.mu.Unlock()
	if lock == nil {
		return nil
	}
	return lock.Unlock()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "elapsed", time.Since(start))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, api.ErrorResponse{
		Success: false,
		Error:   api.APIError{Code: code, Message: msg},
	})
}

// writeFailure maps err onto a status and error code.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	code := model.ErrorCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "code", code, "err", err)
	}
	s.writeError(w, status, code, err.Error())
}

func statusFor(code string) int {
	switch code {
	case model.CodeBadRequest:
		return http.StatusBadRequest
	case model.CodeUnknownInstance, model.CodePaneNotFound:
		return http.StatusNotFound
	case model.CodeNoActiveSession:
		return http.StatusConflict
	case model.CodeGatewayTimeout:
		return http.StatusGatewayTimeout
	case model.CodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads one strict JSON object from the body. Unknown fields and
// trailing data are rejected as model.ErrBadRequest.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", model.ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after json body", model.ErrBadRequest)
	}
	return nil
}

func paneParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("pane"))
}
