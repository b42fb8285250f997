package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"vidproc/internal/logging"
	"vidproc/internal/pipeline"
	"vidproc/internal/status"
)

const maxBodyBytes = 1 << 20

// errShuttingDown answers notifications that arrive after shutdown began and is
// recorded on async jobs that never got a worker slot.
var errShuttingDown = errors.New("server shutting down")

// Processor admits and runs jobs.
type Processor interface {
	Admit(ctx context.Context, job pipeline.Job) (*pipeline.Admission, pipeline.Outcome, error)
	Run(ctx context.Context, adm *pipeline.Admission) (pipeline.Outcome, error)
	Release(ctx context.Context, adm *pipeline.Admission, reason error)
}

// Options configures the endpoint.
type Options struct {
	Bind              string
	Async             bool
	MaxConcurrentJobs int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server is the notification endpoint.
type Server struct {
	opts   Options
	proc   Processor
	store  status.Store
	logger *slog.Logger
	router *mux.Router

	slots    chan struct{}
	jobs     sync.WaitGroup
	jobsCtx  context.Context
	stopJobs context.CancelFunc
	stopping chan struct{}
	stopOnce sync.Once
	trackMu  sync.Mutex

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New builds the endpoint. Jobs run on a context owned by the server, so a
// client disconnect never aborts a job mid-flight.
func New(proc Processor, store status.Store, opts Options, logger *slog.Logger) *Server {
	if opts.MaxConcurrentJobs < 1 {
		opts.MaxConcurrentJobs = 1
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 5 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	s := &Server{
		opts:     opts,
		proc:     proc,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "intake"),
		slots:    make(chan struct{}, opts.MaxConcurrentJobs),
		jobsCtx:  jobsCtx,
		stopJobs: stopJobs,
		stopping: make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.accessLogMiddleware)
	r.HandleFunc("/process-video", s.handleProcessVideo).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/videos/{id}", s.handleGetVideo).Methods(http.MethodGet)
	r.HandleFunc("/videos/{id}", s.handleHeadVideo).Methods(http.MethodHead)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound listen address once Start has run.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("intake listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("intake server error", logging.Error(err))
		}
	}()
	s.logger.Info("intake listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("async", s.opts.Async),
		logging.Int("max_concurrent_jobs", s.opts.MaxConcurrentJobs),
	)
	return nil
}

// Serve runs the endpoint until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Shutdown()
}

// Shutdown stops accepting requests, waits for in-flight requests and async
// jobs for up to the shutdown timeout, then cancels whatever is still running.
func (s *Server) Shutdown() error {
	s.trackMu.Lock()
	s.stopOnce.Do(func() { close(s.stopping) })
	s.trackMu.Unlock()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("intake shutdown: %w", err)
		}
	}

	if !s.Drain(shutdownCtx) {
		logging.WarnWithContext(s.logger, "jobs still running at shutdown deadline; cancelling", "shutdown_timeout",
			logging.Duration("timeout", s.opts.ShutdownTimeout),
			logging.String(logging.FieldImpact, "cancelled jobs are recorded as failed"),
		)
		s.stopJobs()
		s.jobs.Wait()
	}
	s.stopJobs()
	return shutdownErr
}

// Drain waits for tracked jobs and reports whether they all finished before ctx ended.
func (s *Server) Drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// track counts a new job unless shutdown has begun. Closing stopping under
// the same mutex keeps Add from racing the final Wait.
func (s *Server) track() bool {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	select {
	case <-s.stopping:
		return false
	default:
	}
	s.jobs.Add(1)
	return true
}

// acquire takes a worker slot, giving up when wait ends or the server stops.
func (s *Server) acquire(wait <-chan struct{}) bool {
	select {
	case s.slots <- struct{}{}:
		return true
	case <-wait:
		return false
	case <-s.stopping:
		return false
	}
}

func (s *Server) release() {
	<-s.slots
}

func (s *Server) jobContext(r *http.Request) context.Context {
	ctx := s.jobsCtx
	if id := requestID(r); strings.TrimSpace(id) != "" {
		ctx = withRequestID(ctx, id)
	}
	return ctx
}
