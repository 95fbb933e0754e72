package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliastsa/httpd"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle stage of a Server.
type State int32

const (
	// StateInitializing lasts from NewServer until Start binds the listeners.
	StateInitializing State = iota
	// StateServing means the dispatch loop accepts connections.
	StateServing
	// StateDraining means listeners are closed and queued tasks are finishing.
	StateDraining
	// StateStopped means every worker has exited.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	// ErrServerStarted is returned by Start on a server that already left
	// StateInitializing.
	ErrServerStarted = errors.New("server already started")
	// ErrServerNotStarted is returned by Run before a successful Start.
	ErrServerNotStarted = errors.New("server not started")
)

// Option configures a Server.
type Option func(*Server)

// WithHandler replaces the static file handler for service connections.
func WithHandler(h Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.handler = h
		}
	}
}

// WithRegistry registers the server metrics with reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// Server accepts HTTP connections on the service listener and hands each one
// to the worker pool, and serves administrative commands on the control
// listener from its own dispatch loop.
type Server struct {
	config   *ServerConfig        // server configuration options.
	root     string               // resolved root directory.
	handler  Handler              // serves service connections on workers.
	pool     *httpd.WorkerPool    // executes connection tasks.
	stats    *Stats               // served pages and bytes.
	metrics  *Metrics             // Prometheus collectors.
	registry *prometheus.Registry // registry holding metrics.

	service      net.Listener  // HTTP listener.
	control      net.Listener  // control channel listener.
	serviceConns chan net.Conn // accepted service connections.
	controlConns chan net.Conn // accepted control connections.
	acceptErrs   chan error    // fatal accept errors.
	acceptors    errgroup.Group
	quit         chan struct{} // closed by Stop.

	startedAt time.Time
	state     atomic.Int32
	startMu   sync.Mutex
	stopOnce  sync.Once
	stopErr   error
}

// NewServer validates cfg, resolves the root directory and starts the worker
// pool. Listeners are bound by Start.
func NewServer(cfg *ServerConfig, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	root, err := resolveRoot(cfg.RootDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:       cfg,
		root:         root,
		stats:        &Stats{},
		metrics:      newMetrics(),
		serviceConns: make(chan net.Conn),
		controlConns: make(chan net.Conn),
		acceptErrs:   make(chan error, 2),
		quit:         make(chan struct{}),
	}
	s.handler = &fileHandler{root: root, config: cfg, stats: s.stats, metrics: s.metrics}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	s.pool, err = httpd.NewWorkerPool(cfg.Workers,
		httpd.WithLogger(cfg.Logger),
		httpd.WithInactiveCallback(s.poolIdle),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := s.metrics.register(s.registry, s.pool); err != nil {
		s.pool.Destroy()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	s.state.Store(int32(StateInitializing))

	return s, nil
}

// Start binds both listeners and starts one acceptor goroutine per listener.
func (s *Server) Start() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.State() != StateInitializing {
		return ErrServerStarted
	}

	service, err := net.Listen("tcp", s.config.ServiceAddr)
	if err != nil {
		return fmt.Errorf("listen service %s: %w", s.config.ServiceAddr, err)
	}

	control, err := net.Listen("tcp", s.config.ControlAddr)
	if err != nil {
		_ = service.Close()
		return fmt.Errorf("listen control %s: %w", s.config.ControlAddr, err)
	}

	s.service, s.control = service, control
	s.startedAt = time.Now()

	s.acceptors.Go(func() error { return s.acceptLoop(service, s.serviceConns, listenerService) })
	s.acceptors.Go(func() error { return s.acceptLoop(control, s.controlConns, listenerControl) })

	s.state.Store(int32(StateServing))
	s.config.Logger.Infof("serving %s on %v, control on %v, %d workers",
		s.root, service.Addr(), control.Addr(), s.config.Workers)

	return nil
}

// acceptLoop hands accepted connections to the dispatch loop until the
// listener is closed.
func (s *Server) acceptLoop(l net.Listener, out chan<- net.Conn, name string) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)

				continue
			}
			s.logf("%s accept error: %v", name, err)

			err = fmt.Errorf("%s accept: %w", name, err)
			select {
			case s.acceptErrs <- err:
			default:
			}

			return err
		}

		s.metrics.connections.WithLabelValues(name).Inc()

		select {
		case out <- conn:
		case <-s.quit:
			_ = conn.Close()
			return nil
		}
	}
}

// Run is the dispatch loop. It returns after a SHUTDOWN command, ctx
// cancellation, Stop or a fatal accept error, and always leaves the server
// stopped.
func (s *Server) Run(ctx context.Context) error {
	if s.State() != StateServing {
		return ErrServerNotStarted
	}

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			s.config.Logger.Infof("context done, shutting down: %v", ctx.Err())
			break loop

		case <-s.quit:
			break loop

		case err := <-s.acceptErrs:
			runErr = err
			break loop

		case <-ticker.C:
			s.supervise()

		case conn := <-s.serviceConns:
			s.dispatch(conn)

		case conn := <-s.controlConns:
			if s.handleControl(conn) {
				break loop
			}
		}
	}

	return errors.Join(runErr, s.Stop())
}

// dispatch submits a service connection to the pool. A refused task only
// costs that connection.
func (s *Server) dispatch(conn net.Conn) {
	sc := newServerConn(s, conn)

	s.metrics.poolIdle.Set(0)
	if err := s.pool.Add(&connTask{sc: sc, handler: s.handler}); err != nil {
		s.metrics.submitFailures.Inc()
		s.logf("[%s] task submission failed: %v", sc.ID, err)
		sc.Close()
	}
}

// supervise revives dead workers on the health tick.
func (s *Server) supervise() {
	if n := s.pool.Supervise(); n > 0 {
		s.metrics.revivedWorkers.Add(float64(n))
		s.config.Logger.Warnf("health check revived %d workers", n)
	}
}

// poolIdle runs with the pool's queue lock held.
func (s *Server) poolIdle() {
	s.metrics.poolIdle.Set(1)
	s.config.Logger.Debugf("worker pool idle")
}

// Stop closes both listeners, waits for the acceptors, then drains and joins
// the worker pool. It is safe to call more than once and from any goroutine.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.startMu.Lock()
		defer s.startMu.Unlock()

		s.state.Store(int32(StateDraining))
		close(s.quit)

		var errs []error
		for _, l := range []net.Listener{s.service, s.control} {
			if l == nil {
				continue
			}
			if err := l.Close(); err != nil && !isClosedErr(err) {
				errs = append(errs, err)
			}
		}

		done := make(chan error, 1)
		go func() { done <- s.acceptors.Wait() }()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-time.After(s.config.ShutdownTimeout):
			s.logf("timeout waiting for acceptors to exit")
		}

		s.pool.Destroy()
		s.state.Store(int32(StateStopped))
		s.config.Logger.Infof("server stopped, %+v", s.stats.Snapshot())

		s.stopErr = errors.Join(errs...)
	})

	return s.stopErr
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the service listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.service == nil {
		return nil
	}

	return s.service.Addr()
}

// ControlAddr returns the control listener address, or nil before Start.
func (s *Server) ControlAddr() net.Addr {
	if s.control == nil {
		return nil
	}

	return s.control.Addr()
}

// Root returns the resolved root directory.
func (s *Server) Root() string {
	return s.root
}

// Stats returns the served pages and bytes.
func (s *Server) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// PoolStats returns the worker pool statistics.
func (s *Server) PoolStats() httpd.PoolStats {
	return s.pool.Stats()
}

// Registry returns the registry holding the server metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) logf(format string, v ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Printf(format, v...)
	}
}

// connTask runs a Handler on a pool worker and closes the connection when
// the pool releases it.
type connTask struct {
	sc      *ServerConn
	handler Handler
}

func (t *connTask) Execute() {
	t.handler.ServeConn(t.sc)
}

func (t *connTask) Release() {
	t.sc.Close()
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
