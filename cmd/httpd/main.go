// Command httpd serves files from a single root directory over HTTP/1.1 and
// answers STATS and SHUTDOWN on a separate control port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iliastsa/httpd/server"
)

// loggerWrapper adapts a zerolog.Logger to the httpd.Logger interface.
type loggerWrapper struct {
	l log.Logger
}

func (w *loggerWrapper) Print(v ...any) {
	w.l.Info().Msg(fmt.Sprint(v...))
}

func (w *loggerWrapper) Printf(format string, v ...any) {
	w.l.Info().Msgf(format, v...)
}

func (w *loggerWrapper) Debugf(format string, v ...any) {
	w.l.Debug().Msgf(format, v...)
}

func (w *loggerWrapper) Infof(format string, v ...any) {
	w.l.Info().Msgf(format, v...)
}

func (w *loggerWrapper) Warnf(format string, v ...any) {
	w.l.Warn().Msgf(format, v...)
}

func (w *loggerWrapper) Errorf(format string, v ...any) {
	w.l.Error().Msgf(format, v...)
}

func newLogger(debug, jsonOutput bool) *loggerWrapper {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}

	var l log.Logger
	if jsonOutput {
		l = log.New(os.Stderr)
	} else {
		l = log.New(log.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return &loggerWrapper{l: l.Level(level).With().Timestamp().Logger()}
}

type options struct {
	configPath  string
	servicePort int
	controlPort int
	workers     int
	root        string
	metricsAddr string
	debug       bool
	jsonLog     bool
}

func parseFlags(args []string) (*options, error) {
	var o options

	fs := flag.NewFlagSet("httpd", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	fs.IntVar(&o.servicePort, "p", 0, "HTTP service port")
	fs.IntVar(&o.controlPort, "c", 0, "control channel port")
	fs.IntVar(&o.workers, "t", 0, "number of worker threads")
	fs.StringVar(&o.root, "d", "", "root directory to serve")
	fs.StringVar(&o.metricsAddr, "metrics", "", "address for the Prometheus /metrics endpoint")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&o.jsonLog, "json", false, "log JSON instead of console output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	return &o, nil
}

// buildConfig loads the optional config file and applies flag overrides.
func buildConfig(o *options) (*server.ServerConfig, error) {
	cfg := &server.ServerConfig{}
	if o.configPath != "" {
		loaded, err := server.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if o.servicePort > 0 {
		cfg.ServiceAddr = ":" + strconv.Itoa(o.servicePort)
	}
	if o.controlPort > 0 {
		cfg.ControlAddr = ":" + strconv.Itoa(o.controlPort)
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	if o.root != "" {
		cfg.RootDir = o.root
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	if o.debug {
		cfg.Debug = true
	}

	if cfg.ServiceAddr == "" || cfg.ControlAddr == "" || cfg.RootDir == "" {
		return nil, fmt.Errorf("%w: -p, -c and -d (or their config keys) are required", server.ErrInvalidConfig)
	}

	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(o)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Debug, o.jsonLog)
	cfg.Logger = logger

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	// A SHUTDOWN command ends Run without cancelling ctx, so the metrics
	// endpoint follows the server through this derived context.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return srv.Run(gctx)
	})

	if cfg.MetricsAddr != "" {
		reg := srv.Registry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

		ms := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.HTTPTimeout,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}

		g.Go(func() error {
			logger.Infof("metrics on %s", cfg.MetricsAddr)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer done()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	snap := srv.Stats()
	logger.Infof("stopped after serving %d pages, %d bytes", snap.Pages, snap.Bytes)

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "httpd: %v\n", err)
		stop()
		os.Exit(1)
	}
}
