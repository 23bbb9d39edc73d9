package watcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/oshokin/server-updater/internal/api/grpc/health"
	"github.com/oshokin/server-updater/internal/config"
	"github.com/oshokin/server-updater/internal/logger"
	"github.com/oshokin/server-updater/internal/service/lock"
	"github.com/oshokin/server-updater/internal/service/runner"
)

var errNoTargets = errors.New("no targets configured")

// Options controls the watch daemon.
type Options struct {
	// ConfigPath specifies the path to the settings file.
	ConfigPath string
	// ListenAddress overrides the configured health endpoint address.
	ListenAddress string
	// Interval overrides the configured delay between rounds.
	Interval time.Duration
}

// Watcher runs rounds over the configured targets and reports each outcome.
type Watcher struct {
	env    *runner.Env
	health *health.Server
}

// New returns a watcher reporting to the health server.
func New(env *runner.Env, healthServer *health.Server) *Watcher {
	for _, target := range env.Config.Targets {
		healthServer.Track(target.Project, target.Output)
	}

	return &Watcher{
		env:    env,
		health: healthServer,
	}
}

// Round updates every target once and publishes the outcomes.
func (w *Watcher) Round(ctx context.Context) []runner.Result {
	results := w.env.RunAll(ctx, w.env.Config.Targets)

	for _, result := range results {
		w.health.Report(result.Target.Project, result.Target.Output, result.Outcome)
	}

	return results
}

// Loop runs a round immediately and then every interval until ctx is done.
func (w *Watcher) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		w.Round(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Run starts the health endpoint and the update loop and blocks until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "watcher")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if len(settings.Targets) == 0 {
		return errNoTargets
	}

	listenAddress := settings.Serve.ListenAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	interval := settings.Serve.Interval.Std()
	if opts.Interval > 0 {
		interval = opts.Interval
	}

	env, err := runner.NewEnv(ctx, settings)
	if err != nil {
		return err
	}

	held, err := lock.Acquire(ctx, settings.WorkingDirectory)
	if err != nil {
		return err
	}

	defer func() {
		_ = held.Release()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)

	logger.InfoKV(ctx, "Updater daemon listening",
		"listen_address", lis.Addr().String(), "interval", interval.String(), "targets", len(settings.Targets))

	w := New(env, healthServer)

	loopDone := make(chan struct{})

	go func() {
		defer close(loopDone)

		w.Loop(ctx, interval)
	}()

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err = grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	<-loopDone
	logger.Info(ctx, "Updater daemon stopped")

	return nil
}
