package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/oshokin/server-updater/internal/config"
	"github.com/oshokin/server-updater/internal/domain/update"
	"github.com/oshokin/server-updater/internal/logger"
	"github.com/oshokin/server-updater/internal/provider"
	"github.com/oshokin/server-updater/internal/provider/catalog"
	"github.com/oshokin/server-updater/internal/service/common"
	"github.com/oshokin/server-updater/internal/service/hook"
	"github.com/oshokin/server-updater/internal/service/lock"
	"github.com/oshokin/server-updater/internal/service/updater"
)

var (
	errNoTargets    = errors.New("no targets configured, pass a project or add targets to the settings")
	errUpdateFailed = errors.New("update failed")
)

// Options are inputs accepted by the update command.
type Options struct {
	// ConfigPath is the optional path to the settings file.
	ConfigPath string
	// Project selects an ad-hoc target instead of the configured ones.
	Project string
	// Version is the requested version of the ad-hoc target.
	Version string
	// Output is the target file of the ad-hoc target.
	Output string
	// ChecksumFile is the token file of the ad-hoc target.
	ChecksumFile string
	// CheckOnly disables downloads for every target.
	CheckOnly bool
	// WorkingDirectory overrides the configured working directory.
	WorkingDirectory string
	// Progress observes artifact downloads.
	Progress updater.ProgressFunc
	// HTTPClient overrides the retrying client.
	HTTPClient *http.Client
}

// Result is the outcome of one target.
type Result struct {
	// Target is the validated target.
	Target config.Target
	// Outcome is the update outcome.
	Outcome update.Outcome
	// HookErr is the post-update hook failure, if any.
	HookErr error
}

// Failed reports whether the target was not brought up to date or its hook failed.
func (r Result) Failed() bool {
	return r.Outcome.IsError() || r.HookErr != nil
}

// Env is the state shared by update rounds.
type Env struct {
	// Config holds the validated settings.
	Config *config.Config
	// Registry maps project names to providers.
	Registry *provider.Registry
	// Client performs every upstream request.
	Client *http.Client
	// Progress observes artifact downloads.
	Progress updater.ProgressFunc
}

// NewEnv builds the registry and the HTTP client for the settings.
func NewEnv(ctx context.Context, cfg *config.Config) (*Env, error) {
	registry, err := catalog.NewRegistry(cfg.Jenkins)
	if err != nil {
		return nil, fmt.Errorf("register providers: %w", err)
	}

	return &Env{
		Config:   cfg,
		Registry: registry,
		Client:   common.NewHTTPClient(ctx, cfg.Timeout.Std()),
	}, nil
}

// Run loads the settings and updates the selected targets under the working directory lock.
func Run(ctx context.Context, opts *Options) ([]Result, error) {
	ctx = logger.WithName(ctx, "update")

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if len(cfg.Targets) == 0 {
		return nil, errNoTargets
	}

	env, err := NewEnv(ctx, cfg)
	if err != nil {
		return nil, err
	}

	env.Progress = opts.Progress
	if opts.HTTPClient != nil {
		env.Client = opts.HTTPClient
	}

	held, err := lock.Acquire(ctx, cfg.WorkingDirectory)
	if err != nil {
		return nil, err
	}

	defer func() {
		if releaseErr := held.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to release the update marker", "error", releaseErr)
		}
	}()

	results := env.RunAll(ctx, cfg.Targets)

	var errs []error

	for _, result := range results {
		if result.Outcome.IsError() {
			errs = append(errs, fmt.Errorf("%s: %s", result.Target.Project, result.Outcome))
		}

		if result.HookErr != nil {
			errs = append(errs, fmt.Errorf("%s hook: %w", result.Target.Project, result.HookErr))
		}
	}

	if len(errs) > 0 {
		return results, fmt.Errorf("%w: %w", errUpdateFailed, errors.Join(errs...))
	}

	return results, nil
}

// RunAll updates the targets one after another.
func (e *Env) RunAll(ctx context.Context, targets []config.Target) []Result {
	results := make([]Result, 0, len(targets))

	for _, target := range targets {
		results = append(results, e.RunTarget(ctx, target))
	}

	return results
}

// RunTarget updates one target and runs its hook after a successful download.
func (e *Env) RunTarget(ctx context.Context, target config.Target) Result {
	ctx = logger.WithFields(ctx, "project", target.Project, "output", target.Output)
	result := Result{Target: target}

	cfg, err := updater.NewConfig(target.Project,
		updater.WithVersion(target.Version),
		updater.WithOutputFile(target.Output),
		updater.WithWorkingDirectory(e.Config.WorkingDirectory),
		updater.WithChecksumFile(target.ChecksumFile),
		updater.WithCheckOnly(target.CheckOnly),
		updater.WithHTTPClient(e.Client),
		updater.WithProgress(e.Progress),
		updater.WithDebug(logger.Sink(ctx)),
	)
	if err != nil {
		result.Outcome = update.Failure(update.UnknownError, err)
		logOutcome(ctx, result.Outcome)

		return result
	}

	u, err := updater.New(e.Registry, cfg)
	if err != nil {
		result.Outcome = update.Failure(update.UnknownError, err)
		logOutcome(ctx, result.Outcome)

		return result
	}

	result.Outcome = u.Run(ctx)
	logOutcome(ctx, result.Outcome)

	if result.Outcome.Status == update.Success && target.Hook != "" {
		result.HookErr = e.runHook(ctx, target, cfg)
	}

	return result
}

func (e *Env) runHook(ctx context.Context, target config.Target, cfg *updater.Config) error {
	script := target.Hook
	if !filepath.IsAbs(script) {
		script = filepath.Join(e.Config.WorkingDirectory, script)
	}

	err := hook.Run(ctx, script, hook.Context{
		Project: target.Project,
		Version: cfg.Query().Version,
		Target:  cfg.OutputFile(),
		Status:  update.Success.String(),
	})
	if err != nil {
		logger.ErrorKV(ctx, "Hook failed", "hook", script, "error", err)
		return err
	}

	logger.InfoKV(ctx, "Hook completed", "hook", script)

	return nil
}

func logOutcome(ctx context.Context, outcome update.Outcome) {
	if outcome.IsError() {
		logger.ErrorKV(ctx, "Update finished", "status", outcome.Status.String(), "error", outcome.Err)
		return
	}

	logger.InfoKV(ctx, "Update finished", "status", outcome.Status.String())
}

// loadConfig reads the settings and applies command-line overrides.
func loadConfig(opts *Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultConfigFilename)
	}

	if err != nil {
		return nil, err
	}

	if opts.WorkingDirectory != "" {
		cfg.WorkingDirectory = opts.WorkingDirectory
	}

	if opts.Project != "" {
		cfg.Targets = []config.Target{{
			Project:      opts.Project,
			Version:      opts.Version,
			Output:       opts.Output,
			ChecksumFile: opts.ChecksumFile,
		}}
	}

	for i := range cfg.Targets {
		cfg.Targets[i].CheckOnly = cfg.Targets[i].CheckOnly || opts.CheckOnly
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
