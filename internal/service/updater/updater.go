package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/server-updater/internal/domain/update"
	"github.com/oshokin/server-updater/internal/provider"

	// Register SHA-256 for artifact digests.
	_ "crypto/sha256"
)

var (
	errRegistryRequired = errors.New("provider registry must be provided")
	errConfigRequired   = errors.New("configuration must be provided")
	errPanic            = errors.New("update run panicked")
	errNilProvider      = errors.New("constructor returned no provider")
	errEmptyArtifact    = errors.New("provider returned no artifact stream")
	errEmptyDigest      = errors.New("provider returned an empty digest")
)

// Registry resolves provider constructors by project name.
type Registry interface {
	Lookup(name string) (provider.Constructor, bool)
}

// Updater runs update attempts for one configured target.
type Updater struct {
	registry Registry
	cfg      *Config
}

// New returns an updater bound to the registry and the target configuration.
func New(registry Registry, cfg *Config) (*Updater, error) {
	if registry == nil {
		return nil, errRegistryRequired
	}

	if cfg == nil {
		return nil, errConfigRequired
	}

	return &Updater{
		registry: registry,
		cfg:      cfg,
	}, nil
}

// Config returns the target configuration.
func (u *Updater) Config() *Config {
	return u.cfg
}

// RunAsync starts Run in a new goroutine. The channel receives exactly one outcome
// and is closed afterwards. Cancelling ctx aborts in-flight requests.
func (u *Updater) RunAsync(ctx context.Context) <-chan update.Outcome {
	result := make(chan update.Outcome, 1)

	go func() {
		defer close(result)

		result <- u.Run(ctx)
	}()

	return result
}

// Run executes exactly one update attempt. It never panics and never returns an error:
// every failure is mapped to the outcome status.
func (u *Updater) Run(ctx context.Context) (outcome update.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = update.Failure(update.UnknownError, fmt.Errorf("%w: %v", errPanic, r))
		}
	}()

	cfg := u.cfg

	constructor, ok := u.registry.Lookup(cfg.project)
	if !ok {
		cfg.debugf("No provider registered for %s", cfg.project)
		return update.NewOutcome(update.NoProvider)
	}

	exists := targetExists(cfg.outputFile)
	installed := false

	if !exists {
		if cfg.checkOnly {
			cfg.debugf("Target %s does not exist", cfg.outputFile)
			return update.NewOutcome(update.OutOfDate)
		}

		cfg.debugf("Creating placeholder %s", cfg.outputFile)

		if err := createPlaceholder(cfg.outputFile, cfg.fileMode); err != nil {
			return update.Failure(update.FileCreateFailed, err)
		}

		defer func() {
			if !installed {
				_ = os.Remove(cfg.outputFile)
			}
		}()
	}

	cfg.debugf("Resolving %s version %s", cfg.project, cfg.query.Version)

	p, err := constructor(ctx, provider.Request{
		Query:  cfg.query,
		Client: cfg.client,
		Debug:  cfg.debug,
	})
	if err != nil {
		return update.Failure(update.UnknownError, fmt.Errorf("create %s provider: %w", cfg.project, err))
	}

	if p == nil {
		return update.Failure(update.UnknownError, fmt.Errorf("create %s provider: %w", cfg.project, errNilProvider))
	}

	checksummer, hasChecksum := p.Checksummer()

	var token string

	if hasChecksum {
		token, err = checksummer.Checksum(ctx)
		if err != nil {
			return update.Failure(update.UnknownError, fmt.Errorf("compute change token: %w", err))
		}

		if exists {
			upToDate, compareErr := u.compare(ctx, token)
			if compareErr != nil {
				return update.Failure(update.UnknownError, compareErr)
			}

			if upToDate {
				return update.NewOutcome(update.UpToDate)
			}
		}
	}

	if cfg.checkOnly {
		return update.NewOutcome(update.OutOfDate)
	}

	if err = u.install(ctx, p); err != nil {
		return update.Failure(update.Failed, err)
	}

	installed = true

	if hasChecksum {
		if err = cfg.saveChecksum(ctx, token); err != nil {
			return update.Failure(update.UnknownError, fmt.Errorf("save change token: %w", err))
		}

		cfg.debugf("Saved change token %s", token)
	}

	return update.NewOutcome(update.Success)
}

// compare reports whether the stored token equals the current one.
// An empty stored token never matches.
func (u *Updater) compare(ctx context.Context, token string) (bool, error) {
	stored, err := u.cfg.loadChecksum(ctx)
	if err != nil {
		return false, fmt.Errorf("load change token: %w", err)
	}

	u.cfg.debugf("Stored change token: %q, current: %q", stored, token)

	return stored != "" && stored == token, nil
}

// install fetches the artifact and atomically replaces the target with it.
func (u *Updater) install(ctx context.Context, p provider.Provider) error {
	cfg := u.cfg

	artifact, err := p.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch artifact: %w", err)
	}

	if artifact == nil || artifact.Body == nil {
		return errEmptyArtifact
	}

	defer func() {
		_ = artifact.Body.Close()
	}()

	targetPath, err := filepath.Abs(cfg.outputFile)
	if err != nil {
		return fmt.Errorf("resolve target path: %w", err)
	}

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: cfg.fileMode,
	}

	if verifier, ok := p.Verifier(); ok {
		digest, digestErr := verifier.Digest(ctx)
		if digestErr != nil {
			return fmt.Errorf("get artifact digest: %w", digestErr)
		}

		if digest == nil || len(digest.Sum) == 0 {
			return errEmptyDigest
		}

		options.Checksum = digest.Sum
		options.Hash = digest.Hash
	}

	var reader io.Reader = artifact.Body
	if cfg.progress != nil {
		if w := cfg.progress(artifact.Size); w != nil {
			reader = io.TeeReader(reader, w)
		}
	}

	cfg.debugf("Writing %s to %s", artifact.Name, targetPath)

	if err = goupdate.Apply(reader, options); err != nil {
		return fmt.Errorf("replace %s: %w", targetPath, err)
	}

	return nil
}

// targetExists reports whether the target is present.
// Unreadable paths count as missing so that creation reports the failure.
func targetExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

// createPlaceholder creates an empty target for the atomic replacement to swap out.
func createPlaceholder(path string, mode os.FileMode) error {
	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close target: %w", err)
	}

	return nil
}
