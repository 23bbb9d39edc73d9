package updater

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/server-updater/internal/config"
	"github.com/oshokin/server-updater/internal/domain/update"
	"github.com/oshokin/server-updater/internal/provider"
	"github.com/oshokin/server-updater/internal/repository/checksum"
)

// DefaultFileMode is the mode of replaced target files.
const DefaultFileMode os.FileMode = 0o644

// errProjectRequired is returned when the project name is empty.
var errProjectRequired = errors.New("project must be provided")

type (
	// ChecksumLoader returns the last stored change token, empty when nothing was stored.
	ChecksumLoader func(ctx context.Context) (string, error)

	// ChecksumSaver persists a new change token.
	ChecksumSaver func(ctx context.Context, token string) error

	// ProgressFunc returns a writer receiving every downloaded byte.
	// total is the artifact size, -1 when unknown.
	ProgressFunc func(total int64) io.Writer
)

// Config is the immutable configuration of one update target.
type Config struct {
	// project is the registry name of the provider.
	project string
	// query is the requested version.
	query update.VersionQuery
	// outputFile is the target file path.
	outputFile string
	// workingDirectory anchors relative checksum files.
	workingDirectory string
	// checksumFile is the token file, relative to workingDirectory unless absolute.
	checksumFile string
	// loadChecksum reads the stored change token.
	loadChecksum ChecksumLoader
	// saveChecksum writes the new change token.
	saveChecksum ChecksumSaver
	// checkOnly reports OutOfDate instead of downloading.
	checkOnly bool
	// debug receives diagnostic lines.
	debug provider.DebugFunc
	// client performs upstream requests.
	client *http.Client
	// progress observes the artifact stream.
	progress ProgressFunc
	// fileMode is the mode of the replaced target.
	fileMode os.FileMode
}

// Option configures an update target.
type Option func(*Config)

// WithVersion sets the requested version; empty or "default" means the provider's latest.
func WithVersion(version string) Option {
	return func(c *Config) {
		c.query = update.NewVersionQuery(version)
	}
}

// WithOutputFile sets the target file path.
func WithOutputFile(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.outputFile = path
		}
	}
}

// WithWorkingDirectory sets the directory relative checksum files are resolved against.
func WithWorkingDirectory(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.workingDirectory = dir
		}
	}
}

// WithChecksumFile stores change tokens in a file.
// Explicit loaders and savers take precedence over the file.
func WithChecksumFile(name string) Option {
	return func(c *Config) {
		c.checksumFile = name
	}
}

// WithChecksumStore reads and writes change tokens through store.
func WithChecksumStore(store checksum.Store) Option {
	return func(c *Config) {
		if store == nil {
			return
		}

		c.loadChecksum = store.Load
		c.saveChecksum = store.Save
	}
}

// WithChecksumLoader sets the function reading the stored change token.
func WithChecksumLoader(loader ChecksumLoader) Option {
	return func(c *Config) {
		c.loadChecksum = loader
	}
}

// WithChecksumSaver sets the function persisting the new change token.
func WithChecksumSaver(saver ChecksumSaver) Option {
	return func(c *Config) {
		c.saveChecksum = saver
	}
}

// WithCheckOnly reports OutOfDate instead of downloading when an update is available.
func WithCheckOnly(checkOnly bool) Option {
	return func(c *Config) {
		c.checkOnly = checkOnly
	}
}

// WithDebug sets the diagnostic sink.
func WithDebug(debug provider.DebugFunc) Option {
	return func(c *Config) {
		c.debug = debug
	}
}

// WithHTTPClient sets the client used for every upstream request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.client = client
	}
}

// WithProgress observes the artifact stream while it is written.
func WithProgress(progress ProgressFunc) Option {
	return func(c *Config) {
		c.progress = progress
	}
}

// WithFileMode sets the mode of the replaced target.
func WithFileMode(mode os.FileMode) Option {
	return func(c *Config) {
		if mode != 0 {
			c.fileMode = mode
		}
	}
}

// NewConfig validates the options and returns the configuration of one target.
// Without a checksum strategy no token is ever stored and every run downloads.
func NewConfig(project string, opts ...Option) (*Config, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, errProjectRequired
	}

	c := &Config{
		project:          project,
		query:            update.NewVersionQuery(""),
		outputFile:       config.DefaultOutputFile,
		workingDirectory: config.DefaultWorkingDirectory,
		fileMode:         DefaultFileMode,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.checksumFile != "" {
		store := checksum.NewFileStore(c.ChecksumPath())

		if c.loadChecksum == nil {
			c.loadChecksum = store.Load
		}

		if c.saveChecksum == nil {
			c.saveChecksum = store.Save
		}
	}

	if c.loadChecksum == nil {
		c.loadChecksum = func(context.Context) (string, error) { return "", nil }
	}

	if c.saveChecksum == nil {
		c.saveChecksum = func(context.Context, string) error { return nil }
	}

	return c, nil
}

// Project returns the provider name.
func (c *Config) Project() string {
	return c.project
}

// Query returns the requested version.
func (c *Config) Query() update.VersionQuery {
	return c.query
}

// OutputFile returns the target file path.
func (c *Config) OutputFile() string {
	return c.outputFile
}

// WorkingDirectory returns the directory checksum files are resolved against.
func (c *Config) WorkingDirectory() string {
	return c.workingDirectory
}

// ChecksumPath returns the resolved checksum file path, empty when no file is used.
func (c *Config) ChecksumPath() string {
	if c.checksumFile == "" {
		return ""
	}

	if filepath.IsAbs(c.checksumFile) {
		return filepath.Clean(c.checksumFile)
	}

	return filepath.Join(c.workingDirectory, c.checksumFile)
}

// CheckOnly reports whether downloads are disabled.
func (c *Config) CheckOnly() bool {
	return c.checkOnly
}

// debugf forwards a diagnostic line to the configured sink.
func (c *Config) debugf(format string, args ...any) {
	provider.Request{Debug: c.debug}.Debugf(format, args...)
}
