package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the update and serve commands.
type Config struct {
	// LogLevel is the minimum level of log messages.
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// Timeout bounds the wait for response headers of every upstream request.
	Timeout Duration `yaml:"timeout" toml:"timeout"`
	// WorkingDirectory is where checksum files and the run lock live.
	WorkingDirectory string `yaml:"working_directory" toml:"working_directory"`
	// Targets are the files kept in sync with their upstream.
	Targets []Target `yaml:"targets" toml:"targets"`
	// Jenkins declares additional CI-backed providers.
	Jenkins []JenkinsProject `yaml:"jenkins,omitempty" toml:"jenkins,omitempty"`
	// Serve configures the watch daemon.
	Serve Serve `yaml:"serve" toml:"serve"`
}

// Target is one file kept in sync with a provider.
type Target struct {
	// Project is the registered provider name.
	Project string `yaml:"project" toml:"project"`
	// Version is the requested version, "default" for the provider's latest.
	Version string `yaml:"version,omitempty" toml:"version,omitempty"`
	// Output is the target file path.
	Output string `yaml:"output,omitempty" toml:"output,omitempty"`
	// ChecksumFile stores the change token, relative to the working directory.
	// Defaults to the flattened output path plus ".checksum".
	ChecksumFile string `yaml:"checksum_file,omitempty" toml:"checksum_file,omitempty"`
	// CheckOnly reports OutOfDate instead of downloading.
	CheckOnly bool `yaml:"check_only,omitempty" toml:"check_only,omitempty"`
	// Hook is an optional tengo script run after a successful update.
	Hook string `yaml:"hook,omitempty" toml:"hook,omitempty"`
}

// JenkinsProject declares a CI-backed provider.
type JenkinsProject struct {
	// Names are the case-insensitive names the provider is registered under.
	Names []string `yaml:"names" toml:"names"`
	// URL is the Jenkins root URL.
	URL string `yaml:"url" toml:"url"`
	// Job is the hierarchical job path; segments may contain "{version}".
	Job []string `yaml:"job" toml:"job"`
	// Artifact is the regular expression the artifact file name must match.
	Artifact string `yaml:"artifact" toml:"artifact"`
	// DefaultVersion substitutes the "default" version.
	DefaultVersion string `yaml:"default_version,omitempty" toml:"default_version,omitempty"`
}

// Serve configures the watch daemon.
type Serve struct {
	// ListenAddress is the gRPC health endpoint address.
	ListenAddress string `yaml:"listen_address" toml:"listen_address"`
	// Interval is the delay between two update rounds.
	Interval Duration `yaml:"interval" toml:"interval"`
}

const (
	// DefaultConfigFilename is the default filename for updater settings.
	DefaultConfigFilename = "server-updater.yaml"

	// DefaultOutputFile is the default target file.
	DefaultOutputFile = "server.jar"

	// DefaultWorkingDirectory is the default working directory.
	DefaultWorkingDirectory = "."

	// DefaultLogLevel is the default minimum log level.
	DefaultLogLevel = "info"

	// DefaultTimeout is the default duration for upstream requests.
	DefaultTimeout = 30 * time.Second

	// DefaultListenAddress is the default gRPC health endpoint of the daemon.
	DefaultListenAddress = "127.0.0.1:50051"

	// DefaultInterval is the default delay between daemon update rounds.
	DefaultInterval = time.Hour

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// checksumSuffix is appended to the flattened output path for default checksum files.
	checksumSuffix = ".checksum"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errProjectRequired is returned when a target has no project.
	errProjectRequired = errors.New("target project must be provided")
	// errJenkinsNamesRequired is returned when a Jenkins project has no names.
	errJenkinsNamesRequired = errors.New("jenkins project names must be provided")
	// errJenkinsJobRequired is returned when a Jenkins project has no job path.
	errJenkinsJobRequired = errors.New("jenkins job must be provided")
	// errJenkinsArtifactRequired is returned when a Jenkins project has no artifact pattern.
	errJenkinsArtifactRequired = errors.New("jenkins artifact pattern must be provided")
	// errNegativeDuration is returned for negative timeouts or intervals.
	errNegativeDuration = errors.New("duration must not be negative")
	// errDuplicateOutput is returned when two targets write the same file.
	errDuplicateOutput = errors.New("output is already used by another target")
	// errDuplicateChecksumFile is returned when two targets share a change token file.
	errDuplicateChecksumFile = errors.New("checksum file is already used by another target")
)

// Default returns a configuration without targets, with every default applied.
func Default() *Config {
	cfg := new(Config)

	// Validation of an empty config only fills defaults.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = unmarshal(path, contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := marshal(path, cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills defaults for omitted values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout: %w", errNegativeDuration)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = Duration(DefaultTimeout)
	}

	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = DefaultWorkingDirectory
	}

	for i := range cfg.Targets {
		if err := validateTarget(cfg.WorkingDirectory, &cfg.Targets[i]); err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
	}

	if err := validateUniqueTargets(cfg.WorkingDirectory, cfg.Targets); err != nil {
		return err
	}

	for i := range cfg.Jenkins {
		if err := validateJenkins(&cfg.Jenkins[i]); err != nil {
			return fmt.Errorf("jenkins project %d: %w", i, err)
		}
	}

	return validateServe(&cfg.Serve)
}

// DefaultChecksumFile returns the conventional checksum file name for an output file:
// the cleaned output path with separators flattened to "_". An absolute output inside
// the working directory is taken relative to it. Outputs "a/server.jar" and "b/server.jar"
// therefore get distinct files, while "server.jar" keeps "server.jar.checksum".
func DefaultChecksumFile(workingDirectory, output string) string {
	name := filepath.Clean(output)

	if filepath.IsAbs(name) {
		if absWorkDir, err := filepath.Abs(workingDirectory); err == nil {
			rel, relErr := filepath.Rel(absWorkDir, name)
			if relErr == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				name = rel
			}
		}
	}

	name = strings.TrimPrefix(name, filepath.VolumeName(name))
	name = strings.Trim(filepath.ToSlash(name), "/")

	return strings.ReplaceAll(name, "/", "_") + checksumSuffix
}

// validateUniqueTargets rejects targets sharing an output file or a checksum file.
func validateUniqueTargets(workingDirectory string, targets []Target) error {
	outputs := make(map[string]int, len(targets))
	checksums := make(map[string]int, len(targets))

	for i, target := range targets {
		output := filepath.Clean(target.Output)
		if j, ok := outputs[output]; ok {
			return fmt.Errorf("target %d: %s (target %d): %w", i, target.Output, j, errDuplicateOutput)
		}

		outputs[output] = i

		checksumPath := target.ChecksumFile
		if !filepath.IsAbs(checksumPath) {
			checksumPath = filepath.Join(workingDirectory, checksumPath)
		}

		checksumPath = filepath.Clean(checksumPath)
		if j, ok := checksums[checksumPath]; ok {
			return fmt.Errorf("target %d: %s (target %d): %w", i, target.ChecksumFile, j, errDuplicateChecksumFile)
		}

		checksums[checksumPath] = i
	}

	return nil
}

func validateTarget(workingDirectory string, target *Target) error {
	target.Project = strings.TrimSpace(target.Project)
	if target.Project == "" {
		return errProjectRequired
	}

	if target.Output == "" {
		target.Output = DefaultOutputFile
	}

	if target.ChecksumFile == "" {
		target.ChecksumFile = DefaultChecksumFile(workingDirectory, target.Output)
	}

	return nil
}

func validateJenkins(project *JenkinsProject) error {
	if len(project.Names) == 0 {
		return errJenkinsNamesRequired
	}

	if _, err := url.ParseRequestURI(project.URL); err != nil {
		return fmt.Errorf("invalid jenkins url: %w", err)
	}

	if len(project.Job) == 0 {
		return errJenkinsJobRequired
	}

	if project.Artifact == "" {
		return errJenkinsArtifactRequired
	}

	return nil
}

func validateServe(serve *Serve) error {
	if serve.ListenAddress == "" {
		serve.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", serve.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if serve.Interval < 0 {
		return fmt.Errorf("interval: %w", errNegativeDuration)
	}

	if serve.Interval == 0 {
		serve.Interval = Duration(DefaultInterval)
	}

	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, contents []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.NewDecoder(bytes.NewReader(contents)).DisallowUnknownFields().Decode(cfg)
	}

	return yaml.Unmarshal(contents, cfg)
}

func marshal(path string, cfg *Config) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(cfg)
	}

	return yaml.Marshal(cfg)
}
