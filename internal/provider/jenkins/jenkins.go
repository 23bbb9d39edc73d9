package jenkins

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/oshokin/server-updater/internal/provider"
)

const (
	// InvalidArtifact is the relative path used when no artifact matches the pattern.
	InvalidArtifact = "INVALID"

	// VersionPlaceholder is replaced by the resolved version inside job segments.
	VersionPlaceholder = "{version}"

	// tokenSeparator joins change token components.
	tokenSeparator = "||"
	// jobSeparator joins job segments inside the change token.
	jobSeparator = "_"
)

var (
	errNoBaseURL           = errors.New("jenkins base url is required")
	errNoJob               = errors.New("jenkins job path is required")
	errNoArtifactPattern   = errors.New("artifact pattern is required")
	errNoSuccessfulBuild   = errors.New("job has no successful build")
	errEmptyDefaultVersion = errors.New("default version is required when job path depends on version")
)

// Project describes one distribution published by a Jenkins server.
type Project struct {
	// BaseURL is the Jenkins root, e.g. https://ci.md-5.net/.
	BaseURL string
	// Job is the hierarchical job path. Segments may contain VersionPlaceholder.
	Job []string
	// Artifact is a regular expression the whole artifact file name must match.
	Artifact string
	// DefaultVersion substitutes the latest sentinel of a version query.
	DefaultVersion string
}

// Locator is the resolved download location of a build artifact.
type Locator struct {
	// FileName is the matched artifact file name, empty when nothing matched.
	FileName string
	// RelativePath is the artifact path inside the build or InvalidArtifact.
	RelativePath string
	// URL is the composed download URL; it is well-formed even for invalid locators.
	URL string
}

// Valid reports whether an artifact matched the project's pattern.
func (l Locator) Valid() bool {
	return l.RelativePath != InvalidArtifact
}

// Provider resolves and fetches artifacts of a single build.
type Provider struct {
	req      provider.Request
	baseURL  string
	job      []string
	artifact *regexp.Regexp
	version  string
	build    string
}

type lastBuildResponse struct {
	LastSuccessfulBuild *struct {
		Number int `json:"number"`
	} `json:"lastSuccessfulBuild"`
}

type artifactListResponse struct {
	Artifacts []struct {
		FileName     string `json:"fileName"`
		RelativePath string `json:"relativePath"`
	} `json:"artifacts"`
}

// Constructor validates the project and returns a constructor for the registry.
func (p Project) Constructor() (provider.Constructor, error) {
	pattern, err := p.compile()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, req provider.Request) (provider.Provider, error) {
		return newProvider(ctx, p, pattern, req)
	}, nil
}

// New builds a provider for one run, resolving the version and the last successful build.
func New(ctx context.Context, project Project, req provider.Request) (*Provider, error) {
	pattern, err := project.compile()
	if err != nil {
		return nil, err
	}

	return newProvider(ctx, project, pattern, req)
}

func (p Project) compile() (*regexp.Regexp, error) {
	if strings.TrimSpace(p.BaseURL) == "" {
		return nil, errNoBaseURL
	}

	if len(p.Job) == 0 {
		return nil, errNoJob
	}

	if p.Artifact == "" {
		return nil, errNoArtifactPattern
	}

	if p.DefaultVersion == "" && strings.Contains(strings.Join(p.Job, "/"), VersionPlaceholder) {
		return nil, errEmptyDefaultVersion
	}

	if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid jenkins base url: %w", err)
	}

	// The whole file name must match, not a substring of it.
	pattern, err := regexp.Compile("^(?:" + p.Artifact + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid artifact pattern %q: %w", p.Artifact, err)
	}

	return pattern, nil
}

func newProvider(ctx context.Context, project Project, pattern *regexp.Regexp, req provider.Request) (*Provider, error) {
	version := req.Query.Resolve(project.DefaultVersion)

	job := make([]string, 0, len(project.Job))
	for _, segment := range project.Job {
		job = append(job, strings.ReplaceAll(segment, VersionPlaceholder, version))
	}

	p := &Provider{
		req:      req,
		baseURL:  normalizeBaseURL(project.BaseURL),
		job:      job,
		artifact: pattern,
		version:  version,
	}

	build, err := p.resolveBuild(ctx)
	if err != nil {
		return nil, err
	}

	p.build = build

	return p, nil
}

// Version returns the resolved version label.
func (p *Provider) Version() string {
	return p.version
}

// Build returns the resolved build number.
func (p *Provider) Build() string {
	return p.build
}

// JobURL returns the job URL with a trailing slash.
func (p *Provider) JobURL() string {
	var builder strings.Builder

	builder.WriteString(p.baseURL)

	for _, segment := range p.job {
		builder.WriteString("job/")
		builder.WriteString(url.PathEscape(segment))
		builder.WriteString("/")
	}

	return builder.String()
}

// Checksummer exposes the change token capability.
func (p *Provider) Checksummer() (provider.Checksummer, bool) {
	return p, true
}

// Verifier is not supported: Jenkins publishes no digest in the artifact listing.
func (p *Provider) Verifier() (provider.Verifier, bool) {
	return nil, false
}

// Checksum composes the change token from version, build, job and server URL.
func (p *Provider) Checksum(context.Context) (string, error) {
	return strings.Join([]string{
		p.version,
		p.build,
		strings.Join(p.job, jobSeparator),
		p.baseURL,
	}, tokenSeparator), nil
}

// Fetch resolves the artifact of the build and opens its byte stream.
func (p *Provider) Fetch(ctx context.Context) (*provider.Artifact, error) {
	locator := p.Resolve(ctx)

	p.req.Debugf("Downloading %s", locator.URL)

	artifact, err := provider.Open(ctx, p.req.HTTPClient(), locator.URL, locator.FileName)
	if err != nil {
		p.req.Debugf("Download failed: %v", err)

		return nil, err
	}

	p.req.Debugf("Opened %s (%d bytes)", artifact.Name, artifact.Size)

	return artifact, nil
}

// Resolve finds the first artifact whose file name matches the pattern, in listing order.
// Listing failures are not fatal: the locator becomes invalid and the fetch fails later.
func (p *Provider) Resolve(ctx context.Context) Locator {
	jobURL := p.JobURL()
	listURL := jobURL + p.build + "/api/json?tree=artifacts[fileName,relativePath]"

	locator := Locator{RelativePath: InvalidArtifact}

	p.req.Debugf("Getting artifact from %s", listURL)

	var listing artifactListResponse
	if err := provider.GetJSON(ctx, p.req.HTTPClient(), listURL, &listing); err != nil {
		p.req.Debugf("Artifact listing failed: %v", err)
	} else {
		for _, artifact := range listing.Artifacts {
			if p.artifact.MatchString(artifact.FileName) {
				locator.FileName = artifact.FileName
				locator.RelativePath = artifact.RelativePath

				break
			}
		}
	}

	locator.URL = jobURL + p.build + "/artifact/" + locator.RelativePath

	p.req.Debugf("Artifact URL: %s", locator.URL)

	return locator
}

func (p *Provider) resolveBuild(ctx context.Context) (string, error) {
	treeURL := p.JobURL() + "api/json?tree=lastSuccessfulBuild[number]"

	p.req.Debugf("Getting latest build from %s", treeURL)

	var response lastBuildResponse
	if err := provider.GetJSON(ctx, p.req.HTTPClient(), treeURL, &response); err != nil {
		return "", fmt.Errorf("resolve latest build: %w", err)
	}

	if response.LastSuccessfulBuild == nil {
		return "", fmt.Errorf("%s: %w", p.JobURL(), errNoSuccessfulBuild)
	}

	build := strconv.Itoa(response.LastSuccessfulBuild.Number)

	p.req.Debugf("Latest build: %s", build)

	return build, nil
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if strings.HasSuffix(baseURL, "/") {
		return baseURL
	}

	return baseURL + "/"
}
