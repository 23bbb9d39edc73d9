package papermc

import (
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/oshokin/server-updater/internal/provider"
)

const (
	// DefaultBaseURL is the public PaperMC v2 API root.
	DefaultBaseURL = "https://api.papermc.io/v2"

	// defaultChannel is the build channel preferred over experimental builds.
	defaultChannel = "default"
	// applicationDownload is the download key of the server jar.
	applicationDownload = "application"
	// tokenSeparator joins change token components.
	tokenSeparator = "||"
)

var (
	errNoProject        = errors.New("papermc project is required")
	errNoStableVersions = errors.New("project has no stable versions")
	errNoBuilds         = errors.New("version has no builds")
	errNoApplication    = errors.New("build has no application download")
)

// Project describes one PaperMC project.
type Project struct {
	// Name is the project identifier, e.g. "paper".
	Name string
	// BaseURL is the API root; DefaultBaseURL when empty.
	BaseURL string
}

// Provider resolves and fetches one PaperMC build.
type Provider struct {
	req      provider.Request
	baseURL  string
	project  string
	version  string
	build    int
	fileName string
	sha256   string
}

type projectResponse struct {
	Versions []string `json:"versions"`
}

type buildsResponse struct {
	Builds []build `json:"builds"`
}

type build struct {
	Build     int                 `json:"build"`
	Channel   string              `json:"channel"`
	Downloads map[string]download `json:"downloads"`
}

type download struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
}

// Constructor returns a registry constructor for the project.
func (p Project) Constructor() provider.Constructor {
	return func(ctx context.Context, req provider.Request) (provider.Provider, error) {
		return New(ctx, p, req)
	}
}

// New resolves the version and build for one run.
func New(ctx context.Context, project Project, req provider.Request) (*Provider, error) {
	if strings.TrimSpace(project.Name) == "" {
		return nil, errNoProject
	}

	baseURL := strings.TrimRight(strings.TrimSpace(project.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p := &Provider{
		req:     req,
		baseURL: baseURL,
		project: project.Name,
	}

	version := req.Query.Version
	if req.Query.Latest {
		latest, err := p.resolveLatestVersion(ctx)
		if err != nil {
			return nil, err
		}

		version = latest
	}

	p.version = version

	if err := p.resolveBuild(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

// Version returns the resolved game version.
func (p *Provider) Version() string {
	return p.version
}

// Build returns the resolved build number.
func (p *Provider) Build() int {
	return p.build
}

// Checksummer exposes the change token capability.
func (p *Provider) Checksummer() (provider.Checksummer, bool) {
	return p, true
}

// Verifier exposes the published SHA-256 digest when the API reported one.
func (p *Provider) Verifier() (provider.Verifier, bool) {
	if p.sha256 == "" {
		return nil, false
	}

	return p, true
}

// Checksum composes the change token from project, version, build and published digest.
func (p *Provider) Checksum(context.Context) (string, error) {
	return strings.Join([]string{
		p.project,
		p.version,
		strconv.Itoa(p.build),
		p.sha256,
	}, tokenSeparator), nil
}

// Digest returns the SHA-256 digest published for the build's application jar.
func (p *Provider) Digest(context.Context) (*provider.Digest, error) {
	sum, err := hex.DecodeString(p.sha256)
	if err != nil {
		return nil, fmt.Errorf("decode sha256 of %s: %w", p.fileName, err)
	}

	return &provider.Digest{
		Hash: crypto.SHA256,
		Sum:  sum,
	}, nil
}

// Fetch opens the application jar of the resolved build.
func (p *Provider) Fetch(ctx context.Context) (*provider.Artifact, error) {
	downloadURL := fmt.Sprintf("%s/downloads/%s", p.buildURL(), url.PathEscape(p.fileName))

	p.req.Debugf("Downloading %s", downloadURL)

	artifact, err := provider.Open(ctx, p.req.HTTPClient(), downloadURL, p.fileName)
	if err != nil {
		p.req.Debugf("Download failed: %v", err)

		return nil, err
	}

	p.req.Debugf("Opened %s (%d bytes)", artifact.Name, artifact.Size)

	return artifact, nil
}

func (p *Provider) projectURL() string {
	return p.baseURL + "/projects/" + url.PathEscape(p.project)
}

func (p *Provider) versionURL() string {
	return p.projectURL() + "/versions/" + url.PathEscape(p.version)
}

func (p *Provider) buildURL() string {
	return p.versionURL() + "/builds/" + strconv.Itoa(p.build)
}

// resolveLatestVersion picks the highest stable version the project lists.
func (p *Provider) resolveLatestVersion(ctx context.Context) (string, error) {
	projectURL := p.projectURL()

	p.req.Debugf("Getting versions from %s", projectURL)

	var response projectResponse
	if err := provider.GetJSON(ctx, p.req.HTTPClient(), projectURL, &response); err != nil {
		return "", fmt.Errorf("resolve latest version: %w", err)
	}

	latest, err := LatestStable(response.Versions)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.project, err)
	}

	p.req.Debugf("Latest version: %s", latest)

	return latest, nil
}

// resolveBuild picks the newest build of the default channel, falling back to the newest build.
func (p *Provider) resolveBuild(ctx context.Context) error {
	buildsURL := p.versionURL() + "/builds"

	p.req.Debugf("Getting latest build from %s", buildsURL)

	var response buildsResponse
	if err := provider.GetJSON(ctx, p.req.HTTPClient(), buildsURL, &response); err != nil {
		return fmt.Errorf("resolve latest build: %w", err)
	}

	if len(response.Builds) == 0 {
		return fmt.Errorf("%s %s: %w", p.project, p.version, errNoBuilds)
	}

	selected := response.Builds[len(response.Builds)-1]

	for i := len(response.Builds) - 1; i >= 0; i-- {
		if strings.EqualFold(response.Builds[i].Channel, defaultChannel) {
			selected = response.Builds[i]

			break
		}
	}

	application, ok := selected.Downloads[applicationDownload]
	if !ok || application.Name == "" {
		return fmt.Errorf("%s %s build %d: %w", p.project, p.version, selected.Build, errNoApplication)
	}

	p.build = selected.Build
	p.fileName = application.Name
	p.sha256 = strings.ToLower(application.SHA256)

	p.req.Debugf("Latest build: %d (%s)", p.build, p.fileName)

	return nil
}

// LatestStable returns the highest version without a pre-release part.
// Entries that are not versions (snapshots like 23w13a) are ignored.
func LatestStable(versions []string) (string, error) {
	var (
		best    *goversion.Version
		bestRaw string
	)

	for _, raw := range versions {
		v, err := goversion.NewVersion(raw)
		if err != nil || v.Prerelease() != "" {
			continue
		}

		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = raw
		}
	}

	if best == nil {
		return "", errNoStableVersions
	}

	return bestRaw, nil
}
