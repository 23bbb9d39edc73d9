// Package catalog registers the built-in providers and user-declared Jenkins projects.
package catalog

import (
	"fmt"

	"github.com/oshokin/server-updater/internal/config"
	"github.com/oshokin/server-updater/internal/provider"
	"github.com/oshokin/server-updater/internal/provider/jenkins"
	"github.com/oshokin/server-updater/internal/provider/papermc"
)

// paperProjects maps PaperMC project identifiers to the names they answer to.
var paperProjects = []struct {
	project string
	names   []string
}{
	{project: "paper", names: []string{"paper", "papermc", "paperspigot"}},
	{project: "folia", names: []string{"folia"}},
	{project: "travertine", names: []string{"travertine"}},
	{project: "waterfall", names: []string{"waterfall"}},
	{project: "velocity", names: []string{"velocity"}},
}

// jenkinsProjects are the built-in CI-backed distributions.
var jenkinsProjects = []struct {
	project jenkins.Project
	names   []string
}{
	{
		project: jenkins.Project{
			BaseURL:        "https://ci.md-5.net/",
			Job:            []string{"BungeeCord"},
			Artifact:       `BungeeCord\.jar`,
			DefaultVersion: "latest",
		},
		names: []string{"bungeecord", "bungee"},
	},
	{
		project: jenkins.Project{
			BaseURL:        "https://ci.pufferfish.host/",
			Job:            []string{"Pufferfish-" + jenkins.VersionPlaceholder},
			Artifact:       `pufferfish-paperclip-.*-reobf\.jar`,
			DefaultVersion: "1.20",
		},
		names: []string{"pufferfish"},
	},
}

// Register binds every built-in provider and then the custom Jenkins projects,
// so a custom project may replace a built-in name.
func Register(registry *provider.Registry, custom []config.JenkinsProject) error {
	for _, p := range paperProjects {
		registry.Register(papermc.Project{Name: p.project}.Constructor(), p.names...)
	}

	for _, p := range jenkinsProjects {
		constructor, err := p.project.Constructor()
		if err != nil {
			return fmt.Errorf("built-in project %s: %w", p.names[0], err)
		}

		registry.Register(constructor, p.names...)
	}

	for i, p := range custom {
		constructor, err := jenkins.Project{
			BaseURL:        p.URL,
			Job:            p.Job,
			Artifact:       p.Artifact,
			DefaultVersion: p.DefaultVersion,
		}.Constructor()
		if err != nil {
			return fmt.Errorf("jenkins project %d (%v): %w", i, p.Names, err)
		}

		registry.Register(constructor, p.Names...)
	}

	return nil
}

// NewRegistry returns a registry populated by Register.
func NewRegistry(custom []config.JenkinsProject) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	if err := Register(registry, custom); err != nil {
		return nil, err
	}

	return registry, nil
}
