package config

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cochaviz/bakery/internal/build"
	"github.com/cochaviz/bakery/internal/library"
	"github.com/cochaviz/bakery/internal/logging"
	"github.com/cochaviz/bakery/internal/project"
)

var DefaultProjectDir = "."

// Options locate the project a command works on.
type Options struct {
	ProjectDir string
	// ConfigFile overrides project.DefaultConfigFile.
	ConfigFile string
}

func (o Options) load() (*project.Project, error) {
	dir := o.ProjectDir
	if dir == "" {
		dir = DefaultProjectDir
	}
	p, err := project.Loader{ProjectDir: dir, ConfigFile: o.ConfigFile}.Load()
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return p, nil
}

// Customize applies the project's recipes to a system archive.
func Customize(ctx context.Context, options Options, request build.CustomizeRequest, logger *slog.Logger) error {
	if request.Source == "" || request.Destination == "" {
		return fmt.Errorf("source and destination archives are required")
	}
	logger = logging.Ensure(logger).With("component", "config")
	p, err := options.load()
	if err != nil {
		return err
	}
	logger.Debug("project loaded", "dir", p.Dir, "architecture", p.Config.Architecture.String())

	service := build.CustomizeService{
		Logger:  logger.With("service", "customize"),
		Project: p,
		Engine: &build.Engine{
			Logger:  logger.With("component", "engine"),
			Mounter: build.SystemMounter{},
			Runner:  build.ExecRunner{},
		},
	}
	return service.Run(ctx, request)
}

// PlannedRecipe describes one scheduled job.
type PlannedRecipe struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Priority    int               `yaml:"priority"`
	Parameters  map[string]string `yaml:"parameters,omitempty"`
	Steps       []string          `yaml:"steps,omitempty"`
}

// Plan returns the recipes a customization would apply, in order.
func Plan(options Options, layer string, logger *slog.Logger) ([]PlannedRecipe, error) {
	p, err := options.load()
	if err != nil {
		return nil, err
	}
	service := build.CustomizeService{Logger: logging.Ensure(logger), Project: p}
	jobs, err := service.Plan(layer)
	if err != nil {
		return nil, err
	}
	lib, err := p.Library()
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedRecipe, 0, len(jobs))
	for _, job := range jobs {
		steps := make([]string, 0, len(job.Recipe.Steps))
		for _, step := range job.Recipe.Steps {
			steps = append(steps, step.Filename)
		}
		planned = append(planned, PlannedRecipe{
			Name:        lib.QualifiedName(job.Index),
			Description: job.Recipe.Info.Description,
			Priority:    job.Recipe.Info.Priority,
			Parameters:  job.Parameters,
			Steps:       steps,
		})
	}
	return planned, nil
}

// RecipeSummary is a row of the recipe listing.
type RecipeSummary struct {
	Name        string
	Description string
	Default     bool
	Priority    int
}

// Recipes lists every recipe visible to the project.
func Recipes(options Options) ([]RecipeSummary, error) {
	p, err := options.load()
	if err != nil {
		return nil, err
	}
	lib, err := p.Library()
	if err != nil {
		return nil, err
	}

	summaries := make([]RecipeSummary, 0, len(lib.Recipes))
	for i, recipe := range lib.Recipes {
		summaries = append(summaries, RecipeSummary{
			Name:        lib.QualifiedName(library.RecipeIdx(i)),
			Description: recipe.Info.Description,
			Default:     recipe.Info.IsDefault(),
			Priority:    recipe.Info.Priority,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// LayerSummary is a row of the layer listing.
type LayerSummary struct {
	Name          string
	Parent        string
	Architectures []string
	Modified      string
}

// Layers lists the layers of the project's root repository.
func Layers(options Options) ([]LayerSummary, error) {
	p, err := options.load()
	if err != nil {
		return nil, err
	}
	lib, err := p.Library()
	if err != nil {
		return nil, err
	}

	root := lib.Repositories.Root
	summaries := make([]LayerSummary, 0, len(lib.LayerTables[root]))
	for name, idx := range lib.LayerTables[root] {
		layer := lib.Layer(idx)
		var architectures []string
		if layer.DefaultConfig != nil {
			architectures = append(architectures, "default")
		}
		for architecture := range layer.ArchConfigs {
			architectures = append(architectures, architecture.String())
		}
		sort.Strings(architectures)
		var parent string
		if layer.DefaultConfig != nil {
			parent = layer.DefaultConfig.Parent
		}
		summaries = append(summaries, LayerSummary{
			Name:          name,
			Parent:        parent,
			Architectures: architectures,
			Modified:      layer.Modified.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}
