package build

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/cochaviz/bakery/arch"
	"github.com/cochaviz/bakery/internal/library"
	"github.com/cochaviz/bakery/internal/project"
	"github.com/cochaviz/bakery/internal/recipes"
	"github.com/cochaviz/bakery/internal/repositories"
)

// RecipeJob is a recipe with all of its parameters resolved.
type RecipeJob struct {
	Index      library.RecipeIdx
	Recipe     *recipes.Recipe
	Parameters map[string]string
}

// ScheduleConfig selects the recipes of a build. Names are resolved relative
// to Repository.
type ScheduleConfig struct {
	Repository repositories.RepositoryIdx
	Recipes    []string
	Exclude    []string
	// Parameters maps recipe names to parameter values.
	Parameters map[string]map[string]string
}

// ProjectSchedule returns the schedule configured in the project file.
func ProjectSchedule(config project.BakeryConfig, root repositories.RepositoryIdx) (ScheduleConfig, error) {
	params, err := project.StringParameters(config.Parameters)
	if err != nil {
		return ScheduleConfig{}, err
	}
	return ScheduleConfig{
		Repository: root,
		Recipes:    config.Recipes,
		Exclude:    config.Exclude,
		Parameters: params,
	}, nil
}

// LayerSchedule returns the schedule of a layer for the given architecture.
// Names are resolved relative to the repository declaring the layer.
func LayerSchedule(lib *library.Library, name string, architecture arch.Architecture) (ScheduleConfig, error) {
	idx, ok := lib.LookupLayer(lib.Repositories.Root, name)
	if !ok {
		return ScheduleConfig{}, fmt.Errorf("%w %q", ErrUnknownLayer, name)
	}
	layer := lib.Layer(idx)
	config := layer.Config(architecture)
	if config == nil {
		return ScheduleConfig{}, fmt.Errorf("%w %q: no configuration for %s", ErrUnknownLayer, name, architecture)
	}
	params, err := project.StringParameters(config.Parameters)
	if err != nil {
		return ScheduleConfig{}, fmt.Errorf("layer %q: %w", name, err)
	}
	return ScheduleConfig{
		Repository: layer.Repository,
		Recipes:    config.Recipes,
		Exclude:    config.Exclude,
		Parameters: params,
	}, nil
}

// Schedule computes the ordered list of jobs to apply.
//
// Default recipes that are not excluded and explicitly requested recipes are
// expanded with their transitive dependencies. Every recipe appears once.
// Jobs are ordered by descending priority; equal priorities keep the order in
// which recipes were first reached.
func Schedule(lib *library.Library, config ScheduleConfig) ([]RecipeJob, error) {
	excluded := map[library.RecipeIdx]bool{}
	for _, name := range config.Exclude {
		idx, ok := lib.Lookup(config.Repository, name)
		if !ok {
			return nil, fmt.Errorf("%w %q in exclude", ErrUnknownRecipe, name)
		}
		excluded[idx] = true
	}

	configured := map[library.RecipeIdx]map[string]string{}
	for name, values := range config.Parameters {
		idx, ok := lib.Lookup(config.Repository, name)
		if !ok {
			return nil, fmt.Errorf("%w %q in parameters", ErrUnknownRecipe, name)
		}
		configured[idx] = values
	}

	var stack []library.RecipeIdx
	for i, recipe := range lib.Recipes {
		idx := library.RecipeIdx(i)
		if recipe.Info.IsDefault() && !excluded[idx] {
			stack = append(stack, idx)
		}
	}
	for _, name := range config.Recipes {
		idx, ok := lib.Lookup(config.Repository, name)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownRecipe, name)
		}
		stack = append(stack, idx)
	}

	visited := map[library.RecipeIdx]bool{}
	var order []library.RecipeIdx
	for _, idx := range stack {
		if !visited[idx] {
			visited[idx] = true
			order = append(order, idx)
		}
	}
	stack = slices.Clone(order)

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		recipe := lib.Recipe(idx)
		for _, name := range recipe.Info.Dependencies {
			dep, ok := lib.Lookup(recipe.Repository, name)
			if !ok {
				return nil, fmt.Errorf("%w %q required by %q", ErrUnknownRecipe, name, lib.QualifiedName(idx))
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			order = append(order, dep)
			stack = append(stack, dep)
		}
	}

	jobs := make([]RecipeJob, 0, len(order))
	for _, idx := range order {
		params, err := resolveParameters(lib, idx, configured[idx])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, RecipeJob{Index: idx, Recipe: lib.Recipe(idx), Parameters: params})
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].Recipe.Info.Priority > jobs[j].Recipe.Info.Priority
	})
	return jobs, nil
}

func resolveParameters(lib *library.Library, idx library.RecipeIdx, configured map[string]string) (map[string]string, error) {
	recipe := lib.Recipe(idx)
	for _, name := range slices.Sorted(maps.Keys(configured)) {
		if _, ok := recipe.Info.Parameters[name]; !ok {
			return nil, fmt.Errorf("%w %q for recipe %q", ErrUnknownParameter, name, lib.QualifiedName(idx))
		}
	}

	params := make(map[string]string, len(recipe.Info.Parameters))
	for _, name := range slices.Sorted(maps.Keys(recipe.Info.Parameters)) {
		def := recipe.Info.Parameters[name]
		if value, ok := configured[name]; ok {
			params[name] = value
			continue
		}
		if def.Default != nil {
			params[name] = *def.Default
			continue
		}
		return nil, fmt.Errorf("%w for parameter %q of recipe %q", ErrMissingParameter, name, lib.QualifiedName(idx))
	}
	return params, nil
}
