// Package library indexes the recipes and layers of every repository of a
// project and resolves names across repository boundaries.
//
// Recipes and layers live in append-only slices addressed by RecipeIdx and
// LayerIdx. Each repository owns one name table per kind. A name of the form
// "dependency/item" is resolved in the repository the calling repository
// imports as "dependency"; the prefix "core" always selects the core
// repository.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cochaviz/bakery/internal/layers"
	"github.com/cochaviz/bakery/internal/recipes"
	"github.com/cochaviz/bakery/internal/repositories"
)

const (
	RecipesDir = "recipes"
	LayersDir  = "layers"
)

// RecipeIdx uniquely identifies a recipe in a Library.
type RecipeIdx int

// LayerIdx uniquely identifies a layer in a Library.
type LayerIdx int

// Library holds every recipe and layer of a project.
type Library struct {
	Repositories *repositories.ProjectRepositories
	Recipes      []*recipes.Recipe
	Layers       []*layers.Layer
	RecipeTables []map[string]RecipeIdx
	LayerTables  []map[string]LayerIdx
}

// New returns an empty library with one name table per repository.
func New(repos *repositories.ProjectRepositories) *Library {
	lib := &Library{
		Repositories: repos,
		RecipeTables: make([]map[string]RecipeIdx, len(repos.Repositories)),
		LayerTables:  make([]map[string]LayerIdx, len(repos.Repositories)),
	}
	for i := range repos.Repositories {
		lib.RecipeTables[i] = map[string]RecipeIdx{}
		lib.LayerTables[i] = map[string]LayerIdx{}
	}
	return lib
}

// Load scans the recipes and layers directories of every repository.
func Load(repos *repositories.ProjectRepositories) (*Library, error) {
	lib := New(repos)

	for i := range repos.Repositories {
		idx := repositories.RepositoryIdx(i)
		repository := repos.Get(idx)
		loader := recipes.NewLoader(idx).WithDefault(idx == repos.Root)
		if err := lib.loadRecipes(idx, loader, filepath.Join(repository.Dir, RecipesDir)); err != nil {
			return nil, fmt.Errorf("load recipes of repository %q: %w", repository.Name, err)
		}
	}

	for i := range repos.Repositories {
		idx := repositories.RepositoryIdx(i)
		repository := repos.Get(idx)
		if err := lib.loadLayers(idx, filepath.Join(repository.Dir, LayersDir)); err != nil {
			return nil, fmt.Errorf("load layers of repository %q: %w", repository.Name, err)
		}
	}

	return lib, nil
}

func (lib *Library) loadRecipes(repository repositories.RepositoryIdx, loader recipes.Loader, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := stat(path, entry)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			continue
		}
		recipe, err := loader.Load(path)
		if err != nil {
			return err
		}
		if _, err := lib.AddRecipe(repository, recipe); err != nil {
			return err
		}
	}
	return nil
}

func (lib *Library) loadLayers(repository repositories.RepositoryIdx, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), layers.FileExtension) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := stat(path, entry)
		if err != nil {
			return err
		}
		if info.IsDir() {
			continue
		}
		name, architecture, err := layers.ParseFilename(entry.Name())
		if err != nil {
			return err
		}
		config, err := layers.LoadConfig(path)
		if err != nil {
			return err
		}

		layerIdx, ok := lib.LayerTables[repository][name]
		if !ok {
			layerIdx = LayerIdx(len(lib.Layers))
			lib.Layers = append(lib.Layers, layers.New(repository, info.ModTime()))
			lib.LayerTables[repository][name] = layerIdx
		}
		lib.Layers[layerIdx].Add(architecture, config, info.ModTime())
	}
	return nil
}

// stat describes a directory entry, following symbolic links.
func stat(path string, entry fs.DirEntry) (fs.FileInfo, error) {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Info()
	}
	return os.Stat(path)
}

// AddRecipe appends a recipe and registers its name in the repository's table.
func (lib *Library) AddRecipe(repository repositories.RepositoryIdx, recipe *recipes.Recipe) (RecipeIdx, error) {
	if _, exists := lib.RecipeTables[repository][recipe.Name]; exists {
		return 0, fmt.Errorf("%w: duplicate recipe %q", recipes.ErrInvalidRecipe, recipe.Name)
	}
	idx := RecipeIdx(len(lib.Recipes))
	lib.Recipes = append(lib.Recipes, recipe)
	lib.RecipeTables[repository][recipe.Name] = idx
	return idx, nil
}

// Recipe returns the recipe with the given index.
func (lib *Library) Recipe(idx RecipeIdx) *recipes.Recipe {
	return lib.Recipes[idx]
}

// Layer returns the layer with the given index.
func (lib *Library) Layer(idx LayerIdx) *layers.Layer {
	return lib.Layers[idx]
}

// Lookup resolves a recipe name as seen from the given repository.
func (lib *Library) Lookup(repository repositories.RepositoryIdx, name string) (RecipeIdx, bool) {
	target, item, ok := lib.resolve(repository, name)
	if !ok {
		return 0, false
	}
	idx, ok := lib.RecipeTables[target][item]
	return idx, ok
}

// LookupLayer resolves a layer name as seen from the given repository.
func (lib *Library) LookupLayer(repository repositories.RepositoryIdx, name string) (LayerIdx, bool) {
	target, item, ok := lib.resolve(repository, name)
	if !ok {
		return 0, false
	}
	idx, ok := lib.LayerTables[target][item]
	return idx, ok
}

func (lib *Library) resolve(repository repositories.RepositoryIdx, name string) (repositories.RepositoryIdx, string, bool) {
	dependency, item, qualified := strings.Cut(name, "/")
	if !qualified {
		return repository, name, true
	}
	target, ok := lib.Repositories.Resolve(repository, dependency)
	return target, item, ok
}

// QualifiedName returns the display name of a recipe.
func (lib *Library) QualifiedName(idx RecipeIdx) string {
	recipe := lib.Recipes[idx]
	return lib.Repositories.Qualify(recipe.Repository, recipe.Name)
}
