package recipes

import "github.com/cochaviz/bakery/internal/repositories"

// StepKind selects where and how a step is executed.
type StepKind string

const (
	// StepPackages installs packages with the target's package manager, inside the chroot.
	StepPackages StepKind = "packages"
	// StepInstall runs a script from the recipe directory inside the chroot.
	StepInstall StepKind = "install"
	// StepRun runs a script from the recipe directory on the host.
	StepRun StepKind = "run"
)

// Chrooted reports whether steps of this kind run inside the target tree.
func (k StepKind) Chrooted() bool {
	return k == StepPackages || k == StepInstall
}

// Step is a single unit of work of a recipe.
type Step struct {
	Position int
	Filename string
	Kind     StepKind
	// Packages is only set for StepPackages.
	Packages []string
}

// ParameterDef declares a recipe parameter.
type ParameterDef struct {
	Default *string `toml:"default"`
}

// RecipeInfo is the content of a recipe's recipe.toml.
type RecipeInfo struct {
	Description  string                  `toml:"description"`
	Default      *bool                   `toml:"default"`
	Priority     int                     `toml:"priority"`
	Dependencies []string                `toml:"dependencies"`
	Parameters   map[string]ParameterDef `toml:"parameters"`
}

// IsDefault reports whether the recipe is applied without being requested.
func (i RecipeInfo) IsDefault() bool {
	return i.Default != nil && *i.Default
}

// Recipe is an immutable, loaded recipe. Recipes are shared by pointer and
// must not be modified after loading.
type Recipe struct {
	Name       string
	Repository repositories.RepositoryIdx
	Path       string
	Info       RecipeInfo
	Steps      []Step
}

// Label returns the description, falling back to the name.
func (r *Recipe) Label() string {
	if r.Info.Description != "" {
		return r.Info.Description
	}
	return r.Name
}
