package build

import (
	"maps"
	"slices"
	"strings"
)

// Paths of the recipe directory as seen from inside the target tree.
const (
	RecipeMountPoint = "run/rugpi/bakery/recipe"
	chrootRecipeDir  = "/run/rugpi/bakery/recipe/"
)

// Variables passed to every step.
const (
	EnvFrontend    = "DEBIAN_FRONTEND"
	EnvRootDir     = "RUGPI_ROOT_DIR"
	EnvArch        = "RUGPI_ARCH"
	EnvRecipeDir   = "RECIPE_DIR"
	EnvStepPath    = "RECIPE_STEP_PATH"
	EnvParamPrefix = "RECIPE_PARAM_"
)

const frontendNoninteractive = "noninteractive"

// stepEnv collects the variables of a single step.
type stepEnv struct {
	vars map[string]string
}

func newStepEnv(rootDir, architecture, recipeDir, stepPath string, params map[string]string) *stepEnv {
	env := &stepEnv{vars: map[string]string{
		EnvFrontend:  frontendNoninteractive,
		EnvRootDir:   rootDir,
		EnvArch:      architecture,
		EnvRecipeDir: recipeDir,
		EnvStepPath:  stepPath,
	}}
	for name, value := range params {
		env.vars[EnvParamPrefix+strings.ToUpper(name)] = value
	}
	return env
}

// environ formats the variables as sorted "key=value" strings.
func (e *stepEnv) environ() []string {
	keys := slices.Sorted(maps.Keys(e.vars))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+e.vars[k])
	}
	return env
}
