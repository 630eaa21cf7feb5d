package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/cochaviz/bakery/arch"
	"github.com/cochaviz/bakery/internal/recipes"
)

// hostMounts are bound from the host into the target tree, in order.
var hostMounts = []string{"/dev", "/dev/pts", "/sys"}

// virtualMounts are fresh filesystems mounted after hostMounts, in order.
var virtualMounts = []struct {
	fstype string
	dir    string
}{
	{fstype: "proc", dir: "proc"},
	{fstype: "tmpfs", dir: "run"},
	{fstype: "tmpfs", dir: "tmp"},
}

// Engine applies scheduled recipes to an extracted system tree.
type Engine struct {
	Logger  *slog.Logger
	Mounter Mounter
	Runner  CommandRunner
}

// Apply runs every job in order against the tree at rootDir.
//
// The first failing step aborts the build. All mounts made by Apply are
// released in reverse order before it returns, also on failure; release
// errors are joined after the error that caused the abort.
func (e *Engine) Apply(ctx context.Context, architecture arch.Architecture, jobs []RecipeJob, rootDir string) (err error) {
	logger := e.logger().With("root", rootDir, "architecture", architecture.String())

	mounts := newMountStack(e.mounter(), logger)
	defer func() {
		if releaseErr := mounts.release(); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
	}()

	for _, source := range hostMounts {
		if err := mounts.bind(source, filepath.Join(rootDir, source)); err != nil {
			return err
		}
	}
	for _, m := range virtualMounts {
		if err := mounts.mountFS(m.fstype, filepath.Join(rootDir, m.dir)); err != nil {
			return err
		}
	}

	recipeMount := filepath.Join(rootDir, RecipeMountPoint)
	if err := os.MkdirAll(recipeMount, 0o755); err != nil {
		return fmt.Errorf("create recipe mount point: %w", err)
	}

	for i, job := range jobs {
		logger.Info("applying recipe",
			"index", i+1,
			"total", len(jobs),
			"recipe", job.Recipe.Label(),
			"parameters", job.Parameters,
		)
		if err := e.applyRecipe(ctx, logger, mounts, architecture, job, rootDir, recipeMount); err != nil {
			return err
		}
	}

	logger.Info("recipes applied", "count", len(jobs))
	return nil
}

func (e *Engine) applyRecipe(
	ctx context.Context,
	logger *slog.Logger,
	mounts *mountStack,
	architecture arch.Architecture,
	job RecipeJob,
	rootDir string,
	recipeMount string,
) (err error) {
	depth := mounts.depth()
	if err := mounts.bind(job.Recipe.Path, recipeMount); err != nil {
		return err
	}
	defer func() {
		if releaseErr := mounts.releaseTo(depth); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
	}()

	runner := e.runner()
	for _, step := range job.Recipe.Steps {
		logger.Info("running step", "step", step.Filename, "kind", string(step.Kind))
		cmd, err := stepCommand(architecture, job, step, rootDir)
		if err != nil {
			return fmt.Errorf("recipe %q: %w", job.Recipe.Name, err)
		}
		if err := runner.Run(ctx, cmd); err != nil {
			return fmt.Errorf("%w: recipe %q step %s: %w", ErrStepFailed, job.Recipe.Name, step.Filename, err)
		}
	}
	return nil
}

// stepCommand builds the process invocation of a step.
func stepCommand(architecture arch.Architecture, job RecipeJob, step recipes.Step, rootDir string) (Command, error) {
	recipe := job.Recipe

	if step.Kind.Chrooted() {
		chrootScript := path.Join("/", RecipeMountPoint, recipes.StepsDir, step.Filename)
		env := newStepEnv("/", architecture.String(), chrootRecipeDir, chrootScript, job.Parameters)
		args := []string{rootDir, chrootScript}
		if step.Kind == recipes.StepPackages {
			args = append([]string{rootDir, "apt-get", "install", "-y"}, step.Packages...)
		}
		return Command{Name: "chroot", Args: args, Env: env.environ()}, nil
	}

	switch step.Kind {
	case recipes.StepRun:
		script := filepath.Join(recipe.Path, recipes.StepsDir, step.Filename)
		env := newStepEnv(rootDir, architecture.String(), recipe.Path, script, job.Parameters)
		return Command{Name: script, Env: env.environ()}, nil
	default:
		return Command{}, fmt.Errorf("%w %q: unknown kind %q", recipes.ErrInvalidStep, step.Filename, step.Kind)
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) mounter() Mounter {
	if e.Mounter != nil {
		return e.Mounter
	}
	return SystemMounter{}
}

func (e *Engine) runner() CommandRunner {
	if e.Runner != nil {
		return e.Runner
	}
	return ExecRunner{}
}
