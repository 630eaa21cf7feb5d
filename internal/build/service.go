package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cochaviz/bakery/internal/project"
)

// CustomizeRequest describes a single customization of a system archive.
type CustomizeRequest struct {
	Source      string
	Destination string
	// Layer selects a layer configuration instead of the project's recipes.
	Layer string
}

// CustomizeService extracts a system archive, applies the scheduled recipes
// and packs the result.
type CustomizeService struct {
	Logger  *slog.Logger
	Project *project.Project
	Engine  *Engine
	Runner  CommandRunner
	// WorkDir holds the temporary build trees. Defaults to os.TempDir().
	WorkDir string
}

// Plan returns the jobs a customization would apply.
func (s *CustomizeService) Plan(layer string) ([]RecipeJob, error) {
	if s.Project == nil {
		return nil, errors.New("project is not configured")
	}
	lib, err := s.Project.Library()
	if err != nil {
		return nil, err
	}

	var config ScheduleConfig
	if layer != "" {
		config, err = LayerSchedule(lib, layer, s.Project.Config.Architecture)
	} else {
		config, err = ProjectSchedule(s.Project.Config, lib.Repositories.Root)
	}
	if err != nil {
		return nil, err
	}
	return Schedule(lib, config)
}

// Run performs the customization described by request.
func (s *CustomizeService) Run(ctx context.Context, request CustomizeRequest) (err error) {
	buildID := uuid.New().String()
	logger := s.logger().With("build", buildID)
	if request.Layer != "" {
		logger = logger.With("layer", request.Layer)
	}

	jobs, err := s.Plan(request.Layer)
	if err != nil {
		return fmt.Errorf("schedule recipes: %w", err)
	}
	logger.Info("recipes scheduled", "count", len(jobs))

	base := s.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	rootDir := filepath.Join(base, "bakery-"+buildID)
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return fmt.Errorf("create build directory: %w", err)
	}
	defer func() {
		// A failed unmount may leave host filesystems bound inside the tree.
		if errors.Is(err, ErrMount) {
			logger.Warn("build directory kept after mount failure", "path", rootDir)
			return
		}
		if removeErr := os.RemoveAll(rootDir); removeErr != nil {
			err = errors.Join(err, fmt.Errorf("remove build directory: %w", removeErr))
		}
	}()

	runner := s.runner()
	logger.Info("extracting system files", "source", request.Source)
	if err := runner.Run(ctx, Command{Name: "tar", Args: []string{"-x", "-f", request.Source, "-C", rootDir}}); err != nil {
		return fmt.Errorf("extract %s: %w", request.Source, err)
	}

	engine := s.Engine
	if engine == nil {
		engine = &Engine{Logger: logger, Runner: runner}
	}
	if err := engine.Apply(ctx, s.Project.Config.Architecture, jobs, rootDir); err != nil {
		return err
	}

	logger.Info("packing system files", "destination", request.Destination)
	if err := runner.Run(ctx, Command{Name: "tar", Args: []string{"-c", "-f", request.Destination, "-C", rootDir, "."}}); err != nil {
		return fmt.Errorf("pack %s: %w", request.Destination, err)
	}

	logger.Info("customization completed")
	return nil
}

func (s *CustomizeService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *CustomizeService) runner() CommandRunner {
	if s.Runner != nil {
		return s.Runner
	}
	return ExecRunner{}
}
