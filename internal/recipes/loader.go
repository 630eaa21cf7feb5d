package recipes

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/cochaviz/bakery/internal/repositories"
)

const (
	// InfoFile holds the recipe's metadata.
	InfoFile = "recipe.toml"
	// StepsDir holds the recipe's step files.
	StepsDir = "steps"
)

// Loader reads recipe directories belonging to one repository.
type Loader struct {
	repository repositories.RepositoryIdx
	isDefault  *bool
}

// NewLoader returns a loader tagging recipes with the given repository.
func NewLoader(repository repositories.RepositoryIdx) Loader {
	return Loader{repository: repository}
}

// WithDefault sets the default flag for recipes that do not declare one.
func (l Loader) WithDefault(isDefault bool) Loader {
	l.isDefault = &isDefault
	return l
}

// Load reads the recipe stored in dir. The recipe is named after the directory.
func (l Loader) Load(dir string) (*Recipe, error) {
	name := filepath.Base(dir)

	info, err := loadInfo(filepath.Join(dir, InfoFile))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidRecipe, name, err)
	}
	if info.Default == nil && l.isDefault != nil {
		isDefault := *l.isDefault
		info.Default = &isDefault
	}

	steps, err := loadSteps(filepath.Join(dir, StepsDir))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidRecipe, name, err)
	}

	return &Recipe{
		Name:       name,
		Repository: l.repository,
		Path:       dir,
		Info:       info,
		Steps:      steps,
	}, nil
}

func loadInfo(path string) (RecipeInfo, error) {
	var info RecipeInfo
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return info, err
	}

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&info); err != nil {
		return info, fmt.Errorf("parse %s: %w", InfoFile, err)
	}
	for _, dependency := range info.Dependencies {
		if strings.TrimSpace(dependency) == "" {
			return info, errors.New("empty dependency name")
		}
	}
	return info, nil
}

func loadSteps(dir string) ([]Step, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	steps := make([]Step, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		step, err := ParseStepFilename(entry.Name())
		if err != nil {
			return nil, err
		}
		if step.Kind == StepPackages {
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, err
			}
			step.Packages = parsePackages(data)
		}
		steps = append(steps, step)
	}

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Position != steps[j].Position {
			return steps[i].Position < steps[j].Position
		}
		return steps[i].Filename < steps[j].Filename
	})
	return steps, nil
}

// ParseStepFilename parses names of the form <position>-<kind>[.<ext>].
func ParseStepFilename(filename string) (Step, error) {
	position, rest, ok := strings.Cut(filename, "-")
	if !ok {
		return Step{}, fmt.Errorf("%w %q: expected <position>-<kind>", ErrInvalidStep, filename)
	}
	pos, err := strconv.Atoi(position)
	if err != nil {
		return Step{}, fmt.Errorf("%w %q: invalid position: %w", ErrInvalidStep, filename, err)
	}

	kind, _, _ := strings.Cut(rest, ".")
	switch StepKind(kind) {
	case StepPackages, StepInstall, StepRun:
	default:
		return Step{}, fmt.Errorf("%w %q: unknown kind %q", ErrInvalidStep, filename, kind)
	}

	return Step{
		Position: pos,
		Filename: filename,
		Kind:     StepKind(kind),
	}, nil
}

func parsePackages(data []byte) []string {
	var packages []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		packages = append(packages, strings.Fields(line)...)
	}
	return packages
}
