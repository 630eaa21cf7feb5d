package repositories

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// ManifestFile is the optional file declaring a repository's own dependencies.
const ManifestFile = "rugpi-repository.toml"

// CoreRepositoryEnv overrides the location of the core repository.
const CoreRepositoryEnv = "RUGPI_CORE_REPOSITORY"

// CoreRepositoryDataDir is searched for under every XDG data directory.
var CoreRepositoryDataDir = filepath.Join("rugpi", "core")

// RepositoryIdx identifies a repository in a ProjectRepositories collection.
type RepositoryIdx int

// Source points at a repository on the local file system.
type Source struct {
	Path string `toml:"path"`
}

// Repository is a named source of recipes and layers.
type Repository struct {
	Name string
	Dir  string
	// Dependencies maps the names this repository uses for its imports to
	// their identities.
	Dependencies map[string]RepositoryIdx
}

// ProjectRepositories is the tree of repositories reachable from a project.
type ProjectRepositories struct {
	Repositories []Repository
	Root         RepositoryIdx
	Core         RepositoryIdx
}

// Get returns the repository with the given index.
func (r *ProjectRepositories) Get(idx RepositoryIdx) *Repository {
	return &r.Repositories[idx]
}

// Resolve maps a short name used inside repository idx to a repository.
// The name "core" always refers to the core repository.
func (r *ProjectRepositories) Resolve(idx RepositoryIdx, name string) (RepositoryIdx, bool) {
	if name == "core" {
		return r.Core, true
	}
	dependency, ok := r.Repositories[idx].Dependencies[name]
	return dependency, ok
}

// Qualify returns a display name for item of repository idx. Items of
// imported repositories are prefixed with the name they were first imported as.
func (r *ProjectRepositories) Qualify(idx RepositoryIdx, item string) string {
	switch idx {
	case r.Root:
		return item
	case r.Core:
		return "core/" + item
	default:
		return r.Repositories[idx].Name + "/" + item
	}
}

type manifest struct {
	Repositories map[string]Source `toml:"repositories"`
}

// Load builds the repository tree of a project. The root repository is the
// project directory itself and imports the given sources.
func Load(projectDir string, sources map[string]Source) (*ProjectRepositories, error) {
	coreDir, err := FindCore()
	if err != nil {
		return nil, err
	}

	loader := &loader{byDir: map[string]RepositoryIdx{}}
	repos := &ProjectRepositories{}

	if repos.Core, err = loader.add("core", coreDir); err != nil {
		return nil, err
	}
	if repos.Root, err = loader.add("root", projectDir); err != nil {
		return nil, err
	}
	if err := loader.resolve(repos.Root, loader.repositories[repos.Root].Dir, sources); err != nil {
		return nil, err
	}

	repos.Repositories = loader.repositories
	return repos, nil
}

type loader struct {
	repositories []Repository
	byDir        map[string]RepositoryIdx
}

func (l *loader) add(name, dir string) (RepositoryIdx, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("resolve repository %q: %w", name, err)
	}
	if idx, ok := l.byDir[abs]; ok {
		return idx, nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("repository %q: %w", name, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("repository %q: %s is not a directory", name, abs)
	}

	idx := RepositoryIdx(len(l.repositories))
	l.repositories = append(l.repositories, Repository{
		Name:         name,
		Dir:          abs,
		Dependencies: map[string]RepositoryIdx{},
	})
	l.byDir[abs] = idx
	return idx, nil
}

func (l *loader) resolve(idx RepositoryIdx, baseDir string, sources map[string]Source) error {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "core" || strings.Contains(name, "/") {
			return fmt.Errorf("invalid repository name %q", name)
		}
		path := sources[name].Path
		if path == "" {
			return fmt.Errorf("repository %q: path is required", name)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		_, seen := l.byDir[filepath.Clean(path)]
		dependency, err := l.add(name, path)
		if err != nil {
			return err
		}
		l.repositories[idx].Dependencies[name] = dependency
		if seen {
			continue
		}

		nested, err := readManifest(l.repositories[dependency].Dir)
		if err != nil {
			return fmt.Errorf("repository %q: %w", name, err)
		}
		if err := l.resolve(dependency, l.repositories[dependency].Dir, nested.Repositories); err != nil {
			return err
		}
	}
	return nil
}

func readManifest(dir string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}
		return m, err
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	return m, nil
}

// FindCore locates the core repository, preferring the environment override
// over the XDG data directories.
func FindCore() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(CoreRepositoryEnv)); dir != "" {
		return dir, nil
	}
	candidates := append([]string{xdg.DataHome}, xdg.DataDirs...)
	for _, base := range candidates {
		dir := filepath.Join(base, CoreRepositoryDataDir)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("core repository not found; set %s or install it under %s in an XDG data directory", CoreRepositoryEnv, CoreRepositoryDataDir)
}
