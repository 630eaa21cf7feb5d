package project

import (
	"os"
	"path/filepath"

	"github.com/cochaviz/bakery/internal/library"
	"github.com/cochaviz/bakery/internal/repositories"
)

// Project is a loaded bakery project.
//
// Repositories and Library are computed on first use and cached for the
// lifetime of the project. The first call must happen on a single goroutine;
// once initialized, the cached values are read-only and may be shared.
type Project struct {
	Config BakeryConfig
	Dir    string

	loadRepositories func(dir string, sources map[string]repositories.Source) (*repositories.ProjectRepositories, error)
	loadLibrary      func(*repositories.ProjectRepositories) (*library.Library, error)

	repositories *repositories.ProjectRepositories
	library      *library.Library
}

// Repositories returns the repositories of the project. A failed load is not
// cached and will be retried by the next call.
func (p *Project) Repositories() (*repositories.ProjectRepositories, error) {
	if p.repositories != nil {
		return p.repositories, nil
	}
	load := p.loadRepositories
	if load == nil {
		load = repositories.Load
	}
	repos, err := load(p.Dir, p.Config.Repositories)
	if err != nil {
		return nil, err
	}
	p.repositories = repos
	return repos, nil
}

// Library returns the library of the project.
func (p *Project) Library() (*library.Library, error) {
	if p.library != nil {
		return p.library, nil
	}
	repos, err := p.Repositories()
	if err != nil {
		return nil, err
	}
	load := p.loadLibrary
	if load == nil {
		load = library.Load
	}
	lib, err := load(repos)
	if err != nil {
		return nil, err
	}
	p.library = lib
	return lib, nil
}

// Loader locates and reads a project.
type Loader struct {
	ProjectDir string
	// ConfigFile is relative to ProjectDir. Defaults to DefaultConfigFile.
	ConfigFile string
}

// CurrentDir returns a loader for the working directory.
func CurrentDir() (Loader, error) {
	dir, err := os.Getwd()
	if err != nil {
		return Loader{}, err
	}
	return Loader{ProjectDir: dir}, nil
}

// ConfigPath returns the full path of the configuration file.
func (l Loader) ConfigPath() string {
	file := l.ConfigFile
	if file == "" {
		file = DefaultConfigFile
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(l.ProjectDir, file)
}

// Load reads the configuration and returns the project.
func (l Loader) Load() (*Project, error) {
	dir, err := filepath.Abs(l.ProjectDir)
	if err != nil {
		return nil, err
	}
	config, err := LoadConfig(l.ConfigPath())
	if err != nil {
		return nil, err
	}
	return &Project{Config: config, Dir: dir}, nil
}
