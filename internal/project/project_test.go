package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cochaviz/bakery/arch"
	"github.com/cochaviz/bakery/internal/library"
	"github.com/cochaviz/bakery/internal/repositories"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `
architecture = "aarch64"
recipes = ["ssh"]
exclude = ["core/pi-cleanup"]

[parameters.ssh]
root_authorized_keys = "ssh-ed25519 AAAA"
port = 2222
password = false

[repositories]
vendor = { path = "../vendor" }
`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Loader{ProjectDir: dir}.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Config.Architecture != arch.Arm64 {
		t.Fatalf("architecture = %q, want arm64", p.Config.Architecture)
	}
	if p.Config.Repositories["vendor"].Path != "../vendor" {
		t.Fatalf("repositories = %v", p.Config.Repositories)
	}

	params, err := StringParameters(p.Config.Parameters)
	if err != nil {
		t.Fatalf("StringParameters() error = %v", err)
	}
	want := map[string]map[string]string{
		"ssh": {"root_authorized_keys": "ssh-ed25519 AAAA", "port": "2222", "password": "false"},
	}
	if diff := cmp.Diff(want, params); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Architecture != arch.Default {
		t.Fatalf("architecture = %q, want default", config.Architecture)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown architecture": "architecture = \"sparc\"\n",
		"unknown field":        "recipe = [\"ssh\"]\n",
		"nested parameter":     "[parameters.ssh.port]\nvalue = 1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), DefaultConfigFile)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("LoadConfig() error = nil, want non-nil")
			}
		})
	}
}

func TestLoaderConfigPath(t *testing.T) {
	l := Loader{ProjectDir: "/project"}
	if got := l.ConfigPath(); got != "/project/rugpi-bakery.toml" {
		t.Fatalf("ConfigPath() = %q", got)
	}
	l.ConfigFile = "other.toml"
	if got := l.ConfigPath(); got != "/project/other.toml" {
		t.Fatalf("ConfigPath() = %q", got)
	}
	l.ConfigFile = "/etc/bakery.toml"
	if got := l.ConfigPath(); got != "/etc/bakery.toml" {
		t.Fatalf("ConfigPath() = %q", got)
	}
}

func TestProjectCachesLibrary(t *testing.T) {
	repoCalls, libCalls := 0, 0
	p := &Project{
		Dir: "/project",
		loadRepositories: func(string, map[string]repositories.Source) (*repositories.ProjectRepositories, error) {
			repoCalls++
			return &repositories.ProjectRepositories{}, nil
		},
		loadLibrary: func(repos *repositories.ProjectRepositories) (*library.Library, error) {
			libCalls++
			return library.New(repos), nil
		},
	}

	first, err := p.Library()
	if err != nil {
		t.Fatalf("Library() error = %v", err)
	}
	second, err := p.Library()
	if err != nil {
		t.Fatalf("Library() error = %v", err)
	}
	if first != second {
		t.Fatal("Library() returned different instances")
	}
	if _, err := p.Repositories(); err != nil {
		t.Fatalf("Repositories() error = %v", err)
	}
	if repoCalls != 1 || libCalls != 1 {
		t.Fatalf("loads = %d/%d, want 1/1", repoCalls, libCalls)
	}
	if first.Repositories != p.repositories {
		t.Fatal("library was built from a different repository set")
	}
}

func TestProjectRetriesFailedLoad(t *testing.T) {
	calls := 0
	failure := errors.New("boom")
	p := &Project{
		loadRepositories: func(string, map[string]repositories.Source) (*repositories.ProjectRepositories, error) {
			calls++
			if calls == 1 {
				return nil, failure
			}
			return &repositories.ProjectRepositories{}, nil
		},
	}

	if _, err := p.Repositories(); !errors.Is(err, failure) {
		t.Fatalf("Repositories() error = %v, want %v", err, failure)
	}
	if _, err := p.Repositories(); err != nil {
		t.Fatalf("Repositories() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
