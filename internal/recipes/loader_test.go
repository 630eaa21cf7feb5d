package recipes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadRecipe(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "ssh")
	writeFile(t, filepath.Join(dir, InfoFile), `
description = "Enable SSH"
priority = 100
dependencies = ["core/apt-cleanup", "base"]

[parameters.root_authorized_keys]

[parameters.port]
default = "22"
`)
	writeFile(t, filepath.Join(dir, StepsDir, "20-run.sh"), "#!/bin/sh\n")
	writeFile(t, filepath.Join(dir, StepsDir, "00-packages"), "openssh-server # daemon\n  openssh-client\n# comment only\n")
	writeFile(t, filepath.Join(dir, StepsDir, "10-install.sh"), "#!/bin/sh\n")

	recipe, err := NewLoader(3).Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if recipe.Name != "ssh" {
		t.Fatalf("name = %q, want ssh", recipe.Name)
	}
	if recipe.Repository != 3 {
		t.Fatalf("repository = %d, want 3", recipe.Repository)
	}
	if recipe.Info.Priority != 100 {
		t.Fatalf("priority = %d, want 100", recipe.Info.Priority)
	}
	if recipe.Info.Default != nil {
		t.Fatalf("default = %v, want unset", *recipe.Info.Default)
	}
	if diff := cmp.Diff([]string{"core/apt-cleanup", "base"}, recipe.Info.Dependencies); diff != "" {
		t.Fatalf("dependencies mismatch (-want +got):\n%s", diff)
	}
	if recipe.Info.Parameters["root_authorized_keys"].Default != nil {
		t.Fatal("expected parameter without default")
	}
	if port := recipe.Info.Parameters["port"].Default; port == nil || *port != "22" {
		t.Fatalf("port default = %v, want 22", port)
	}

	want := []Step{
		{Position: 0, Filename: "00-packages", Kind: StepPackages, Packages: []string{"openssh-server", "openssh-client"}},
		{Position: 10, Filename: "10-install.sh", Kind: StepInstall},
		{Position: 20, Filename: "20-run.sh", Kind: StepRun},
	}
	if diff := cmp.Diff(want, recipe.Steps); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRecipeDefaultTagging(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	undeclared := filepath.Join(base, "undeclared")
	writeFile(t, filepath.Join(undeclared, InfoFile), "priority = 1\n")
	declared := filepath.Join(base, "declared")
	writeFile(t, filepath.Join(declared, InfoFile), "default = false\n")

	tests := []struct {
		name   string
		loader Loader
		dir    string
		want   bool
	}{
		{name: "root repository tags undeclared", loader: NewLoader(0).WithDefault(true), dir: undeclared, want: true},
		{name: "explicit declaration wins", loader: NewLoader(0).WithDefault(true), dir: declared, want: false},
		{name: "other repository", loader: NewLoader(1).WithDefault(false), dir: undeclared, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipe, err := tt.loader.Load(tt.dir)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if recipe.Info.IsDefault() != tt.want {
				t.Fatalf("IsDefault() = %v, want %v", recipe.Info.IsDefault(), tt.want)
			}
		})
	}
}

func TestLoadRecipeWithoutFiles(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "empty")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	recipe, err := NewLoader(0).Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(recipe.Steps) != 0 {
		t.Fatalf("expected no steps, got %d", len(recipe.Steps))
	}
	if recipe.Label() != "empty" {
		t.Fatalf("Label() = %q, want empty", recipe.Label())
	}
}

func TestLoadRecipeMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files map[string]string
	}{
		{name: "invalid toml", files: map[string]string{InfoFile: "priority = ["}},
		{name: "unknown field", files: map[string]string{InfoFile: "prio = 3\n"}},
		{name: "wrong type", files: map[string]string{InfoFile: "priority = \"high\"\n"}},
		{name: "empty dependency", files: map[string]string{InfoFile: "dependencies = [\"\"]\n"}},
		{name: "unknown step kind", files: map[string]string{"steps/10-bake.sh": ""}},
		{name: "step without position", files: map[string]string{"steps/install.sh": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "broken")
			for name, content := range tt.files {
				writeFile(t, filepath.Join(dir, name), content)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			_, err := NewLoader(0).Load(dir)
			if !errors.Is(err, ErrInvalidRecipe) {
				t.Fatalf("Load() error = %v, want ErrInvalidRecipe", err)
			}
		})
	}
}

func TestParseStepFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     Step
		wantErr  bool
	}{
		{filename: "00-packages", want: Step{Position: 0, Filename: "00-packages", Kind: StepPackages}},
		{filename: "5-install.sh", want: Step{Position: 5, Filename: "5-install.sh", Kind: StepInstall}},
		{filename: "50-run.tar.sh", want: Step{Position: 50, Filename: "50-run.tar.sh", Kind: StepRun}},
		{filename: "x-run", wantErr: true},
		{filename: "10-runner", wantErr: true},
		{filename: "10", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := ParseStepFilename(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStep) {
					t.Fatalf("ParseStepFilename() error = %v, want ErrInvalidStep", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStepFilename() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("step mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStepKindChrooted(t *testing.T) {
	if !StepPackages.Chrooted() || !StepInstall.Chrooted() {
		t.Fatal("packages and install steps run inside the chroot")
	}
	if StepRun.Chrooted() {
		t.Fatal("run steps run on the host")
	}
}
