package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cochaviz/bakery/internal/project"
	"github.com/cochaviz/bakery/internal/repositories"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// newTestProject lays out a core repository and a project on disk.
func newTestProject(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	coreDir := filepath.Join(base, "core")
	projectDir := filepath.Join(base, "project")

	writeTestFile(t, filepath.Join(coreDir, "recipes", "apt-cleanup", "recipe.toml"), "default = true\npriority = -100\n")
	writeTestFile(t, filepath.Join(coreDir, "recipes", "apt-cleanup", "steps", "10-run.sh"), "#!/bin/sh\n")
	writeTestFile(t, filepath.Join(projectDir, "recipes", "ssh", "recipe.toml"), `
description = "Enable SSH"
default = false

[parameters.root_authorized_keys]
`)
	writeTestFile(t, filepath.Join(projectDir, "recipes", "ssh", "steps", "00-packages"), "openssh-server\n")
	writeTestFile(t, filepath.Join(projectDir, "layers", "customized.toml"), "recipes = [\"ssh\"]\n\n[parameters.ssh]\nroot_authorized_keys = \"key\"\n")
	writeTestFile(t, filepath.Join(projectDir, project.DefaultConfigFile), `
recipes = ["ssh"]

[parameters.ssh]
root_authorized_keys = "ssh-ed25519 AAAA"
`)

	t.Setenv(repositories.CoreRepositoryEnv, coreDir)
	return projectDir
}

func loadTestProject(t *testing.T, dir string) *project.Project {
	t.Helper()
	p, err := project.Loader{ProjectDir: dir}.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return p
}

func TestCustomizeServicePlan(t *testing.T) {
	p := loadTestProject(t, newTestProject(t))
	service := &CustomizeService{Logger: discardLogger(), Project: p}

	jobs, err := service.Plan("")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(jobs) != 2 || jobs[0].Recipe.Name != "ssh" || jobs[1].Recipe.Name != "apt-cleanup" {
		t.Fatalf("unexpected plan: %+v", jobs)
	}
	if got := jobs[0].Parameters["root_authorized_keys"]; got != "ssh-ed25519 AAAA" {
		t.Fatalf("parameter = %q", got)
	}

	jobs, err = service.Plan("customized")
	if err != nil {
		t.Fatalf("Plan(customized) error = %v", err)
	}
	if got := jobs[0].Parameters["root_authorized_keys"]; got != "key" {
		t.Fatalf("layer parameter = %q", got)
	}

	if _, err := service.Plan("missing"); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("Plan(missing) error = %v, want ErrUnknownLayer", err)
	}
}

func TestCustomizeServiceRun(t *testing.T) {
	p := loadTestProject(t, newTestProject(t))
	workDir := t.TempDir()
	runner := &fakeRunner{}
	mounter := &fakeMounter{}
	service := &CustomizeService{
		Logger:  discardLogger(),
		Project: p,
		Runner:  runner,
		Engine:  &Engine{Logger: discardLogger(), Mounter: mounter, Runner: runner},
		WorkDir: workDir,
	}

	request := CustomizeRequest{Source: "/images/base.tar", Destination: "/images/custom.tar"}
	if err := service.Run(context.Background(), request); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(runner.commands) != 4 {
		t.Fatalf("ran %d commands, want 4", len(runner.commands))
	}
	extract := runner.commands[0].String()
	pack := runner.commands[3].String()
	if !strings.HasPrefix(extract, "tar -x -f /images/base.tar -C "+workDir) {
		t.Fatalf("extract command = %q", extract)
	}
	if !strings.HasPrefix(pack, "tar -c -f /images/custom.tar -C "+workDir) || !strings.HasSuffix(pack, " .") {
		t.Fatalf("pack command = %q", pack)
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("build directory not removed: %v", entries)
	}
}

func TestCustomizeServiceRunFailure(t *testing.T) {
	p := loadTestProject(t, newTestProject(t))
	workDir := t.TempDir()

	tests := []struct {
		name    string
		runner  *fakeRunner
		mounter *fakeMounter
		is      error
	}{
		{name: "extract", runner: &fakeRunner{failOn: "tar -x"}, mounter: &fakeMounter{}},
		{name: "step", runner: &fakeRunner{failOn: "apt-get"}, mounter: &fakeMounter{}, is: ErrStepFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &CustomizeService{
				Logger:  discardLogger(),
				Project: p,
				Runner:  tt.runner,
				Engine:  &Engine{Logger: discardLogger(), Mounter: tt.mounter, Runner: tt.runner},
				WorkDir: workDir,
			}
			err := service.Run(context.Background(), CustomizeRequest{Source: "in.tar", Destination: "out.tar"})
			if err == nil {
				t.Fatal("Run() error = nil, want non-nil")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Fatalf("Run() error = %v, want %v", err, tt.is)
			}
			for _, cmd := range tt.runner.commands {
				if strings.HasPrefix(cmd.String(), "tar -c") {
					t.Fatal("archive packed after failure")
				}
			}
			entries, _ := os.ReadDir(workDir)
			if len(entries) != 0 {
				t.Fatalf("build directory not removed: %v", entries)
			}
		})
	}
}

func TestCustomizeServiceKeepsTreeAfterUnmountFailure(t *testing.T) {
	p := loadTestProject(t, newTestProject(t))
	workDir := t.TempDir()
	runner := &fakeRunner{}
	mounter := &unmountFailingMounter{}
	service := &CustomizeService{
		Logger:  discardLogger(),
		Project: p,
		Runner:  runner,
		Engine:  &Engine{Logger: discardLogger(), Mounter: mounter, Runner: runner},
		WorkDir: workDir,
	}

	err := service.Run(context.Background(), CustomizeRequest{Source: "in.tar", Destination: "out.tar"})
	if !errors.Is(err, ErrMount) {
		t.Fatalf("Run() error = %v, want ErrMount", err)
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 1 {
		t.Fatalf("expected build directory to be kept, found %d entries", len(entries))
	}
}

type unmountFailingMounter struct {
	fakeMounter
}

func (m *unmountFailingMounter) Unmount(target string) error {
	return errors.New("target busy")
}
