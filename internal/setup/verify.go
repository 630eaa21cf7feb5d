package setup

import (
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// RequiredCommands must be on PATH for a customization to run.
var RequiredCommands = []string{"chroot", "tar"}

// ErrNotRoot is returned when the process lacks the privileges for mounting.
var ErrNotRoot = errors.New("customization requires root privileges")

// lookPath and getuid are replaced in tests.
var (
	lookPath = exec.LookPath
	getuid   = unix.Getuid
)

// Verify reports every missing host prerequisite.
func Verify() error {
	var errs []error
	if getuid() != 0 {
		errs = append(errs, ErrNotRoot)
	}
	for _, name := range RequiredCommands {
		path, err := lookPath(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("command %q not found: %w", name, err))
			continue
		}
		getLogger().Debug("found command", "command", name, "path", path)
	}
	return errors.Join(errs...)
}
