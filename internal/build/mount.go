package build

import (
	"errors"
	"fmt"
	"log/slog"
)

// Mounter performs mounts on the host.
type Mounter interface {
	Bind(source, target string) error
	MountFS(fstype, target string) error
	Unmount(target string) error
}

// mountStack tracks active mounts and releases them in reverse order.
type mountStack struct {
	mounter Mounter
	logger  *slog.Logger
	targets []string
}

func newMountStack(mounter Mounter, logger *slog.Logger) *mountStack {
	return &mountStack{mounter: mounter, logger: logger}
}

func (s *mountStack) bind(source, target string) error {
	if err := s.mounter.Bind(source, target); err != nil {
		return fmt.Errorf("%w: bind %s to %s: %w", ErrMount, source, target, err)
	}
	s.logger.Debug("mounted", "source", source, "target", target)
	s.targets = append(s.targets, target)
	return nil
}

func (s *mountStack) mountFS(fstype, target string) error {
	if err := s.mounter.MountFS(fstype, target); err != nil {
		return fmt.Errorf("%w: mount %s on %s: %w", ErrMount, fstype, target, err)
	}
	s.logger.Debug("mounted", "fstype", fstype, "target", target)
	s.targets = append(s.targets, target)
	return nil
}

// depth returns the number of active mounts.
func (s *mountStack) depth() int {
	return len(s.targets)
}

// releaseTo unmounts everything above depth, newest first. Every mount is
// popped exactly once even if unmounting it fails.
func (s *mountStack) releaseTo(depth int) error {
	var errs []error
	for len(s.targets) > depth {
		target := s.targets[len(s.targets)-1]
		s.targets = s.targets[:len(s.targets)-1]
		if err := s.mounter.Unmount(target); err != nil {
			errs = append(errs, fmt.Errorf("%w: unmount %s: %w", ErrMount, target, err))
			continue
		}
		s.logger.Debug("unmounted", "target", target)
	}
	return errors.Join(errs...)
}

func (s *mountStack) release() error {
	return s.releaseTo(0)
}
