//go:build !linux

package build

import "errors"

var errMountUnsupported = errors.New("mounting is only supported on linux")

// SystemMounter mounts through the host kernel.
type SystemMounter struct{}

func (SystemMounter) Bind(source, target string) error {
	return errMountUnsupported
}

func (SystemMounter) MountFS(fstype, target string) error {
	return errMountUnsupported
}

func (SystemMounter) Unmount(target string) error {
	return errMountUnsupported
}
