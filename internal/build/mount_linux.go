//go:build linux

package build

import "golang.org/x/sys/unix"

// SystemMounter mounts through the host kernel.
type SystemMounter struct{}

func (SystemMounter) Bind(source, target string) error {
	return unix.Mount(source, target, "", unix.MS_BIND, "")
}

func (SystemMounter) MountFS(fstype, target string) error {
	return unix.Mount(fstype, target, fstype, 0, "")
}

func (SystemMounter) Unmount(target string) error {
	return unix.Unmount(target, 0)
}
