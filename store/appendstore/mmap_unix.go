//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris || aix

package appendstore

import (
	"golang.org/x/sys/unix"
)

// remap maps the backing file into memory read-only over its full physical
// size. If mapping fails, it is a no-op and reads fall back to ReadAt.
func (s *Store) remap() error {
	if s.data != nil {
		_ = unix.Munmap(s.data)
		s.data = nil
	}
	if s.size == 0 || s.f == nil {
		return nil
	}
	b, err := unix.Mmap(int(s.f.Fd()), 0, int(s.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil
	}
	s.data = b
	return nil
}

// unmap releases any active mapping.
func (s *Store) unmap() {
	if s.data != nil {
		_ = unix.Munmap(s.data)
		s.data = nil
	}
}
