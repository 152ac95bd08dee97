//go:build windows

package appendstore

// On Windows, provide no-op mmap to keep builds portable.
// Reads fall back to direct file I/O via ReadAt in store.go.

func (s *Store) remap() error {
	s.data = nil
	return nil
}

func (s *Store) unmap() {
	// Nothing to do
}
