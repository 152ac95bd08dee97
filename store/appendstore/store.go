// Package appendstore owns the append-only backing data file of the media
// store. Appends return stable byte offsets that are never reused or
// rewritten; reads are served from a read-only memory mapping when the
// platform provides one, falling back to direct file I/O otherwise.
//
// Implementation notes
//   - Writes go through the file descriptor (WriteAt); the mapping is used
//     only for reads, which keeps the portability story simple. The mapping
//     is MAP_SHARED, so reads observe completed writes.
//   - The file grows geometrically (doubling) up to a configured hard
//     maximum. Offsets are logical byte positions, so growing and remapping
//     never invalidates an offset held by an index.
//   - A small JSON manifest next to the data file records the logical tail;
//     the physical file is preallocated, so size alone cannot recover it.
package appendstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultInitialSize = 1 << 20 // 1 MiB
	defaultMaxSize     = 1 << 30 // 1 GiB
	manifestSuffix     = ".manifest"
)

// Options configures the store.
type Options struct {
	// Path is the backing data file location.
	Path string
	// InitialSize is the preallocated file size for a fresh store.
	InitialSize int64
	// MaxSize is the hard growth limit; appends beyond it fail with
	// ErrCapacity.
	MaxSize int64
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

func (o *Options) withDefaults() {
	if o.InitialSize <= 0 {
		o.InitialSize = defaultInitialSize
	}
	if o.MaxSize <= 0 {
		o.MaxSize = defaultMaxSize
	}
	if o.InitialSize > o.MaxSize {
		o.InitialSize = o.MaxSize
	}
}

// Stats exposes basic runtime metrics for the backing file.
type Stats struct {
	Size         int64  `json:"size"`
	Tail         int64  `json:"tail"`
	MaxSize      int64  `json:"maxSize"`
	Appends      uint64 `json:"appends"`
	BytesWritten uint64 `json:"bytesWritten"`
	BytesRead    uint64 `json:"bytesRead"`
}

type manifest struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	Tail      int64     `json:"tail"`
	Size      int64     `json:"size"`
}

// Store is an append-only, mmap-backed data file. Many readers may proceed
// concurrently; appends and growth take exclusive access.
type Store struct {
	mu     sync.RWMutex
	path   string
	f      *os.File
	size   int64 // physical allocated size
	tail   int64 // logical end of valid data
	max    int64
	data   []byte // read-only mmap view; nil when mapping is unsupported
	closed bool
	man    manifest
	log    zerolog.Logger

	appends      atomic.Uint64
	bytesWritten atomic.Uint64
	bytesRead    atomic.Uint64
}

// Open creates or reopens a store at opts.Path. Reopening a data file whose
// manifest is missing fails with ErrNoManifest rather than guessing a tail.
func Open(opts Options) (*Store, error) {
	opts.withDefaults()
	if opts.Path == "" {
		return nil, fmt.Errorf("appendstore: Path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("appendstore: mkdir: %w", err)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s := &Store{path: opts.Path, max: opts.MaxSize, log: logger}
	if err := s.loadOrInit(opts.InitialSize); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadOrInit(initialSize int64) error {
	_, statErr := os.Stat(s.path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("appendstore: open: %w", err)
	}
	s.f = f

	if fresh {
		if err := f.Truncate(initialSize); err != nil {
			return fmt.Errorf("appendstore: preallocate: %w", err)
		}
		s.size = initialSize
		s.tail = 0
		s.man = manifest{Version: 1, CreatedAt: time.Now().UTC(), Tail: 0, Size: initialSize}
		if err := s.persistManifest(); err != nil {
			return err
		}
		_ = s.remap()
		s.log.Info().Str("path", s.path).Int64("size", initialSize).Msg("created backing file")
		return nil
	}

	manPath := s.path + manifestSuffix
	mf, err := os.Open(manPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoManifest, manPath)
	}
	if err != nil {
		return fmt.Errorf("appendstore: open manifest: %w", err)
	}
	defer mf.Close()
	if err := json.NewDecoder(mf).Decode(&s.man); err != nil {
		return fmt.Errorf("appendstore: decode manifest: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if s.man.Tail > info.Size() {
		return fmt.Errorf("appendstore: manifest tail %d beyond file size %d", s.man.Tail, info.Size())
	}
	s.size = info.Size()
	s.tail = s.man.Tail
	_ = s.remap()
	s.log.Info().Str("path", s.path).Int64("tail", s.tail).Int64("size", s.size).Msg("reopened backing file")
	return nil
}

// Append writes buf at the logical tail and returns the byte offset the
// data begins at. The offset stays valid for the lifetime of the file.
func (s *Store) Append(buf []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	required := s.tail + int64(len(buf))
	if required > s.size {
		if err := s.growLocked(required); err != nil {
			return 0, err
		}
	}
	off := s.tail
	if _, err := s.f.WriteAt(buf, off); err != nil {
		return 0, fmt.Errorf("appendstore: write at %d: %w", off, err)
	}
	s.tail = required
	s.man.Tail = s.tail
	s.man.Size = s.size
	s.appends.Add(1)
	s.bytesWritten.Add(uint64(len(buf)))
	return uint64(off), nil
}

// growLocked extends the backing allocation to at least required bytes,
// doubling the current size. Exceeding the configured maximum is a hard
// capacity error, never a silent truncation.
func (s *Store) growLocked(required int64) error {
	if required > s.max {
		return fmt.Errorf("%w: need %d, max %d", ErrCapacity, required, s.max)
	}
	newSize := s.size * 2
	if newSize < required {
		newSize = required
	}
	if newSize > s.max {
		newSize = s.max
	}
	if err := s.f.Truncate(newSize); err != nil {
		return fmt.Errorf("appendstore: grow to %d: %w", newSize, err)
	}
	oldSize := s.size
	s.size = newSize
	_ = s.remap()
	s.log.Debug().Int64("from", oldSize).Int64("to", newSize).Msg("grew backing file")
	return nil
}

// ReadAt returns n bytes starting at off. The result is always copied
// out of the mapping: a growth remap or Close replaces the mapped view,
// so an aliasing slice could end up pointing at unmapped memory.
func (s *Store) ReadAt(off uint64, n int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	end := int64(off) + int64(n)
	if end > s.tail || int64(off) < 0 {
		return nil, fmt.Errorf("%w: offset %d + %d bytes, tail %d", ErrOutOfRange, off, n, s.tail)
	}
	s.bytesRead.Add(uint64(n))
	buf := make([]byte, n)
	if s.data != nil && end <= int64(len(s.data)) {
		copy(buf, s.data[off:end])
		return buf, nil
	}
	if _, err := s.f.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("appendstore: read at %d: %w", off, err)
	}
	return buf, nil
}

// Tail returns the logical end of data, i.e. the offset the next append
// will return.
func (s *Store) Tail() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tail
}

// Sync flushes pending writes and persists the manifest. Callers decide
// the frequency, trading durability for throughput.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("appendstore: sync: %w", err)
	}
	return s.persistManifest()
}

// Close releases the mapping and the file handle. The final manifest is
// persisted so the tail survives a clean shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	if s.f != nil {
		if err := s.persistManifest(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.unmap()
	return firstErr
}

// Stats returns best-effort metrics; it is cheap to call.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Size:         s.size,
		Tail:         s.tail,
		MaxSize:      s.max,
		Appends:      s.appends.Load(),
		BytesWritten: s.bytesWritten.Load(),
		BytesRead:    s.bytesRead.Load(),
	}
}

func (s *Store) persistManifest() error {
	tmp := s.path + manifestSuffix + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&s.man); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path+manifestSuffix)
}
