// Package index maintains the in-memory lookup structures of the media
// store: canonical path and numeric id to store offset, a radix-tree
// directory index, and artist/album/genre/year tag indexes backed by
// roaring bitmaps of offsets. A denormalized reverse entry per path lets
// removal scrub every index the record contributed to, so tag indexes
// never go stale on delete.
package index

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/roaring64"
	radix "github.com/armon/go-radix"
	"github.com/rs/zerolog"

	"github.com/vuio/mediastore/schema"
)

// Kind identifies one of the maintained indexes for dirty tracking.
type Kind uint8

const (
	KindPath Kind = iota
	KindID
	KindDirectory
	KindArtist
	KindAlbum
	KindGenre
	KindYear
)

// offsetSet is a roaring bitmap of frame offsets with per-offset
// reference counts. Records written in one batch share a frame offset,
// so a bare bitmap would drop every sibling of a removed record; the
// counts keep the bit set while any live record still points at it.
type offsetSet struct {
	bits   *roaring64.Bitmap
	counts map[uint64]uint32 // references beyond the first
}

func newOffsetSet() *offsetSet {
	return &offsetSet{bits: roaring64.New(), counts: map[uint64]uint32{}}
}

func (s *offsetSet) add(off uint64) {
	if s.bits.Contains(off) {
		s.counts[off]++
		return
	}
	s.bits.Add(off)
}

func (s *offsetSet) remove(off uint64) {
	if extra, ok := s.counts[off]; ok {
		if extra == 1 {
			delete(s.counts, off)
		} else {
			s.counts[off] = extra - 1
		}
		return
	}
	s.bits.Remove(off)
}

func (s *offsetSet) empty() bool { return s.bits.IsEmpty() }

func (s *offsetSet) offsets() []uint64 { return s.bits.ToArray() }

// entryMeta is the denormalized reverse entry kept per live path so Remove
// can scrub the directory and tag indexes without reading the store.
type entryMeta struct {
	id     int64
	offset uint64
	size   uint64
	dir    string
	artist *string
	album  *string
	genre  *string
	year   uint32
}

// Manager holds all five logical indexes. Lookups take shared access;
// mutations take exclusive access. Counters and the generation use
// lock-free atomics.
type Manager struct {
	mu      sync.RWMutex
	paths   map[string]uint64
	ids     map[int64]uint64
	dirs    *radix.Tree // directory path -> *offsetSet
	artists map[string]*offsetSet
	albums  map[string]*offsetSet
	genres  map[string]*offsetSet
	years   map[uint32]*offsetSet
	meta    map[string]entryMeta

	capacity   int
	maxID      int64
	mediaBytes uint64

	generation atomic.Uint64
	dirty      atomic.Uint64 // bitmask over Kind
	lookups    atomic.Uint64
	inserts    atomic.Uint64
	removes    atomic.Uint64

	log zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger; the default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithCapacityHint presizes the entry maps for an expected library size,
// avoiding rehash churn during bulk ingest.
func WithCapacityHint(entries int) Option {
	return func(m *Manager) {
		if entries > 0 {
			m.capacity = entries
		}
	}
}

// New returns an empty Manager at generation 1.
func New(opts ...Option) *Manager {
	m := &Manager{
		dirs: radix.New(),
		log:  zerolog.Nop(),
	}
	m.generation.Store(1)
	for _, opt := range opts {
		opt(m)
	}
	m.paths = make(map[string]uint64, m.capacity)
	m.ids = make(map[int64]uint64, m.capacity)
	m.artists = make(map[string]*offsetSet)
	m.albums = make(map[string]*offsetSet)
	m.genres = make(map[string]*offsetSet)
	m.years = make(map[uint32]*offsetSet)
	m.meta = make(map[string]entryMeta, m.capacity)
	return m
}

// Insert indexes rec at offset in all five indexes as one logical
// operation. A prior entry under the same path is removed first, treating
// the record as logically replaced.
func (m *Manager) Insert(rec *schema.MediaRecord, offset uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.meta[rec.Path]; exists {
		m.removeLocked(rec.Path)
	}

	m.paths[rec.Path] = offset
	m.markDirty(KindPath)
	if rec.ID != 0 {
		m.ids[rec.ID] = offset
		m.markDirty(KindID)
		if rec.ID > m.maxID {
			m.maxID = rec.ID
		}
	}

	dir := rec.ParentDir()
	m.addToDir(dir, offset)
	m.markDirty(KindDirectory)

	if rec.Artist != nil {
		addToSet(m.artists, *rec.Artist, offset)
		m.markDirty(KindArtist)
	}
	if rec.Album != nil {
		addToSet(m.albums, *rec.Album, offset)
		m.markDirty(KindAlbum)
	}
	if rec.Genre != nil {
		addToSet(m.genres, *rec.Genre, offset)
		m.markDirty(KindGenre)
	}
	if rec.Year != 0 {
		addToSet(m.years, rec.Year, offset)
		m.markDirty(KindYear)
	}

	m.meta[rec.Path] = entryMeta{
		id:     rec.ID,
		offset: offset,
		size:   rec.Size,
		dir:    dir,
		artist: rec.Artist,
		album:  rec.Album,
		genre:  rec.Genre,
		year:   rec.Year,
	}
	m.mediaBytes += rec.Size

	m.inserts.Add(1)
	m.generation.Add(1)
}

// Remove deletes every index entry for path, returning the offset the
// record lived at. Absence is a normal (0, false) result.
func (m *Manager) Remove(path string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	offset, ok := m.removeLocked(path)
	if !ok {
		return 0, false
	}
	m.removes.Add(1)
	m.generation.Add(1)
	return offset, true
}

func (m *Manager) removeLocked(path string) (uint64, bool) {
	meta, ok := m.meta[path]
	if !ok {
		return 0, false
	}
	delete(m.meta, path)
	delete(m.paths, path)
	m.markDirty(KindPath)
	if meta.id != 0 {
		delete(m.ids, meta.id)
		m.markDirty(KindID)
	}
	m.removeFromDir(meta.dir, meta.offset)
	m.markDirty(KindDirectory)
	if meta.artist != nil {
		removeFromSet(m.artists, *meta.artist, meta.offset)
		m.markDirty(KindArtist)
	}
	if meta.album != nil {
		removeFromSet(m.albums, *meta.album, meta.offset)
		m.markDirty(KindAlbum)
	}
	if meta.genre != nil {
		removeFromSet(m.genres, *meta.genre, meta.offset)
		m.markDirty(KindGenre)
	}
	if meta.year != 0 {
		removeFromSet(m.years, meta.year, meta.offset)
		m.markDirty(KindYear)
	}
	m.mediaBytes -= meta.size
	return meta.offset, true
}

// FindByPath resolves a canonical path to its store offset.
func (m *Manager) FindByPath(path string) (uint64, bool) {
	m.lookups.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	off, ok := m.paths[path]
	return off, ok
}

// FindByID resolves a record id to its store offset.
func (m *Manager) FindByID(id int64) (uint64, bool) {
	m.lookups.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	off, ok := m.ids[id]
	return off, ok
}

// FilesInDirectory returns the offsets of all records whose parent
// directory is dir; empty when the directory is unknown, never an error.
func (m *Manager) FilesInDirectory(dir string) []uint64 {
	m.lookups.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.dirs.Get(dir); ok {
		return v.(*offsetSet).offsets()
	}
	return nil
}

// Subdirectories returns the immediate child directories of parent,
// derived by a prefix walk over the directory index keys. The cost is
// proportional to the number of distinct directories, not file count.
func (m *Manager) Subdirectories(parent string) []string {
	m.lookups.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := parent
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	seen := make(map[string]struct{})
	m.dirs.WalkPrefix(prefix, func(key string, _ interface{}) bool {
		rel := key[len(prefix):]
		if rel == "" {
			return false
		}
		head, _, _ := strings.Cut(rel, "/")
		if head == "" {
			return false
		}
		seen[prefix+head] = struct{}{}
		return false
	})
	subdirs := make([]string, 0, len(seen))
	for dir := range seen {
		subdirs = append(subdirs, dir)
	}
	sort.Strings(subdirs)
	return subdirs
}

// FilesByArtist returns the offsets of all records tagged with artist.
func (m *Manager) FilesByArtist(artist string) []uint64 { return m.tagLookup(m.artists, artist) }

// FilesByAlbum returns the offsets of all records tagged with album.
func (m *Manager) FilesByAlbum(album string) []uint64 { return m.tagLookup(m.albums, album) }

// FilesByGenre returns the offsets of all records tagged with genre.
func (m *Manager) FilesByGenre(genre string) []uint64 { return m.tagLookup(m.genres, genre) }

// FilesByYear returns the offsets of all records released in year.
func (m *Manager) FilesByYear(year uint32) []uint64 {
	m.lookups.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if set, ok := m.years[year]; ok {
		return set.offsets()
	}
	return nil
}

func (m *Manager) tagLookup(tags map[string]*offsetSet, key string) []uint64 {
	m.lookups.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if set, ok := tags[key]; ok {
		return set.offsets()
	}
	return nil
}

// Artists returns all distinct artist keys, sorted.
func (m *Manager) Artists() []string { return m.tagKeys(m.artists) }

// Albums returns all distinct album keys, sorted.
func (m *Manager) Albums() []string { return m.tagKeys(m.albums) }

// Genres returns all distinct genre keys, sorted.
func (m *Manager) Genres() []string { return m.tagKeys(m.genres) }

// Years returns all distinct populated years, sorted.
func (m *Manager) Years() []uint32 {
	m.lookups.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	years := make([]uint32, 0, len(m.years))
	for y := range m.years {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool { return years[i] < years[j] })
	return years
}

func (m *Manager) tagKeys(tags map[string]*offsetSet) []string {
	m.lookups.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Generation returns the current mutation generation, usable for
// optimistic staleness checks.
func (m *Manager) Generation() uint64 { return m.generation.Load() }

// Dirty reports whether any index has unsaved changes.
func (m *Manager) Dirty() bool { return m.dirty.Load() != 0 }

// KindDirty reports whether one specific index has unsaved changes.
func (m *Manager) KindDirty(kind Kind) bool {
	return m.dirty.Load()&(1<<kind) != 0
}

// MarkClean clears all dirty flags without persisting, for callers that
// provide durability externally.
func (m *Manager) MarkClean() { m.dirty.Store(0) }

// markCleanAt clears the dirty flags only when no mutation has advanced
// the generation past gen. Mutations hold the write lock while they bump
// the generation, so under the read lock the check and the clear cannot
// interleave with one.
func (m *Manager) markCleanAt(gen uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.generation.Load() == gen {
		m.dirty.Store(0)
	}
}

func (m *Manager) markDirty(kind Kind) {
	for {
		old := m.dirty.Load()
		if m.dirty.CompareAndSwap(old, old|1<<kind) {
			return
		}
	}
}

// Stats reports per-index entry counts plus cumulative counters.
type Stats struct {
	PathEntries      int    `json:"pathEntries"`
	IDEntries        int    `json:"idEntries"`
	DirectoryEntries int    `json:"directoryEntries"`
	ArtistEntries    int    `json:"artistEntries"`
	AlbumEntries     int    `json:"albumEntries"`
	GenreEntries     int    `json:"genreEntries"`
	YearEntries      int    `json:"yearEntries"`
	Generation       uint64 `json:"generation"`
	Dirty            bool   `json:"dirty"`
	Lookups          uint64 `json:"lookups"`
	Inserts          uint64 `json:"inserts"`
	Removes          uint64 `json:"removes"`
	MaxID            int64  `json:"maxId"`
	MediaBytes       uint64 `json:"mediaBytes"`
}

// Stats returns a snapshot of index occupancy and counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		PathEntries:      len(m.paths),
		IDEntries:        len(m.ids),
		DirectoryEntries: m.dirs.Len(),
		ArtistEntries:    len(m.artists),
		AlbumEntries:     len(m.albums),
		GenreEntries:     len(m.genres),
		YearEntries:      len(m.years),
		Generation:       m.generation.Load(),
		Dirty:            m.dirty.Load() != 0,
		Lookups:          m.lookups.Load(),
		Inserts:          m.inserts.Load(),
		Removes:          m.removes.Load(),
		MaxID:            m.maxID,
		MediaBytes:       m.mediaBytes,
	}
}

func (m *Manager) addToDir(dir string, offset uint64) {
	if v, ok := m.dirs.Get(dir); ok {
		v.(*offsetSet).add(offset)
		return
	}
	set := newOffsetSet()
	set.add(offset)
	m.dirs.Insert(dir, set)
}

func (m *Manager) removeFromDir(dir string, offset uint64) {
	v, ok := m.dirs.Get(dir)
	if !ok {
		return
	}
	set := v.(*offsetSet)
	set.remove(offset)
	if set.empty() {
		m.dirs.Delete(dir)
	}
}

func addToSet[K comparable](tags map[K]*offsetSet, key K, offset uint64) {
	set, ok := tags[key]
	if !ok {
		set = newOffsetSet()
		tags[key] = set
	}
	set.add(offset)
}

func removeFromSet[K comparable](tags map[K]*offsetSet, key K, offset uint64) {
	set, ok := tags[key]
	if !ok {
		return
	}
	set.remove(offset)
	if set.empty() {
		delete(tags, key)
	}
}
