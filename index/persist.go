package index

import (
	"bytes"
	"context"
	"fmt"

	radix "github.com/armon/go-radix"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/bintly"

	"github.com/vuio/mediastore/schema"
)

const (
	snapshotMagic   = uint32(0x4D494458) // "MIDX"
	snapshotVersion = uint32(1)
)

const (
	snapArtist = 1 << iota
	snapAlbum
	snapGenre
)

// Persist writes a snapshot of the index to URL. A clean index is a
// no-op, so periodic savers can call it unconditionally.
func (m *Manager) Persist(ctx context.Context, URL string) error {
	if !m.Dirty() {
		return nil
	}
	m.mu.RLock()
	data, err := m.encodeLocked()
	gen := m.generation.Load()
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	fs := afs.New()
	if ok, _ := fs.Exists(ctx, URL); ok {
		_ = fs.Delete(ctx, URL)
	}
	if err := fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("index: save snapshot: %w", err)
	}
	// A mutation that landed after the snapshot was encoded must stay
	// dirty for the next save.
	m.markCleanAt(gen)
	m.log.Debug().Str("url", URL).Int("bytes", len(data)).Msg("index snapshot saved")
	return nil
}

// Load replaces the index contents with the snapshot at URL. A missing
// snapshot leaves the index empty, which is the normal first-run state.
// A snapshot that cannot be decoded fails closed with ErrBadSnapshot.
func (m *Manager) Load(ctx context.Context, URL string) error {
	fs := afs.New()
	if ok, _ := fs.Exists(ctx, URL); !ok {
		return nil
	}
	reader, err := fs.OpenURL(ctx, URL)
	if err != nil {
		return fmt.Errorf("index: open snapshot: %w", err)
	}
	defer reader.Close()
	buf := bytes.Buffer{}
	if _, err := buf.ReadFrom(reader); err != nil {
		return fmt.Errorf("index: read snapshot: %w", err)
	}
	entries, generation, maxID, err := decodeSnapshot(buf.Bytes())
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.paths = make(map[string]uint64, len(entries))
	m.ids = make(map[int64]uint64, len(entries))
	m.dirs = radix.New()
	m.artists = make(map[string]*offsetSet)
	m.albums = make(map[string]*offsetSet)
	m.genres = make(map[string]*offsetSet)
	m.years = make(map[uint32]*offsetSet)
	m.meta = make(map[string]entryMeta, len(entries))
	m.maxID = 0
	m.mediaBytes = 0
	for path, meta := range entries {
		m.replayLocked(path, meta)
	}
	if maxID > m.maxID {
		m.maxID = maxID
	}
	m.mu.Unlock()
	m.generation.Store(generation)
	m.MarkClean()
	m.log.Debug().Str("url", URL).Int("entries", len(entries)).Msg("index snapshot loaded")
	return nil
}

// replayLocked restores one entry into every derived index.
func (m *Manager) replayLocked(path string, meta entryMeta) {
	m.paths[path] = meta.offset
	if meta.id != 0 {
		m.ids[meta.id] = meta.offset
		if meta.id > m.maxID {
			m.maxID = meta.id
		}
	}
	m.addToDir(meta.dir, meta.offset)
	if meta.artist != nil {
		addToSet(m.artists, *meta.artist, meta.offset)
	}
	if meta.album != nil {
		addToSet(m.albums, *meta.album, meta.offset)
	}
	if meta.genre != nil {
		addToSet(m.genres, *meta.genre, meta.offset)
	}
	if meta.year != 0 {
		addToSet(m.years, meta.year, meta.offset)
	}
	m.meta[path] = meta
	m.mediaBytes += meta.size
}

// encodeLocked serializes the reverse entry table, which is sufficient to
// replay every derived index on load.
func (m *Manager) encodeLocked() ([]byte, error) {
	writers := bintly.NewWriters()
	writer := writers.Get()
	defer writers.Put(writer)

	writer.Uint32(snapshotMagic)
	writer.Uint32(snapshotVersion)
	writer.Uint64(m.generation.Load())
	writer.Int64(m.maxID)
	writer.Uint32(uint32(len(m.meta)))
	for path, meta := range m.meta {
		writer.String(path)
		writer.Int64(meta.id)
		writer.Uint64(meta.offset)
		writer.Uint64(meta.size)
		writer.String(meta.dir)
		var flags uint8
		if meta.artist != nil {
			flags |= snapArtist
		}
		if meta.album != nil {
			flags |= snapAlbum
		}
		if meta.genre != nil {
			flags |= snapGenre
		}
		writer.Uint8(flags)
		if meta.artist != nil {
			writer.String(*meta.artist)
		}
		if meta.album != nil {
			writer.String(*meta.album)
		}
		if meta.genre != nil {
			writer.String(*meta.genre)
		}
		writer.Uint32(meta.year)
	}
	return writer.Bytes(), nil
}

func decodeSnapshot(data []byte) (entries map[string]entryMeta, generation uint64, maxID int64, err error) {
	// bintly panics on truncated input rather than returning an error.
	defer func() {
		if r := recover(); r != nil {
			entries, generation, maxID = nil, 0, 0
			err = fmt.Errorf("%w: %v", ErrBadSnapshot, r)
		}
	}()

	readers := bintly.NewReaders()
	reader := readers.Get()
	defer readers.Put(reader)
	if err := reader.FromBytes(data); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}

	var magic, version uint32
	reader.Uint32(&magic)
	reader.Uint32(&version)
	if magic != snapshotMagic {
		return nil, 0, 0, fmt.Errorf("%w: bad magic 0x%08X", ErrBadSnapshot, magic)
	}
	if version != snapshotVersion {
		return nil, 0, 0, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, version)
	}
	reader.Uint64(&generation)
	reader.Int64(&maxID)
	var count uint32
	reader.Uint32(&count)
	entries = make(map[string]entryMeta, count)
	for i := uint32(0); i < count; i++ {
		var path string
		var meta entryMeta
		reader.String(&path)
		reader.Int64(&meta.id)
		reader.Uint64(&meta.offset)
		reader.Uint64(&meta.size)
		reader.String(&meta.dir)
		var flags uint8
		reader.Uint8(&flags)
		if flags&snapArtist != 0 {
			var v string
			reader.String(&v)
			meta.artist = schema.String(v)
		}
		if flags&snapAlbum != 0 {
			var v string
			reader.String(&v)
			meta.album = schema.String(v)
		}
		if flags&snapGenre != 0 {
			var v string
			reader.String(&v)
			meta.genre = schema.String(v)
		}
		reader.Uint32(&meta.year)
		entries[path] = meta
	}
	return entries, generation, maxID, nil
}
