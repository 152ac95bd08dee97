package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuio/mediastore/schema"
)

func TestManager_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	url := filepath.Join(t.TempDir(), "media.idx")

	src := New()
	src.Insert(testRecord(1, "/music/rock/a.mp3", func(r *schema.MediaRecord) {
		r.Size = 2000
		r.Artist = schema.String("Queen")
		r.Album = schema.String("Jazz")
		r.Year = 1978
	}), 0)
	src.Insert(testRecord(2, "/music/jazz/b.flac", func(r *schema.MediaRecord) {
		r.Size = 3000
		r.Genre = schema.String("Jazz")
	}), 512)
	require.NoError(t, src.Persist(ctx, url))
	assert.False(t, src.Dirty(), "persist marks the index clean")

	dst := New()
	require.NoError(t, dst.Load(ctx, url))

	off, ok := dst.FindByPath("/music/rock/a.mp3")
	assert.True(t, ok)
	assert.EqualValues(t, 0, off)
	off, ok = dst.FindByID(2)
	assert.True(t, ok)
	assert.EqualValues(t, 512, off)
	assert.Equal(t, []uint64{0}, dst.FilesByArtist("Queen"))
	assert.Equal(t, []uint64{512}, dst.FilesByGenre("Jazz"))
	assert.Equal(t, []uint64{0}, dst.FilesByYear(1978))
	assert.Equal(t, []string{"/music/jazz", "/music/rock"}, dst.Subdirectories("/music"))
	assert.Equal(t, src.Generation(), dst.Generation())
	assert.EqualValues(t, 2, dst.Stats().MaxID)
	assert.EqualValues(t, 5000, dst.Stats().MediaBytes)
	assert.False(t, dst.Dirty())
}

func TestManager_PersistSkipsWhenClean(t *testing.T) {
	ctx := context.Background()
	url := filepath.Join(t.TempDir(), "media.idx")

	m := New()
	assert.NoError(t, m.Persist(ctx, url))
	_, err := os.Stat(url)
	assert.True(t, os.IsNotExist(err), "clean index must not write a snapshot")
}

func TestManager_LoadMissingSnapshot(t *testing.T) {
	m := New()
	err := m.Load(context.Background(), filepath.Join(t.TempDir(), "absent.idx"))
	assert.NoError(t, err)
	assert.Equal(t, 0, m.Stats().PathEntries)
}

func TestManager_LoadRejectsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	url := filepath.Join(dir, "media.idx")
	require.NoError(t, os.WriteFile(url, []byte("not a snapshot at all"), 0o644))

	m := New()
	err := m.Load(context.Background(), url)
	assert.ErrorIs(t, err, ErrBadSnapshot)
}

func TestManager_LoadRejectsTruncatedSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	url := filepath.Join(dir, "media.idx")

	src := New()
	src.Insert(testRecord(1, "/music/a.mp3", func(r *schema.MediaRecord) {
		r.Artist = schema.String("Queen")
	}), 0)
	require.NoError(t, src.Persist(ctx, url))

	data, err := os.ReadFile(url)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(url, data[:len(data)/2], 0o644))

	m := New()
	assert.ErrorIs(t, m.Load(ctx, url), ErrBadSnapshot)
}
