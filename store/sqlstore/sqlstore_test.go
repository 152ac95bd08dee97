package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuio/mediastore/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "media.db"))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func audioFile(path string) *schema.MediaRecord {
	return &schema.MediaRecord{
		Path:     path,
		Filename: filepath.Base(path),
		Size:     1024,
		Modified: time.Now(),
		MimeType: "audio/mpeg",
	}
}

func TestStore_StoreAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := audioFile("/music/a.mp3")
	rec.Title = schema.String("Song A")
	rec.Artist = schema.String("Artist A")
	rec.Duration = 3 * time.Minute
	rec.Year = 1999

	id, err := s.Store(ctx, rec)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	got, err := s.GetByPath(ctx, "/music/a.mp3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Song A", *got.Title)
	assert.Equal(t, 3*time.Minute, got.Duration)
	assert.EqualValues(t, 1999, got.Year)
	assert.Nil(t, got.Album)

	byID, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "/music/a.mp3", byID.Path)
}

func TestStore_GetAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetByPath(ctx, "/missing.mp3")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_UpsertOnPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := audioFile("/music/a.mp3")
	id1, err := s.Store(ctx, first)
	require.NoError(t, err)

	second := audioFile("/music/a.mp3")
	second.Size = 2048
	second.Title = schema.String("Remastered")
	id2, err := s.Store(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "restoring the same path keeps the row id")

	got, err := s.GetByPath(ctx, "/music/a.mp3")
	require.NoError(t, err)
	assert.EqualValues(t, 2048, got.Size)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Remastered", *got.Title)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)
}

func TestStore_BulkStoreAndRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []*schema.MediaRecord{
		audioFile("/music/a.mp3"),
		audioFile("/music/b.mp3"),
		audioFile("/music/c.mp3"),
	}
	ids, err := s.BulkStore(ctx, recs)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	removed, err := s.BulkRemove(ctx, []string{"/music/a.mp3", "/music/c.mp3", "/music/ghost.mp3"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)
	assert.EqualValues(t, 1024, stats.TotalBytes)
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, audioFile("/music/a.mp3"))
	require.NoError(t, err)

	ok, err := s.Remove(ctx, "/music/a.mp3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Remove(ctx, "/music/a.mp3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_FilesInDirectory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.BulkStore(ctx, []*schema.MediaRecord{
		audioFile("/music/rock/b.mp3"),
		audioFile("/music/rock/a.mp3"),
		audioFile("/music/jazz/c.mp3"),
	})
	require.NoError(t, err)

	files, err := s.FilesInDirectory(ctx, "/music/rock")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.mp3", files[0].Filename, "ordered by filename")
	assert.Equal(t, "b.mp3", files[1].Filename)
}
