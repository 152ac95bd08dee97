package schema

import (
	"path"
	"strings"
	"time"
)

// MediaRecord describes a single media file tracked by the library.
// ID is zero until the storage layer assigns one; Path is the canonical
// form produced by the platform path normalizer and is unique among live
// records. Optional tag fields use nil (strings) or zero (numbers) for
// absence.
type MediaRecord struct {
	ID          int64         `json:"id,omitempty"`
	Path        string        `json:"path"`
	Filename    string        `json:"filename"`
	Size        uint64        `json:"size"`
	Modified    time.Time     `json:"modified"`
	MimeType    string        `json:"mimeType"`
	Duration    time.Duration `json:"duration,omitempty"`
	Title       *string       `json:"title,omitempty"`
	Artist      *string       `json:"artist,omitempty"`
	Album       *string       `json:"album,omitempty"`
	Genre       *string       `json:"genre,omitempty"`
	AlbumArtist *string       `json:"albumArtist,omitempty"`
	TrackNumber uint32        `json:"trackNumber,omitempty"`
	Year        uint32        `json:"year,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ParentDir returns the parent directory of the record's canonical path.
func (r *MediaRecord) ParentDir() string {
	return ParentDir(r.Path)
}

// ParentDir derives the parent directory key for a canonical path.
func ParentDir(canonical string) string {
	dir := path.Dir(strings.ReplaceAll(canonical, "\\", "/"))
	if dir == "." {
		return ""
	}
	return dir
}

// String returns a pointer to s, a convenience for optional tag fields.
func String(s string) *string { return &s }

// Equal reports whether two records carry the same data. Timestamps are
// compared at the granularity the binary codec preserves (seconds for
// file times, milliseconds for duration).
func (r *MediaRecord) Equal(o *MediaRecord) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.ID == o.ID &&
		r.Path == o.Path &&
		r.Filename == o.Filename &&
		r.Size == o.Size &&
		r.Modified.Unix() == o.Modified.Unix() &&
		r.MimeType == o.MimeType &&
		r.Duration.Milliseconds() == o.Duration.Milliseconds() &&
		strPtrEqual(r.Title, o.Title) &&
		strPtrEqual(r.Artist, o.Artist) &&
		strPtrEqual(r.Album, o.Album) &&
		strPtrEqual(r.Genre, o.Genre) &&
		strPtrEqual(r.AlbumArtist, o.AlbumArtist) &&
		r.TrackNumber == o.TrackNumber &&
		r.Year == o.Year &&
		r.CreatedAt.Unix() == o.CreatedAt.Unix() &&
		r.UpdatedAt.Unix() == o.UpdatedAt.Unix()
}

// Clone returns a deep copy of the record.
func (r *MediaRecord) Clone() *MediaRecord {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Title = clonePtr(r.Title)
	cloned.Artist = clonePtr(r.Artist)
	cloned.Album = clonePtr(r.Album)
	cloned.Genre = clonePtr(r.Genre)
	cloned.AlbumArtist = clonePtr(r.AlbumArtist)
	return &cloned
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
