// Package codec implements the fixed-layout binary format for media
// records: a 78-byte header (magic, version, optional-field bitset, fixed
// numeric fields and eight string lengths) followed by the UTF-8 bytes of
// each present string in a fixed order. All functions are pure and safe
// for concurrent use.
package codec

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vuio/mediastore/schema"
)

const (
	// Version is the current on-disk format version.
	Version = 1

	// HeaderSize is the fixed byte length of every record header.
	HeaderSize = 78

	// MaxFieldLen caps every variable string; longer values are truncated,
	// matching the 2-byte length encoding.
	MaxFieldLen = 1<<16 - 1
)

var magic = [4]byte{'V', 'U', 'I', 'O'}

// Optional-field bits in the header bitset.
const (
	flagTitle = 1 << iota
	flagArtist
	flagAlbum
	flagGenre
	flagAlbumArtist
	flagTrackNumber
	flagYear
)

// Fixed header offsets.
const (
	offMagic    = 0
	offVersion  = 4
	offFlags    = 5
	offID       = 6
	offSize     = 14
	offModified = 22
	offDuration = 30
	offTrack    = 38
	offYear     = 42
	offLens     = 46 // eight uint16 lengths: path, filename, mime, title, artist, album, genre, album artist
	offCreated  = 62
	offUpdated  = 70
)

// EncodedLen returns the exact byte length Encode will produce for r.
func EncodedLen(r *schema.MediaRecord) int {
	n := HeaderSize
	n += truncLen(r.Path) + truncLen(r.Filename) + truncLen(r.MimeType)
	n += optLen(r.Title) + optLen(r.Artist) + optLen(r.Album) + optLen(r.Genre) + optLen(r.AlbumArtist)
	return n
}

// Encode serializes r into the fixed binary layout. Strings longer than
// MaxFieldLen bytes are truncated, never rejected.
func Encode(r *schema.MediaRecord) []byte {
	buf := make([]byte, 0, EncodedLen(r))
	return AppendEncode(buf, r)
}

// AppendEncode appends the encoded form of r to dst and returns the
// extended slice.
func AppendEncode(dst []byte, r *schema.MediaRecord) []byte {
	var hdr [HeaderSize]byte
	copy(hdr[offMagic:], magic[:])
	hdr[offVersion] = Version

	var flags byte
	if r.Title != nil {
		flags |= flagTitle
	}
	if r.Artist != nil {
		flags |= flagArtist
	}
	if r.Album != nil {
		flags |= flagAlbum
	}
	if r.Genre != nil {
		flags |= flagGenre
	}
	if r.AlbumArtist != nil {
		flags |= flagAlbumArtist
	}
	if r.TrackNumber != 0 {
		flags |= flagTrackNumber
	}
	if r.Year != 0 {
		flags |= flagYear
	}
	hdr[offFlags] = flags

	binary.LittleEndian.PutUint64(hdr[offID:], uint64(r.ID))
	binary.LittleEndian.PutUint64(hdr[offSize:], r.Size)
	binary.LittleEndian.PutUint64(hdr[offModified:], unixSeconds(r.Modified))
	binary.LittleEndian.PutUint64(hdr[offDuration:], uint64(r.Duration.Milliseconds()))
	binary.LittleEndian.PutUint32(hdr[offTrack:], r.TrackNumber)
	binary.LittleEndian.PutUint32(hdr[offYear:], r.Year)
	binary.LittleEndian.PutUint64(hdr[offCreated:], unixSeconds(r.CreatedAt))
	binary.LittleEndian.PutUint64(hdr[offUpdated:], unixSeconds(r.UpdatedAt))

	tail := [8]string{
		trunc(r.Path),
		trunc(r.Filename),
		trunc(r.MimeType),
		optString(r.Title),
		optString(r.Artist),
		optString(r.Album),
		optString(r.Genre),
		optString(r.AlbumArtist),
	}
	for i, s := range tail {
		binary.LittleEndian.PutUint16(hdr[offLens+2*i:], uint16(len(s)))
	}

	dst = append(dst, hdr[:]...)
	for _, s := range tail {
		dst = append(dst, s...)
	}
	return dst
}

// RecordLen reads a record header from b and returns the total encoded
// length of the record (header plus declared string lengths). It fails if
// b is shorter than a header or the magic/version do not match.
func RecordLen(b []byte) (int, error) {
	if len(b) < HeaderSize {
		return 0, fmt.Errorf("%w: %d bytes, record header needs %d", ErrFormat, len(b), HeaderSize)
	}
	if [4]byte(b[offMagic:offMagic+4]) != magic {
		return 0, fmt.Errorf("%w: bad magic %q", ErrFormat, b[offMagic:offMagic+4])
	}
	if b[offVersion] != Version {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrFormat, b[offVersion])
	}
	n := HeaderSize
	for i := 0; i < 8; i++ {
		n += int(binary.LittleEndian.Uint16(b[offLens+2*i:]))
	}
	return n, nil
}

// Decode parses a single encoded record. The buffer must hold exactly one
// record: a length that disagrees with the header's declared field lengths
// is rejected, as are magic and version mismatches.
func Decode(b []byte) (*schema.MediaRecord, error) {
	total, err := RecordLen(b)
	if err != nil {
		return nil, err
	}
	if len(b) != total {
		return nil, fmt.Errorf("%w: declared %d bytes, buffer has %d", ErrFormat, total, len(b))
	}

	flags := b[offFlags]
	r := &schema.MediaRecord{
		ID:        int64(binary.LittleEndian.Uint64(b[offID:])),
		Size:      binary.LittleEndian.Uint64(b[offSize:]),
		Modified:  time.Unix(int64(binary.LittleEndian.Uint64(b[offModified:])), 0).UTC(),
		Duration:  time.Duration(binary.LittleEndian.Uint64(b[offDuration:])) * time.Millisecond,
		CreatedAt: time.Unix(int64(binary.LittleEndian.Uint64(b[offCreated:])), 0).UTC(),
		UpdatedAt: time.Unix(int64(binary.LittleEndian.Uint64(b[offUpdated:])), 0).UTC(),
	}
	if flags&flagTrackNumber != 0 {
		r.TrackNumber = binary.LittleEndian.Uint32(b[offTrack:])
	}
	if flags&flagYear != 0 {
		r.Year = binary.LittleEndian.Uint32(b[offYear:])
	}

	pos := HeaderSize
	next := func(i int) string {
		n := int(binary.LittleEndian.Uint16(b[offLens+2*i:]))
		s := string(b[pos : pos+n])
		pos += n
		return s
	}
	r.Path = next(0)
	r.Filename = next(1)
	r.MimeType = next(2)
	title := next(3)
	artist := next(4)
	album := next(5)
	genre := next(6)
	albumArtist := next(7)
	if flags&flagTitle != 0 {
		r.Title = &title
	}
	if flags&flagArtist != 0 {
		r.Artist = &artist
	}
	if flags&flagAlbum != 0 {
		r.Album = &album
	}
	if flags&flagGenre != 0 {
		r.Genre = &genre
	}
	if flags&flagAlbumArtist != 0 {
		r.AlbumArtist = &albumArtist
	}
	return r, nil
}

func trunc(s string) string {
	if len(s) > MaxFieldLen {
		return s[:MaxFieldLen]
	}
	return s
}

func truncLen(s string) int {
	if len(s) > MaxFieldLen {
		return MaxFieldLen
	}
	return len(s)
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return trunc(*s)
}

func optLen(s *string) int {
	if s == nil {
		return 0
	}
	return truncLen(*s)
}

func unixSeconds(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.Unix())
}
