package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/vuio/mediastore/schema"
)

func sampleRecord() *schema.MediaRecord {
	return &schema.MediaRecord{
		ID:          42,
		Path:        "/music/rock/track01.mp3",
		Filename:    "track01.mp3",
		Size:        9_417_332,
		Modified:    time.Unix(1_700_000_000, 0).UTC(),
		MimeType:    "audio/mpeg",
		Duration:    3*time.Minute + 21*time.Second,
		Title:       schema.String("Track One"),
		Artist:      schema.String("The Examples"),
		Album:       schema.String("First Pressing"),
		Genre:       schema.String("Rock"),
		AlbumArtist: schema.String("The Examples"),
		TrackNumber: 1,
		Year:        2019,
		CreatedAt:   time.Unix(1_700_000_100, 0).UTC(),
		UpdatedAt:   time.Unix(1_700_000_200, 0).UTC(),
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	r := sampleRecord()
	decoded, err := Decode(Encode(r))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(r) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", decoded, r)
	}
}

func TestEncodeDecode_OptionalFieldCombinations(t *testing.T) {
	base := sampleRecord()
	variants := []func(*schema.MediaRecord){
		func(r *schema.MediaRecord) { r.Title = nil },
		func(r *schema.MediaRecord) { r.Artist = nil; r.AlbumArtist = nil },
		func(r *schema.MediaRecord) { r.Album = nil; r.Genre = nil },
		func(r *schema.MediaRecord) { r.TrackNumber = 0; r.Year = 0 },
		func(r *schema.MediaRecord) { r.Duration = 0 },
		func(r *schema.MediaRecord) {
			r.Title = nil
			r.Artist = nil
			r.Album = nil
			r.Genre = nil
			r.AlbumArtist = nil
			r.TrackNumber = 0
			r.Year = 0
			r.Duration = 0
		},
		func(r *schema.MediaRecord) { r.Title = schema.String("") }, // present but empty
	}
	for i, mutate := range variants {
		r := base.Clone()
		mutate(r)
		decoded, err := Decode(Encode(r))
		if err != nil {
			t.Fatalf("variant %d: decode: %v", i, err)
		}
		if !decoded.Equal(r) {
			t.Fatalf("variant %d mismatch:\n got  %+v\n want %+v", i, decoded, r)
		}
	}
}

func TestEncode_TruncatesLongFields(t *testing.T) {
	r := sampleRecord()
	r.Title = schema.String(strings.Repeat("x", MaxFieldLen+100))
	decoded, err := Decode(Encode(r))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := len(*decoded.Title); got != MaxFieldLen {
		t.Fatalf("title length: got %d, want %d", got, MaxFieldLen)
	}
}

func TestDecode_Rejections(t *testing.T) {
	valid := Encode(sampleRecord())

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short buffer", func(b []byte) []byte { return b[:HeaderSize-1] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 99; return b }},
		{"truncated tail", func(b []byte) []byte { return b[:len(b)-3] }},
		{"trailing bytes", func(b []byte) []byte { return append(b, 0xAB) }},
	}
	for _, tc := range tests {
		buf := make([]byte, len(valid))
		copy(buf, valid)
		if _, err := Decode(tc.mutate(buf)); err == nil {
			t.Fatalf("%s: decode accepted corrupt buffer", tc.name)
		}
	}
}

func TestEncodedLen_MatchesEncode(t *testing.T) {
	r := sampleRecord()
	if got, want := len(Encode(r)), EncodedLen(r); got != want {
		t.Fatalf("EncodedLen: got %d, want %d", want, got)
	}
}
