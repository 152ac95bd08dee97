package codec

import (
	"encoding/binary"
	"testing"

	"github.com/vuio/mediastore/schema"
)

func TestBatch_RoundTrip(t *testing.T) {
	first := sampleRecord()
	second := sampleRecord()
	second.ID = 43
	second.Path = "/music/jazz/take5.flac"
	second.Filename = "take5.flac"
	second.Title = nil
	second.Genre = nil
	second.Year = 0

	records := []*schema.MediaRecord{first, second}
	decoded, err := DecodeBatch(EncodeBatch(records))
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(decoded) != len(records) {
		t.Fatalf("record count: got %d, want %d", len(decoded), len(records))
	}
	for i := range records {
		if !decoded[i].Equal(records[i]) {
			t.Fatalf("record %d mismatch:\n got  %+v\n want %+v", i, decoded[i], records[i])
		}
	}
}

func TestBatch_SingleRecord(t *testing.T) {
	records := []*schema.MediaRecord{sampleRecord()}
	decoded, err := DecodeBatch(EncodeBatch(records))
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(decoded) != 1 || !decoded[0].Equal(records[0]) {
		t.Fatalf("single record batch mismatch")
	}
}

func TestDecodeBatch_ShortBuffer(t *testing.T) {
	buf := EncodeBatch([]*schema.MediaRecord{sampleRecord(), sampleRecord()})
	for _, cut := range []int{len(buf) - 1, len(buf) - HeaderSize, 12, 7, 0} {
		if _, err := DecodeBatch(buf[:cut]); err == nil {
			t.Fatalf("cut at %d: decode accepted truncated batch", cut)
		}
	}
}

func TestDecodeBatch_CountMismatch(t *testing.T) {
	buf := EncodeBatch([]*schema.MediaRecord{sampleRecord()})
	binary.LittleEndian.PutUint64(buf, 2) // claim one more record than present
	if _, err := DecodeBatch(buf); err == nil {
		t.Fatal("decode accepted batch with inflated count")
	}
}
