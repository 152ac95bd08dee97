package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/vuio/mediastore/schema"
)

// batchCountSize is the little-endian record count prefixing every batch.
const batchCountSize = 8

// EncodeBatch serializes records as an 8-byte little-endian count followed
// by each encoded record back to back. The output buffer is pre-sized from
// a first pass over field lengths so the append loop never reallocates.
func EncodeBatch(records []*schema.MediaRecord) []byte {
	total := batchCountSize
	for _, r := range records {
		total += EncodedLen(r)
	}
	buf := make([]byte, batchCountSize, total)
	binary.LittleEndian.PutUint64(buf, uint64(len(records)))
	for _, r := range records {
		buf = AppendEncode(buf, r)
	}
	return buf
}

// DecodeBatch parses a batch produced by EncodeBatch. Each record's total
// length is learned from its own header; the decode fails if the remaining
// buffer is too short at any step, or if bytes trail the final record.
func DecodeBatch(b []byte) ([]*schema.MediaRecord, error) {
	if len(b) < batchCountSize {
		return nil, fmt.Errorf("%w: %d bytes, batch count needs %d", ErrFormat, len(b), batchCountSize)
	}
	count := binary.LittleEndian.Uint64(b)
	// The count is untrusted until the records behind it parse; cap the
	// preallocation so a corrupt prefix cannot demand the heap up front.
	capHint := count
	if capHint > 1024 {
		capHint = 1024
	}
	records := make([]*schema.MediaRecord, 0, capHint)
	pos := batchCountSize
	for i := uint64(0); i < count; i++ {
		n, err := RecordLen(b[pos:])
		if err != nil {
			return nil, fmt.Errorf("record %d at offset %d: %w", i, pos, err)
		}
		if pos+n > len(b) {
			return nil, fmt.Errorf("%w: record %d declares %d bytes, %d remain", ErrFormat, i, n, len(b)-pos)
		}
		r, err := Decode(b[pos : pos+n])
		if err != nil {
			return nil, fmt.Errorf("record %d at offset %d: %w", i, pos, err)
		}
		records = append(records, r)
		pos += n
	}
	if pos != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d records", ErrFormat, len(b)-pos, count)
	}
	return records, nil
}
