// Package engine drives batched writes and reads against the append-only
// store. Every append is a self-describing frame carrying a batch id and
// a payload checksum; the checksum is verified by re-reading the frame
// before any index is touched, so a torn or corrupted write can never
// become reachable.
package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vuio/mediastore/codec"
	"github.com/vuio/mediastore/index"
	"github.com/vuio/mediastore/schema"
)

const (
	// frameLen(u32) + batchID(u64) + checksum(u64)
	frameHeaderSize = 20
	lenFieldSize    = 4

	// DefaultBatchSize bounds how many records a single frame carries.
	DefaultBatchSize = 1000
)

// Backing is the subset of the append store the engine needs. ReadAt
// returns exactly n bytes starting at off or an error.
type Backing interface {
	Append(data []byte) (uint64, error)
	ReadAt(off uint64, n int) ([]byte, error)
}

// PathNormalizer maps caller paths to their canonical form. Every path
// entering the engine passes through it, so lookups and stores agree on
// a single spelling.
type PathNormalizer interface {
	Canonical(path string) (string, error)
}

// Engine coordinates the store, the codec and the indexes.
type Engine struct {
	store     Backing
	idx       *index.Manager
	norm      PathNormalizer
	metrics   MetricsSink
	batchSize int
	log       zerolog.Logger

	nextID      atomic.Int64
	nextBatchID atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize caps records per frame; larger inputs are chunked.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithMetrics sets the sink receiving engine activity.
func WithMetrics(sink MetricsSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.metrics = sink
		}
	}
}

// WithNormalizer replaces the default slash-and-clean path normalizer.
func WithNormalizer(norm PathNormalizer) Option {
	return func(e *Engine) {
		if norm != nil {
			e.norm = norm
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an Engine over store and idx. The id sequence resumes past
// the highest id the index has seen, so ids are never reused after a
// restart.
func New(store Backing, idx *index.Manager, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		idx:       idx,
		norm:      SlashNormalizer{},
		metrics:   NewMetrics(),
		batchSize: DefaultBatchSize,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.nextID.Store(idx.Stats().MaxID)
	return e
}

// BatchResult reports one insert or update pipeline run.
type BatchResult struct {
	IDs     []int64
	Batches int
	Bytes   uint64
}

// RemovalResult reports a removal pipeline run. Removed < Requested is a
// normal outcome when some paths were already absent.
type RemovalResult struct {
	Requested int
	Removed   int
}

// InsertBatch runs the full write pipeline for recs: assign ids,
// canonicalize paths, encode, checksum, append, verify, then index.
// Inputs larger than the configured batch size are split into multiple
// frames; ctx is checked between frames, never inside one.
func (e *Engine) InsertBatch(ctx context.Context, recs []*schema.MediaRecord) (*BatchResult, error) {
	result := &BatchResult{IDs: make([]int64, 0, len(recs))}
	if len(recs) == 0 {
		return result, nil
	}
	for start := 0; start < len(recs); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := start + e.batchSize
		if end > len(recs) {
			end = len(recs)
		}
		ids, bytes, err := e.writeChunk(recs[start:end])
		if err != nil {
			return result, err
		}
		result.IDs = append(result.IDs, ids...)
		result.Batches++
		result.Bytes += bytes
	}
	return result, nil
}

// UpdateBatch stores new versions of existing records. The pipeline is
// the same as for inserts; replacement semantics come from the index,
// which drops the prior entry for each path before indexing the new one.
func (e *Engine) UpdateBatch(ctx context.Context, recs []*schema.MediaRecord) (*BatchResult, error) {
	now := time.Now()
	for _, rec := range recs {
		rec.UpdatedAt = now
	}
	return e.InsertBatch(ctx, recs)
}

// writeChunk appends one frame for recs and indexes them at its offset.
func (e *Engine) writeChunk(recs []*schema.MediaRecord) ([]int64, uint64, error) {
	started := time.Now()
	now := started
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		canonical, err := e.norm.Canonical(rec.Path)
		if err != nil {
			return nil, 0, fmt.Errorf("engine: canonicalize %q: %w", rec.Path, err)
		}
		rec.Path = canonical
		if rec.ID == 0 {
			rec.ID = e.nextID.Add(1)
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = now
		}
		ids[i] = rec.ID
	}

	payload := codec.EncodeBatch(recs)
	frameLen, err := frameLength(len(payload))
	if err != nil {
		return nil, 0, err
	}
	sum, err := checksum(payload)
	if err != nil {
		return nil, 0, err
	}
	batchID := e.nextBatchID.Add(1)

	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:], frameLen)
	binary.LittleEndian.PutUint64(frame[4:], batchID)
	binary.LittleEndian.PutUint64(frame[12:], sum)
	copy(frame[frameHeaderSize:], payload)

	offset, err := e.store.Append(frame)
	if err != nil {
		e.metrics.RecordBatch(false, len(recs), 0, time.Since(started))
		return nil, 0, err
	}

	// Verify what the store holds before anything points at it. On
	// mismatch the frame bytes stay orphaned and unreachable.
	if _, err := e.readVerified(offset); err != nil {
		e.metrics.RecordBatch(false, len(recs), 0, time.Since(started))
		return nil, 0, err
	}

	for _, rec := range recs {
		e.idx.Insert(rec, offset)
	}
	e.metrics.RecordBatch(true, len(recs), uint64(len(frame)), time.Since(started))
	e.log.Debug().
		Uint64("batch", batchID).
		Uint64("offset", offset).
		Int("records", len(recs)).
		Msg("batch appended")
	return ids, uint64(len(frame)), nil
}

// RemoveBatch unindexes paths. Removal never touches the store; the
// record bytes stay in the file but become unreachable. Paths that were
// never stored are counted as requested, not as failures.
func (e *Engine) RemoveBatch(ctx context.Context, paths []string) (*RemovalResult, error) {
	result := &RemovalResult{Requested: len(paths)}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		canonical, err := e.norm.Canonical(p)
		if err != nil {
			continue
		}
		if _, ok := e.idx.Remove(canonical); ok {
			result.Removed++
		}
	}
	e.metrics.RecordRemoval(result.Removed)
	return result, nil
}

// ReadAt decodes the batch stored in the frame at offset, verifying its
// checksum first.
func (e *Engine) ReadAt(offset uint64) ([]*schema.MediaRecord, error) {
	payload, err := e.readVerified(offset)
	if err != nil {
		return nil, err
	}
	return codec.DecodeBatch(payload)
}

// frameLength computes the value of the u32 length prefix for a payload
// of payloadLen bytes. Payloads large enough to overflow the prefix are
// rejected rather than truncated.
func frameLength(payloadLen int) (uint32, error) {
	n := int64(payloadLen) + frameHeaderSize - lenFieldSize
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("engine: frame payload of %d bytes exceeds the length field", payloadLen)
	}
	return uint32(n), nil
}

// readVerified reads the frame at offset and returns its payload after a
// checksum check.
func (e *Engine) readVerified(offset uint64) ([]byte, error) {
	header, err := e.store.ReadAt(offset, frameHeaderSize)
	if err != nil {
		return nil, err
	}
	frameLen := binary.LittleEndian.Uint32(header)
	if frameLen < frameHeaderSize-lenFieldSize {
		return nil, fmt.Errorf("%w: frame length %d at offset %d", ErrIntegrity, frameLen, offset)
	}
	want := binary.LittleEndian.Uint64(header[12:])
	payload, err := e.store.ReadAt(offset+frameHeaderSize, int(frameLen)-(frameHeaderSize-lenFieldSize))
	if err != nil {
		return nil, err
	}
	got, err := checksum(payload)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, fmt.Errorf("%w: offset %d", ErrIntegrity, offset)
	}
	return payload, nil
}

// Metrics returns the engine's sink when it is the default implementation,
// nil otherwise.
func (e *Engine) Metrics() *Metrics {
	if m, ok := e.metrics.(*Metrics); ok {
		return m
	}
	return nil
}

// Index exposes the engine's index manager for read paths.
func (e *Engine) Index() *index.Manager { return e.idx }

// NextID returns the last id handed out.
func (e *Engine) NextID() int64 { return e.nextID.Load() }
