// Package mediastore is the storage core of a local media library: an
// append-only record store with in-memory indexes, a bounded decoded
// record cache and a batch write pipeline, behind a backend-neutral
// Manager contract.
package mediastore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vuio/mediastore/cache"
	"github.com/vuio/mediastore/config"
	"github.com/vuio/mediastore/engine"
	"github.com/vuio/mediastore/index"
	"github.com/vuio/mediastore/schema"
	"github.com/vuio/mediastore/store/appendstore"
)

// Store is the zero-copy Manager implementation composed of the append
// store, the index manager, the batch engine and a decoded record cache
// keyed by canonical path.
type Store struct {
	cfg     *config.Config
	backing *appendstore.Store
	idx     *index.Manager
	eng     *engine.Engine
	records *cache.Cache[string, *schema.MediaRecord]
	norm    engine.PathNormalizer
	log     zerolog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

var _ Manager = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger shared by all layers.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New builds the zero-copy Store from cfg without touching the
// filesystem; Initialize opens the backing file and loads the index.
func New(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.EnableCompression {
		return nil, fmt.Errorf("mediastore: compression is not implemented")
	}
	s := &Store{
		cfg:  cfg,
		norm: engine.SlashNormalizer{},
		log:  zerolog.Nop(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize opens the backing file, loads the persisted index and
// starts the background sync loop. It must be called exactly once
// before any other operation.
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("mediastore: create data dir: %w", err)
	}
	backing, err := appendstore.Open(appendstore.Options{
		Path:        s.cfg.StorePath(),
		InitialSize: int64(s.cfg.InitialFileSizeMB) << 20,
		MaxSize:     int64(s.cfg.MaxFileSizeGB) << 30,
		Logger:      &s.log,
	})
	if err != nil {
		return err
	}
	s.backing = backing

	s.idx = index.New(
		index.WithLogger(s.log),
		index.WithCapacityHint(s.cfg.IndexCacheSize),
	)
	if err := s.idx.Load(ctx, s.cfg.IndexPath()); err != nil {
		_ = backing.Close()
		return err
	}
	s.eng = engine.New(backing, s.idx,
		engine.WithBatchSize(s.cfg.BatchSize),
		engine.WithNormalizer(s.norm),
		engine.WithLogger(s.log),
	)
	s.records = cache.New[string, *schema.MediaRecord](
		s.cfg.CacheMaxEntries,
		s.cfg.CacheMaxMemoryMB<<20,
		recordSize,
	)

	s.wg.Add(1)
	go s.syncLoop()
	s.log.Info().
		Str("path", s.cfg.StorePath()).
		Int64("tail", backing.Tail()).
		Int("files", s.idx.Stats().PathEntries).
		Msg("media store initialized")
	return nil
}

// Store persists one record, returning its assigned id.
func (s *Store) Store(ctx context.Context, rec *schema.MediaRecord) (int64, error) {
	ids, err := s.BulkStore(ctx, []*schema.MediaRecord{rec})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// BulkStore persists recs through the batch pipeline and returns their
// ids in input order. When a later chunk fails the ids of the chunks
// already written are returned alongside the error; those records are
// durably stored.
func (s *Store) BulkStore(ctx context.Context, recs []*schema.MediaRecord) ([]int64, error) {
	result, err := s.eng.InsertBatch(ctx, recs)
	for i := range result.IDs {
		s.records.Put(recs[i].Path, recs[i].Clone())
	}
	return result.IDs, err
}

// GetByPath returns the record stored under path, or (nil, nil) when
// absent.
func (s *Store) GetByPath(ctx context.Context, path string) (*schema.MediaRecord, error) {
	canonical, err := s.norm.Canonical(path)
	if err != nil {
		return nil, nil
	}
	if rec, ok := s.records.Get(canonical); ok {
		return rec.Clone(), nil
	}
	offset, ok := s.idx.FindByPath(canonical)
	if !ok {
		return nil, nil
	}
	rec, err := s.readFromFrame(offset, func(r *schema.MediaRecord) bool { return r.Path == canonical })
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID returns the record with id, or (nil, nil) when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*schema.MediaRecord, error) {
	offset, ok := s.idx.FindByID(id)
	if !ok {
		return nil, nil
	}
	return s.readFromFrame(offset, func(r *schema.MediaRecord) bool { return r.ID == id })
}

// readFromFrame decodes the frame at offset and returns the first record
// matching the predicate, populating the cache on the way out.
func (s *Store) readFromFrame(offset uint64, match func(*schema.MediaRecord) bool) (*schema.MediaRecord, error) {
	recs, err := s.eng.ReadAt(offset)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if match(rec) {
			// The frame may predate a later rewrite of the same path;
			// the index is the authority on which frame is current.
			if current, ok := s.idx.FindByPath(rec.Path); !ok || current != offset {
				continue
			}
			s.records.Put(rec.Path, rec.Clone())
			return rec, nil
		}
	}
	return nil, nil
}

// Update stores a new version of rec; its path decides which record is
// replaced.
func (s *Store) Update(ctx context.Context, rec *schema.MediaRecord) error {
	if _, err := s.eng.UpdateBatch(ctx, []*schema.MediaRecord{rec}); err != nil {
		return err
	}
	s.records.Put(rec.Path, rec.Clone())
	return nil
}

// Remove unindexes path and reports whether a record was present.
func (s *Store) Remove(ctx context.Context, path string) (bool, error) {
	removed, err := s.BulkRemove(ctx, []string{path})
	return removed == 1, err
}

// BulkRemove unindexes paths and returns how many records were actually
// removed. Paths never stored are not an error.
func (s *Store) BulkRemove(ctx context.Context, paths []string) (int, error) {
	for _, p := range paths {
		if canonical, err := s.norm.Canonical(p); err == nil {
			s.records.Remove(canonical)
		}
	}
	result, err := s.eng.RemoveBatch(ctx, paths)
	if err != nil {
		return 0, err
	}
	return result.Removed, nil
}

// Stats aggregates counters from every layer.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	idxStats := s.idx.Stats()
	backing := s.backing.Stats()
	out := &Stats{
		FileCount:       idxStats.PathEntries,
		TotalBytes:      idxStats.MediaBytes,
		BackingFileSize: backing.Size,
		Index:           idxStats,
		Cache:           s.records.Stats(),
		Backing:         backing,
	}
	if m := s.eng.Metrics(); m != nil {
		out.Engine = m.Snapshot()
	}
	return out, nil
}

// Close stops the sync loop, flushes the store and persists the index.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.backing == nil {
			return
		}
		ctx := context.Background()
		if err := s.idx.Persist(ctx, s.cfg.IndexPath()); err != nil {
			s.closeErr = err
		}
		if err := s.backing.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// syncLoop flushes the backing file and persists the index off the hot
// path until Close.
func (s *Store) syncLoop() {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.SyncIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.backing.Sync(); err != nil {
				s.log.Warn().Err(err).Msg("store sync failed")
			}
			if err := s.idx.Persist(context.Background(), s.cfg.IndexPath()); err != nil {
				s.log.Warn().Err(err).Msg("index persist failed")
			}
		}
	}
}

// recordSize estimates the resident size of a cached record for the
// cache byte budget.
func recordSize(key string, rec *schema.MediaRecord) int {
	size := 160 + len(key) + len(rec.Path) + len(rec.Filename) + len(rec.MimeType)
	for _, s := range []*string{rec.Title, rec.Artist, rec.Album, rec.Genre, rec.AlbumArtist} {
		if s != nil {
			size += 16 + len(*s)
		}
	}
	return size
}

// Open builds and initializes the backend selected by cfg.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (Manager, error) {
	switch cfg.Backend {
	case config.BackendZeroCopy:
		s, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		if err := s.Initialize(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("mediastore: unknown backend %q", cfg.Backend)
	}
}
