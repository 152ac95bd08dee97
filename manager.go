package mediastore

import (
	"context"

	"github.com/vuio/mediastore/cache"
	"github.com/vuio/mediastore/engine"
	"github.com/vuio/mediastore/index"
	"github.com/vuio/mediastore/schema"
	"github.com/vuio/mediastore/store/appendstore"
)

// Manager is the storage contract. Both the zero-copy and the SQLite
// backends implement it; callers never depend on which one is behind it.
// Lookups return (nil, nil) when the record is absent.
type Manager interface {
	Initialize(ctx context.Context) error
	Store(ctx context.Context, rec *schema.MediaRecord) (int64, error)
	BulkStore(ctx context.Context, recs []*schema.MediaRecord) ([]int64, error)
	GetByPath(ctx context.Context, path string) (*schema.MediaRecord, error)
	GetByID(ctx context.Context, id int64) (*schema.MediaRecord, error)
	Update(ctx context.Context, rec *schema.MediaRecord) error
	Remove(ctx context.Context, path string) (bool, error)
	BulkRemove(ctx context.Context, paths []string) (int, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats aggregates the state of every storage layer.
type Stats struct {
	FileCount       int               `json:"fileCount"`
	TotalBytes      uint64            `json:"totalBytes"`
	BackingFileSize int64             `json:"backingFileSize"`
	Index           index.Stats       `json:"index"`
	Cache           cache.Stats       `json:"cache"`
	Engine          engine.Snapshot   `json:"engine"`
	Backing         appendstore.Stats `json:"backing"`
}
