// Package sqlstore is the SQLite media storage backend. It implements the
// same Manager contract as the zero-copy store, everything expressed as
// ordinary rows and indexes so operational tooling can inspect the
// library with any sqlite client.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/vuio/mediastore"
	"github.com/vuio/mediastore/schema"
)

// Store implements mediastore.Manager over a SQLite database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ mediastore.Manager = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New opens or creates the database at location and applies PRAGMAs.
func New(location string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", buildDSN(location, 5000))
	if err != nil {
		return nil, err
	}
	// WAL concurrency; optional pragmas may fail on older engines
	pragmas := []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-65536;",
	}
	for _, p := range pragmas {
		_, _ = db.Exec(p)
	}
	s := &Store{db: db, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize creates the schema when missing.
func (s *Store) Initialize(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS media_files (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            path TEXT UNIQUE NOT NULL,
            parent_path TEXT NOT NULL,
            filename TEXT NOT NULL,
            size INTEGER NOT NULL,
            modified DATETIME NOT NULL,
            mime_type TEXT NOT NULL,
            duration INTEGER,
            title TEXT,
            artist TEXT,
            album TEXT,
            genre TEXT,
            track_number INTEGER,
            year INTEGER,
            album_artist TEXT,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_media_files_parent_path ON media_files(parent_path);`,
		`CREATE INDEX IF NOT EXISTS idx_media_files_artist ON media_files(artist);`,
		`CREATE INDEX IF NOT EXISTS idx_media_files_album ON media_files(album);`,
		`CREATE INDEX IF NOT EXISTS idx_media_files_genre ON media_files(genre);`,
		`CREATE INDEX IF NOT EXISTS idx_media_files_year ON media_files(year);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const upsertQuery = `INSERT INTO media_files
    (path, parent_path, filename, size, modified, mime_type, duration, title,
     artist, album, genre, track_number, year, album_artist, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(path) DO UPDATE SET
        parent_path = excluded.parent_path,
        filename = excluded.filename,
        size = excluded.size,
        modified = excluded.modified,
        mime_type = excluded.mime_type,
        duration = excluded.duration,
        title = excluded.title,
        artist = excluded.artist,
        album = excluded.album,
        genre = excluded.genre,
        track_number = excluded.track_number,
        year = excluded.year,
        album_artist = excluded.album_artist,
        updated_at = excluded.updated_at
    RETURNING id`

// Store inserts rec or replaces the row stored under its path.
func (s *Store) Store(ctx context.Context, rec *schema.MediaRecord) (int64, error) {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	var id int64
	err := s.db.QueryRowContext(ctx, upsertQuery, upsertArgs(rec)...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: store %s: %w", rec.Path, err)
	}
	rec.ID = id
	return id, nil
}

// BulkStore upserts recs in a single transaction.
func (s *Store) BulkStore(ctx context.Context, recs []*schema.MediaRecord) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now()
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		if err := stmt.QueryRowContext(ctx, upsertArgs(rec)...).Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("sqlstore: store %s: %w", rec.Path, err)
		}
		rec.ID = ids[i]
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func upsertArgs(rec *schema.MediaRecord) []any {
	return []any{
		rec.Path, rec.ParentDir(), rec.Filename, rec.Size, rec.Modified,
		rec.MimeType, rec.Duration.Milliseconds(), rec.Title, rec.Artist,
		rec.Album, rec.Genre, nullableUint32(rec.TrackNumber),
		nullableUint32(rec.Year), rec.AlbumArtist, rec.CreatedAt, rec.UpdatedAt,
	}
}

func nullableUint32(v uint32) any {
	if v == 0 {
		return nil
	}
	return int64(v)
}

const selectColumns = `id, path, filename, size, modified, mime_type, duration,
    title, artist, album, genre, track_number, year, album_artist, created_at, updated_at`

// GetByPath returns the record stored under path, or (nil, nil) when
// absent.
func (s *Store) GetByPath(ctx context.Context, path string) (*schema.MediaRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM media_files WHERE path = ?`, path)
	return scanRecord(row)
}

// GetByID returns the record with id, or (nil, nil) when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*schema.MediaRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM media_files WHERE id = ?`, id)
	return scanRecord(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*schema.MediaRecord, error) {
	rec, err := scanInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// Update stores a new version of rec; its path decides which row is
// replaced.
func (s *Store) Update(ctx context.Context, rec *schema.MediaRecord) error {
	_, err := s.Store(ctx, rec)
	return err
}

// Remove deletes the row stored under path and reports whether one
// existed.
func (s *Store) Remove(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media_files WHERE path = ?`, path)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// BulkRemove deletes paths in one transaction and returns how many rows
// were actually removed.
func (s *Store) BulkRemove(ctx context.Context, paths []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM media_files WHERE path = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	removed := 0
	for _, p := range paths {
		res, err := stmt.ExecContext(ctx, p)
		if err != nil {
			return removed, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// FilesInDirectory returns records whose parent directory is dir,
// ordered by filename.
func (s *Store) FilesInDirectory(ctx context.Context, dir string) ([]*schema.MediaRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM media_files WHERE parent_path = ? ORDER BY filename`, dir)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*schema.MediaRecord
	for rows.Next() {
		rec, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanInto(src scanner) (*schema.MediaRecord, error) {
	var rec schema.MediaRecord
	var durationMS sql.NullInt64
	var title, artist, album, genre, albumArtist sql.NullString
	var track, year sql.NullInt64
	err := src.Scan(&rec.ID, &rec.Path, &rec.Filename, &rec.Size, &rec.Modified,
		&rec.MimeType, &durationMS, &title, &artist, &album, &genre,
		&track, &year, &albumArtist, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if durationMS.Valid {
		rec.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	rec.Title = nullString(title)
	rec.Artist = nullString(artist)
	rec.Album = nullString(album)
	rec.Genre = nullString(genre)
	rec.AlbumArtist = nullString(albumArtist)
	if track.Valid {
		rec.TrackNumber = uint32(track.Int64)
	}
	if year.Valid {
		rec.Year = uint32(year.Int64)
	}
	return &rec, nil
}

// Stats reports row count and total media bytes.
func (s *Store) Stats(ctx context.Context) (*mediastore.Stats, error) {
	var count int
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM media_files`).Scan(&count, &total)
	if err != nil {
		return nil, err
	}
	return &mediastore.Stats{
		FileCount:  count,
		TotalBytes: uint64(total.Int64),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
