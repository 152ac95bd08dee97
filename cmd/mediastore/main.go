package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vuio/mediastore"
	"github.com/vuio/mediastore/config"
	"github.com/vuio/mediastore/schema"
	"github.com/vuio/mediastore/store/sqlstore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "stats":
		statsCmd(os.Args[2:])
	case "get":
		getCmd(os.Args[2:])
	case "ingest":
		ingestCmd(os.Args[2:])
	case "remove":
		removeCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "mediastore:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: mediastore <command> [options]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  stats   Print storage statistics")
	fmt.Fprintln(os.Stderr, "  get     Look up a media record by path or id")
	fmt.Fprintln(os.Stderr, "  ingest  Scan a directory and store its media files")
	fmt.Fprintln(os.Stderr, "  remove  Remove records by path")
}

func loadConfig(path string) *config.Config {
	if path == "" {
		cfg := config.Default()
		cfg.FromEnv()
		if err := cfg.Validate(); err != nil {
			fatal(err)
		}
		return cfg
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	return cfg
}

// open routes the backend by config.
func open(ctx context.Context, cfg *config.Config, verbose bool) mediastore.Manager {
	logger := zerolog.Nop()
	if verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlstore.New(cfg.DSN(), sqlstore.WithLogger(logger))
		if err != nil {
			fatal(err)
		}
		if err := s.Initialize(ctx); err != nil {
			fatal(err)
		}
		return s
	default:
		m, err := mediastore.Open(ctx, cfg, mediastore.WithLogger(logger))
		if err != nil {
			fatal(err)
		}
		return m
	}
}

func statsCmd(args []string) {
	flags := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := flags.String("config", "", "config yaml path (optional)")
	verbose := flags.Bool("v", false, "verbose logging")
	_ = flags.Parse(args)

	ctx := context.Background()
	m := open(ctx, loadConfig(*configPath), *verbose)
	defer m.Close()

	stats, err := m.Stats(ctx)
	if err != nil {
		fatal(err)
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(out))
}

func getCmd(args []string) {
	flags := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := flags.String("config", "", "config yaml path (optional)")
	path := flags.String("path", "", "media file path")
	id := flags.String("id", "", "media record id")
	verbose := flags.Bool("v", false, "verbose logging")
	_ = flags.Parse(args)
	if *path == "" && *id == "" {
		fatal(fmt.Errorf("get: --path or --id is required"))
	}

	ctx := context.Background()
	m := open(ctx, loadConfig(*configPath), *verbose)
	defer m.Close()

	var rec *schema.MediaRecord
	var err error
	if *path != "" {
		rec, err = m.GetByPath(ctx, *path)
	} else {
		var recID int64
		if recID, err = strconv.ParseInt(*id, 10, 64); err != nil {
			fatal(fmt.Errorf("get: invalid id %q", *id))
		}
		rec, err = m.GetByID(ctx, recID)
	}
	if err != nil {
		fatal(err)
	}
	if rec == nil {
		fmt.Fprintln(os.Stderr, "not found")
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(out))
}

func ingestCmd(args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := flags.String("config", "", "config yaml path (optional)")
	root := flags.String("root", "", "directory to scan (required)")
	verbose := flags.Bool("v", false, "verbose logging")
	_ = flags.Parse(args)
	if *root == "" {
		fatal(fmt.Errorf("ingest: --root is required"))
	}

	ctx := context.Background()
	m := open(ctx, loadConfig(*configPath), *verbose)
	defer m.Close()

	recs, err := scanMedia(*root)
	if err != nil {
		fatal(err)
	}
	started := time.Now()
	ids, err := m.BulkStore(ctx, recs)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("stored %d files in %s\n", len(ids), time.Since(started).Round(time.Millisecond))
}

func removeCmd(args []string) {
	flags := flag.NewFlagSet("remove", flag.ExitOnError)
	configPath := flags.String("config", "", "config yaml path (optional)")
	verbose := flags.Bool("v", false, "verbose logging")
	_ = flags.Parse(args)
	paths := flags.Args()
	if len(paths) == 0 {
		fatal(fmt.Errorf("remove: at least one path is required"))
	}

	ctx := context.Background()
	m := open(ctx, loadConfig(*configPath), *verbose)
	defer m.Close()

	removed, err := m.BulkRemove(ctx, paths)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("removed %d of %d\n", removed, len(paths))
}

// scanMedia walks root collecting files with a recognized media extension.
func scanMedia(root string) ([]*schema.MediaRecord, error) {
	var recs []*schema.MediaRecord
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		mime, ok := mimeByExtension(filepath.Ext(path))
		if !ok {
			return nil
		}
		recs = append(recs, &schema.MediaRecord{
			Path:     path,
			Filename: info.Name(),
			Size:     uint64(info.Size()),
			Modified: info.ModTime(),
			MimeType: mime,
		})
		return nil
	})
	return recs, err
}

func mimeByExtension(ext string) (string, bool) {
	switch ext {
	case ".mp3":
		return "audio/mpeg", true
	case ".flac":
		return "audio/flac", true
	case ".ogg":
		return "audio/ogg", true
	case ".wav":
		return "audio/wav", true
	case ".m4a":
		return "audio/mp4", true
	case ".mp4":
		return "video/mp4", true
	case ".mkv":
		return "video/x-matroska", true
	case ".avi":
		return "video/x-msvideo", true
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".png":
		return "image/png", true
	default:
		return "", false
	}
}
