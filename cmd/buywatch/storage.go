package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brojonat/buywatch/service/cursor"
	"github.com/brojonat/buywatch/service/db"
	"github.com/brojonat/buywatch/service/registry"
	"github.com/urfave/cli/v2"
)

// storage is the registry backend and cursor store selected by the global flags.
type storage struct {
	tokens  registry.Backend
	cursors cursor.Store
	db      *db.Store // nil for file storage
	close   func()
}

func openStorage(c *cli.Context) (*storage, error) {
	switch c.String("storage") {
	case "postgres":
		dbURL := c.String("database-url")
		if dbURL == "" {
			return nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
		}
		pool, err := db.Connect(context.Background(), dbURL)
		if err != nil {
			return nil, err
		}
		store := db.NewStore(pool, nil)
		if err := store.Migrate(context.Background()); err != nil {
			pool.Close()
			return nil, err
		}
		return &storage{tokens: store, cursors: store, db: store, close: pool.Close}, nil
	case "file", "":
		dir := c.String("data-dir")
		return &storage{
			tokens:  registry.NewFileBackend(filepath.Join(dir, "added_tokens.txt")),
			cursors: cursor.NewFileStore(filepath.Join(dir, "cursors.json")),
			close:   func() {},
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.String("storage"))
	}
}

// cliLogger discards library logs unless LOG_LEVEL=debug.
func cliLogger() *slog.Logger {
	if os.Getenv("LOG_LEVEL") == "debug" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
