package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quillnote/core/internal/buildinfo"
	"github.com/quillnote/core/internal/cli"
	"github.com/quillnote/core/internal/config"
	"github.com/quillnote/core/internal/engine"
	"github.com/quillnote/core/internal/filex"
	"github.com/quillnote/core/internal/logging"
	"github.com/quillnote/core/internal/syncer/httpapi"

	_ "modernc.org/sqlite"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	// Relative database paths go into a data subdirectory next to the binary's
	// working directory; absolute paths are used as given.
	if !filepath.IsAbs(cfg.DatabasePath) {
		dir, err := filex.EnsureDataDir("data")
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg.DatabasePath = filepath.Join(dir, cfg.DatabasePath)
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	remote := httpapi.New(cfg.APIEndpoint, cfg.NetTimeout, logger)
	eng := engine.New(cfg, remote, logger)

	app := cli.NewApp(cfg, eng)
	app.Run(ctx)
}
