package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dsajudge/internal/cli/config"
	"dsajudge/internal/cli/repl"
	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/catalog"
	"dsajudge/internal/judge/sandbox/synth"
	"dsajudge/pkg/utils/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	catalogPath := flag.String("catalog", "", "Override catalog file")
	timeout := flag.Duration("timeout", 0, "Override per-case timeout (e.g. 2s)")
	pretty := flag.Bool("pretty", false, "Pretty print JSON output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *catalogPath != "" {
		cfg.Catalog = catalog.Config{Path: *catalogPath}
	}
	if *timeout > 0 {
		cfg.Sandbox.Timeout = *timeout
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	var objStorage storage.ObjectStorage
	if cfg.MinIO.Endpoint != "" {
		minioStorage, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init minio failed: %v\n", err)
			return
		}
		objStorage = minioStorage
	}

	problems, err := catalog.Load(ctx, cfg.Catalog, objStorage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog failed: %v\n", err)
		return
	}

	session, err := repl.New(repl.Options{
		Catalog:     problems,
		Limits:      cfg.Sandbox,
		Types:       synth.NewTypeRegistry(cfg.Primitives...),
		Store:       objStorage,
		Bucket:      cfg.MinIO.Bucket,
		HistoryFile: cfg.HistoryFile,
		PrettyJSON:  cfg.PrettyJSON != nil && *cfg.PrettyJSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init session failed: %v\n", err)
		return
	}
	if err := session.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "session failed: %v\n", err)
	}
}
