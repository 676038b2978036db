package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/kafaichoi/minipg/internal"
	"github.com/kafaichoi/minipg/internal/bufferpool"
	"github.com/kafaichoi/minipg/internal/heap"
	"github.com/kafaichoi/minipg/internal/sql/executor"
	"github.com/kafaichoi/minipg/internal/storage"
	"github.com/kafaichoi/minipg/server/pgwire"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config file (defaults apply when empty)")
	dataRoot := flag.String("data-dir", "", "Override storage.data_root")
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataRoot != "" {
		cfg.Storage.DataRoot = *dataRoot
	}

	fm, err := storage.NewFileManager(cfg.Storage.DataRoot)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	pool := bufferpool.NewPool(fm, cfg.Buffer.Capacity)
	store := heap.NewStorage(fm, pool)
	exec := executor.New(store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool.StartSweeper(ctx,
		cfg.Buffer.EvictionThreshold,
		cfg.Buffer.TargetUtilization,
		cfg.EvictionInterval())

	srv := pgwire.NewServer(pgwire.Config{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		QueryTimeout: cfg.QueryTimeout(),
		ConnTimeout:  cfg.ConnectionTimeout(),
	}, exec)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	if err := store.Close(); err != nil {
		log.Printf("Shutdown flush failed: %v", err)
	}
}
