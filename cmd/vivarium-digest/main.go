// Command vivarium-digest reports expired and upcoming husbandry events for
// the configured store. With -watch it keeps running and emits a digest on
// every interval until interrupted; otherwise it runs one pass and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vivarium/internal/core"
	"vivarium/internal/notify"
)

func main() {
	watch := flag.Bool("watch", false, "keep running and emit a digest every interval")
	interval := flag.Duration("interval", 24*time.Hour, "digest interval in watch mode")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	service := core.NewService(store,
		core.WithLogger(logger),
		core.WithScheduler(notify.NewLogScheduler(logger)),
	)

	sink := notify.DigestSinkFunc(func(_ context.Context, digest notify.Digest) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(digest)
	})
	worker := notify.NewDigestWorker(service, sink, *interval, logger)

	if !*watch {
		if err := worker.RunOnce(context.Background()); err != nil {
			logger.Fatal("digest run", zap.Error(err))
		}
		return
	}

	worker.Start()
	logger.Info("digest worker started", zap.Duration("interval", *interval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := worker.Stop(ctx); err != nil {
		logger.Error("digest worker stop", zap.Error(err))
	}
}
