// Command vivarium-archive manages document snapshots in the configured
// blob archive: export the current document, list archived snapshots, or
// restore one into the live store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"vivarium/internal/core"
)

func main() {
	list := flag.Bool("list", false, "list archived snapshots")
	restore := flag.String("restore", "", "restore the given snapshot key (empty key with -restore-latest)")
	restoreLatest := flag.Bool("restore-latest", false, "restore the most recent snapshot")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	archive, err := core.OpenArchiveStore(ctx)
	if err != nil {
		logger.Fatal("open archive", zap.Error(err))
	}
	archiver := core.NewArchiver(store, archive, logger)

	switch {
	case *list:
		infos, err := archiver.List(ctx)
		if err != nil {
			logger.Fatal("list snapshots", zap.Error(err))
		}
		for _, info := range infos {
			fmt.Fprintf(os.Stdout, "%s\t%d bytes\t%s\n", info.Key, info.Size, info.LastModified.Format("2006-01-02 15:04:05"))
		}
	case *restore != "" || *restoreLatest:
		if err := archiver.Restore(ctx, *restore); err != nil {
			logger.Fatal("restore snapshot", zap.Error(err))
		}
	default:
		key, err := archiver.Snapshot(ctx)
		if err != nil {
			logger.Fatal("archive snapshot", zap.Error(err))
		}
		fmt.Fprintln(os.Stdout, key)
	}
}
