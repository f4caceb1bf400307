package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/birdscan-backend/internal/clients/classifier"
	"github.com/yungbote/birdscan-backend/internal/clients/gcp"
	"github.com/yungbote/birdscan-backend/internal/config"
	"github.com/yungbote/birdscan-backend/internal/enrich"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
)

// The enricher runs once per startup: its host environment (a scheduler, a
// manual trigger, the trigger artifact's observer) decides when that is.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Classifier.Endpoint == "" {
		fmt.Fprintln(os.Stderr, "classifier.endpoint is required (or set CLASSIFIER_ENDPOINT)")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := gcp.NewBucketStore(log, cfg.Store.Bucket)
	if err != nil {
		log.Fatal("bucket store init failed", "error", err)
	}
	defer store.Close()

	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		log.Fatal("classifier init failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := enrich.NewRunner(log, store, cls, cfg)
	report, err := runner.Run(ctx)
	if err != nil {
		log.Error("enrichment run failed", "error", err)
		os.Exit(1)
	}
	log.Info("enricher exiting",
		"examined", report.TablesExamined,
		"enriched", report.TablesEnriched,
		"skipped", report.TablesSkipped,
	)
}
