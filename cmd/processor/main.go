package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/birdscan-backend/internal/clients/gcp"
	"github.com/yungbote/birdscan-backend/internal/config"
	"github.com/yungbote/birdscan-backend/internal/pipeline"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/results"
	"github.com/yungbote/birdscan-backend/internal/server"
)

func main() {
	key := flag.String("key", "", "process a single uploaded artifact by store key, then exit")
	deadline := flag.Duration("deadline", 0, "execution budget for one-shot mode (0 = none)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
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

	counter, err := gcp.NewCounter(log, cfg.Counter.TargetLabel, cfg.Invoker.CallTimeout.Duration)
	if err != nil {
		log.Fatal("counter init failed", "error", err)
	}
	defer counter.Close()

	svc := pipeline.NewService(log, store, counter, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *key != "" {
		os.Exit(runOnce(ctx, log, svc, *key, *deadline))
	}

	discovery := results.NewDiscoveryService(log, store, cfg.Store.ResultsPrefix, cfg.Store.SignedURLTTL.Duration)
	router := server.NewRouter(server.RouterConfig{
		Log:       log,
		Discovery: discovery,
		Pipeline:  svc,
	})

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		log.Info("processor listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
}

func runOnce(ctx context.Context, log *logger.Logger, svc *pipeline.Service, key string, deadline time.Duration) int {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	kind, ok := pipeline.InferKind(key)
	if !ok {
		log.Error("unsupported upload type", "key", key)
		return 1
	}

	res, err := svc.Process(ctx, key, kind)
	if err != nil {
		log.Error("batch failed", "key", key, "error", err)
		return 1
	}
	log.Info("batch published", "table_key", res.TableKey, "rows", res.Rows, "failed", res.Failed)
	return 0
}
