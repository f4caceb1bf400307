package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/birdscan-backend/internal/clients/gcp"
	"github.com/yungbote/birdscan-backend/internal/config"
	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/types"
)

// Invoker fans items out to the counting service under a bounded concurrency
// limit. One outcome is produced per item; outcome order does not match input
// order. A failed item never aborts the rest of the batch.
type Invoker struct {
	log     *logger.Logger
	counter gcp.Counter
	cfg     config.InvokerConfig
}

func NewInvoker(log *logger.Logger, counter gcp.Counter, cfg config.InvokerConfig) *Invoker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase.Duration <= 0 {
		cfg.BackoffBase = config.Duration{Duration: 750 * time.Millisecond}
	}
	if cfg.BackoffCap.Duration < cfg.BackoffBase.Duration {
		cfg.BackoffCap = config.Duration{Duration: 10 * time.Second}
	}
	return &Invoker{
		log:     log.With("component", "Invoker"),
		counter: counter,
		cfg:     cfg,
	}
}

// Invoke dispatches every item and returns one outcome each. When ctx
// expires, items not yet started are synthesized as not-attempted failures
// rather than dropped.
func (inv *Invoker) Invoke(ctx context.Context, items []types.ImageItem) []types.InferenceOutcome {
	outcomes := make([]types.InferenceOutcome, 0, len(items))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inv.cfg.Concurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			var out types.InferenceOutcome
			if gctx.Err() != nil {
				out = types.InferenceOutcome{
					Name: item.Name,
					Err:  fmt.Errorf("deadline expired before dispatch: %w", pkgerrors.ErrNotAttempted),
				}
			} else {
				out = inv.invokeOne(gctx, item)
			}

			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (inv *Invoker) invokeOne(ctx context.Context, item types.ImageItem) types.InferenceOutcome {
	backoff := inv.cfg.BackoffBase.Duration
	var lastErr error

	for attempt := 1; attempt <= inv.cfg.MaxAttempts; attempt++ {
		count, err := inv.counter.Count(ctx, item.Data, item.Name)
		if err == nil {
			inv.log.Debug("item counted", "item", item.Name, "count", count, "attempts", attempt)
			return types.InferenceOutcome{Name: item.Name, Count: count, Attempts: attempt}
		}
		lastErr = err

		if !pkgerrors.Retryable(err) {
			inv.log.Warn("item rejected", "item", item.Name, "error", err)
			return types.InferenceOutcome{Name: item.Name, Err: err, Attempts: attempt}
		}
		if attempt == inv.cfg.MaxAttempts {
			break
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return types.InferenceOutcome{
				Name:     item.Name,
				Err:      fmt.Errorf("deadline expired mid-retry: %w", pkgerrors.ErrNotAttempted),
				Attempts: attempt,
			}
		case <-t.C:
		}
		backoff *= 2
		if backoff > inv.cfg.BackoffCap.Duration {
			backoff = inv.cfg.BackoffCap.Duration
		}
	}

	inv.log.Warn("item failed after retries", "item", item.Name, "attempts", inv.cfg.MaxAttempts, "error", lastErr)
	return types.InferenceOutcome{Name: item.Name, Err: lastErr, Attempts: inv.cfg.MaxAttempts}
}
