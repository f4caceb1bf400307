package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/birdscan-backend/internal/clients/classifier"
	"github.com/yungbote/birdscan-backend/internal/config"
	"github.com/yungbote/birdscan-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/results"
	"github.com/yungbote/birdscan-backend/internal/types"
)

// RunReport summarizes one runner invocation.
type RunReport struct {
	TablesExamined  int
	TablesEnriched  int
	TablesSkipped   int
	RowsClassified  int
	RowsPassthrough int
}

// Runner is the enrichment stage. It has its own lifecycle: on startup it
// lists the results namespace for primary tables that have no enhanced
// counterpart and enriches each one. A table whose run is interrupted is left
// unpublished and is picked up again by the next invocation.
type Runner struct {
	log        *logger.Logger
	store      results.Store
	classifier classifier.Classifier
	cfg        *config.Config

	mu       sync.Mutex
	runLog   []string
	startedA time.Time
}

func NewRunner(log *logger.Logger, store results.Store, cls classifier.Classifier, cfg *config.Config) *Runner {
	return &Runner{
		log:        log.With("component", "EnrichmentRunner"),
		store:      store,
		classifier: cls,
		cfg:        cfg,
	}
}

func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	ctx = ctxutil.Default(ctx)
	r.startedA = time.Now().UTC()
	report := &RunReport{}

	objs, err := r.store.List(ctx, r.cfg.Store.ResultsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list results namespace: %w", err)
	}

	enhanced := map[string]bool{}
	primaries := []string{}
	for _, o := range objs {
		kind, ok := results.KindOfKey(o.Key)
		if !ok {
			continue
		}
		batch, _ := results.BatchOfKey(o.Key)
		switch kind {
		case types.TableKindEnhanced:
			enhanced[batch] = true
		case types.TableKindPrimary:
			primaries = append(primaries, o.Key)
		}
	}

	for _, key := range primaries {
		batch, _ := results.BatchOfKey(key)
		report.TablesExamined++
		if enhanced[batch] {
			report.TablesSkipped++
			continue
		}
		if err := r.enrichTable(ctx, key, batch, report); err != nil {
			// Publish nothing for this table; the next startup retries it.
			r.log.Error("table enrichment failed", "key", key, "error", err)
			r.logf("ERROR %s: %v", key, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		report.TablesEnriched++
	}

	r.logf("run complete: examined=%d enriched=%d skipped=%d classified=%d passthrough=%d",
		report.TablesExamined, report.TablesEnriched, report.TablesSkipped,
		report.RowsClassified, report.RowsPassthrough)
	r.uploadRunLog(report)

	r.log.Info("enrichment run complete",
		"examined", report.TablesExamined,
		"enriched", report.TablesEnriched,
		"skipped", report.TablesSkipped,
	)
	return report, nil
}

func (r *Runner) enrichTable(ctx context.Context, key, batch string, report *RunReport) error {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("download primary table: %w", err)
	}
	rows, err := results.ParsePrimary(raw)
	if err != nil {
		return err
	}

	out := make([]types.EnhancedRow, len(rows))
	var classified, passthrough int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Invoker.Concurrency)

	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			enriched := r.enrichRow(gctx, batch, row)
			mu.Lock()
			out[i] = enriched
			if enriched.Category != "" {
				classified++
			} else {
				passthrough++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Interrupted before every row was genuinely attempted: leave the table
	// pending rather than publish a half-finished artifact.
	if ctx.Err() != nil {
		return fmt.Errorf("enrichment interrupted: %w", ctx.Err())
	}

	enhancedKey := results.EnhancedKey(r.cfg.Store.ResultsPrefix, batch)
	if err := r.store.Put(ctx, enhancedKey, results.EncodeEnhanced(out), "text/csv"); err != nil {
		return fmt.Errorf("publish enhanced table: %w", err)
	}

	report.RowsClassified += classified
	report.RowsPassthrough += passthrough
	r.log.Info("enhanced table published", "key", enhancedKey, "classified", classified, "passthrough", passthrough)
	r.logf("published %s (classified=%d passthrough=%d)", enhancedKey, classified, passthrough)
	return nil
}

// enrichRow classifies one row's image. Any failure downgrades the row to
// pass-through: count retained, category omitted.
func (r *Runner) enrichRow(ctx context.Context, batch string, row types.PrimaryRow) types.EnhancedRow {
	out := types.EnhancedRow{Name: row.Name, Count: row.Count}

	imgKey := r.cfg.Store.ExtractedPrefix + batch + "/" + row.Name
	img, err := r.store.Get(ctx, imgKey)
	if err != nil {
		r.log.Warn("image fetch failed, row passed through", "key", imgKey, "error", err)
		return out
	}

	cls, err := r.classifyWithRetry(ctx, img, row.Name)
	if err != nil {
		r.log.Warn("classification failed, row passed through", "item", row.Name, "error", err)
		return out
	}

	out.Category = cls.Category
	conf := cls.Confidence
	out.Confidence = &conf
	return out
}

// classifyWithRetry applies the same quota-aware retry policy as the
// counting invoker: exponential backoff on throttling only.
func (r *Runner) classifyWithRetry(ctx context.Context, img []byte, name string) (*types.Classification, error) {
	backoff := r.cfg.Invoker.BackoffBase.Duration
	var lastErr error

	for attempt := 1; attempt <= r.cfg.Invoker.MaxAttempts; attempt++ {
		cls, err := r.classifier.Classify(ctx, img, name)
		if err == nil {
			return cls, nil
		}
		lastErr = err

		if !pkgerrors.Retryable(err) {
			return nil, err
		}
		if attempt == r.cfg.Invoker.MaxAttempts {
			break
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		backoff *= 2
		if backoff > r.cfg.Invoker.BackoffCap.Duration {
			backoff = r.cfg.Invoker.BackoffCap.Duration
		}
	}
	return nil, lastErr
}

func (r *Runner) logf(format string, args ...any) {
	r.mu.Lock()
	r.runLog = append(r.runLog, fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...)))
	r.mu.Unlock()
}

// uploadRunLog publishes the run's log lines for offline inspection. Best
// effort; a failure here never fails the run.
func (r *Runner) uploadRunLog(report *RunReport) {
	if r.cfg.Store.LogsPrefix == "" {
		return
	}
	key := fmt.Sprintf("%sbird-classification-%s.log", r.cfg.Store.LogsPrefix, r.startedA.Format("2006-01-02T15-04-05"))

	r.mu.Lock()
	body := strings.Join(r.runLog, "\n")
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.store.Put(ctx, key, []byte(body), "text/plain"); err != nil {
		r.log.Warn("run log upload failed", "key", key, "error", err)
	}
}
