package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/birdscan-backend/internal/clients/gcp"
	"github.com/yungbote/birdscan-backend/internal/config"
	"github.com/yungbote/birdscan-backend/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/results"
	"github.com/yungbote/birdscan-backend/internal/types"
)

// BatchResult summarizes one processed upload.
type BatchResult struct {
	Batch      string
	TableKey   string
	Rows       int
	Failed     int
	TotalCount int
}

// TriggerArtifact is published after every primary table so the enrichment
// runner's host can observe that new work exists. Delivery is at-least-once;
// the runner re-lists the results namespace on startup regardless.
type TriggerArtifact struct {
	TableKey  string    `json:"table_key"`
	Batch     string    `json:"batch"`
	Timestamp time.Time `json:"timestamp"`
}

// Service is the upload-path pipeline: download, unpack, fan out to the
// counting service, aggregate, publish. Stateless between batches; the store
// is the only shared resource.
type Service struct {
	log   *logger.Logger
	store results.Store

	unpacker   *Unpacker
	invoker    *Invoker
	aggregator *Aggregator

	storeCfg config.StoreConfig
}

func NewService(log *logger.Logger, store results.Store, counter gcp.Counter, cfg *config.Config) *Service {
	return &Service{
		log:        log.With("component", "Pipeline"),
		store:      store,
		unpacker:   NewUnpacker(log, cfg.Unpack),
		invoker:    NewInvoker(log, counter, cfg.Invoker),
		aggregator: NewAggregator(log, store, cfg.Store.ResultsPrefix),
		storeCfg:   cfg.Store,
	}
}

// Process runs one delivered upload through the full pipeline. A duplicate
// delivery of the same key is safe: the batch discriminator makes the second
// run publish a second, distinctly-keyed table.
func (s *Service) Process(ctx context.Context, key string, kind types.ArtifactKind) (*BatchResult, error) {
	ctx = ctxutil.Default(ctx)
	log := s.log.With("key", key, "kind", string(kind))

	data, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download artifact %q: %w", key, err)
	}

	artifact := types.UploadArtifact{Key: key, Kind: kind, Data: data}
	items, err := s.unpacker.Unpack(artifact)
	if err != nil {
		// Whole-batch fatal: nothing is published.
		return nil, err
	}

	batch := deriveBatch(key)
	log = log.With("batch", batch)
	log.Info("batch started", "items", len(items))

	s.uploadExtracted(ctx, log, batch, items)

	outcomes := s.invoker.Invoke(ctx, items)
	rows := s.aggregator.Aggregate(outcomes)
	tableKey, err := s.aggregator.Publish(ctx, batch, rows)
	if err != nil {
		return nil, err
	}

	if err := s.publishTrigger(ctx, tableKey, batch); err != nil {
		// The runner re-discovers un-enriched tables on its own startup, so a
		// lost trigger delays enrichment rather than losing it.
		log.Warn("enrichment trigger publish failed", "error", err)
	}

	res := &BatchResult{Batch: batch, TableKey: tableKey, Rows: len(rows)}
	for _, r := range rows {
		res.TotalCount += r.Count
	}
	res.Failed = len(outcomes) - len(rows)
	log.Info("batch complete", "rows", res.Rows, "failed", res.Failed, "total_count", res.TotalCount)
	return res, nil
}

// InferKind maps an upload key onto its artifact kind. Unsupported uploads
// return false and are skipped by the entry point.
func InferKind(key string) (types.ArtifactKind, bool) {
	k := strings.ToLower(key)
	switch {
	case strings.HasSuffix(k, ".zip"):
		return types.ArtifactKindArchive, true
	case IsImageName(k):
		return types.ArtifactKindImage, true
	default:
		return "", false
	}
}

// uploadExtracted republishes each item under the batch's extraction prefix.
// The enrichment runner reads images from there. An individual upload failure
// downgrades that row to pass-through at enrichment time; it does not abort
// the batch.
func (s *Service) uploadExtracted(ctx context.Context, log *logger.Logger, batch string, items []types.ImageItem) {
	for _, item := range items {
		imgKey := s.storeCfg.ExtractedPrefix + batch + "/" + item.Name
		if err := s.store.Put(ctx, imgKey, item.Data, gcp.ContentTypeForKey(item.Name)); err != nil {
			log.Warn("extracted image upload failed", "item", item.Name, "error", err)
		}
	}
}

func (s *Service) publishTrigger(ctx context.Context, tableKey, batch string) error {
	if s.storeCfg.TriggerKey == "" {
		return nil
	}
	b, err := json.Marshal(TriggerArtifact{
		TableKey:  tableKey,
		Batch:     batch,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.store.Put(ctx, s.storeCfg.TriggerKey, b, "application/json")
}

// deriveBatch builds the collision-free discriminator embedded in every key
// the batch publishes: sanitized source name, UTC timestamp, uuid fragment.
func deriveBatch(key string) string {
	name := SanitizeName(baseName(key))
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	ts := time.Now().UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("%s-%s-%s", name, ts, uuid.NewString()[:8])
}

// IsCorruptArchive reports whether err is the whole-batch-fatal archive
// condition, for callers that need to distinguish it from transient errors.
func IsCorruptArchive(err error) bool {
	return errors.Is(err, pkgerrors.ErrCorruptArchive)
}
