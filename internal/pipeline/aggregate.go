package pipeline

import (
	"context"
	"fmt"

	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/results"
	"github.com/yungbote/birdscan-backend/internal/types"
)

// Aggregator reduces per-item outcomes into the batch's primary table and
// publishes it. Failed items are counted and logged but never zero-filled
// into the table.
type Aggregator struct {
	log           *logger.Logger
	store         results.Store
	resultsPrefix string
}

func NewAggregator(log *logger.Logger, store results.Store, resultsPrefix string) *Aggregator {
	return &Aggregator{
		log:           log.With("component", "Aggregator"),
		store:         store,
		resultsPrefix: resultsPrefix,
	}
}

// Aggregate keeps successful outcomes as rows, in arrival order.
func (a *Aggregator) Aggregate(outcomes []types.InferenceOutcome) []types.PrimaryRow {
	rows := make([]types.PrimaryRow, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			a.log.Warn("outcome excluded from table", "item", o.Name, "error", o.Err)
			continue
		}
		rows = append(rows, types.PrimaryRow{Name: o.Name, Count: o.Count})
	}
	a.log.Info("outcomes aggregated", "rows", len(rows), "failed", failed)
	return rows
}

// Publish writes the table under the batch's derived key. A batch where
// every item failed still publishes the header-only table, so readers can
// tell "processed, nothing usable" from "never processed".
func (a *Aggregator) Publish(ctx context.Context, batch string, rows []types.PrimaryRow) (string, error) {
	key := results.PrimaryKey(a.resultsPrefix, batch)
	if err := a.store.Put(ctx, key, results.EncodePrimary(rows), "text/csv"); err != nil {
		return "", fmt.Errorf("publish primary table %q: %w", key, err)
	}
	a.log.Info("primary table published", "key", key, "rows", len(rows))
	return key, nil
}
