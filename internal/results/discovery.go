package results

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yungbote/birdscan-backend/internal/pkg/ctxutil"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/types"
)

// DiscoveryService answers "what result tables exist now" from the store
// alone. It never mutates the store; each call re-lists the results
// namespace, so repeated polls with no intervening publish return identical
// results.
type DiscoveryService interface {
	Discover(ctx context.Context) ([]types.DiscoveredTable, error)
	DiscoverKind(ctx context.Context, kind types.TableKind) ([]types.DiscoveredTable, error)
}

type discoveryService struct {
	log           *logger.Logger
	store         Store
	resultsPrefix string
	urlTTL        time.Duration
}

func NewDiscoveryService(log *logger.Logger, store Store, resultsPrefix string, urlTTL time.Duration) DiscoveryService {
	return &discoveryService{
		log:           log.With("service", "DiscoveryService"),
		store:         store,
		resultsPrefix: resultsPrefix,
		urlTTL:        urlTTL,
	}
}

func (s *discoveryService) Discover(ctx context.Context) ([]types.DiscoveredTable, error) {
	return s.discover(ctx, "")
}

func (s *discoveryService) DiscoverKind(ctx context.Context, kind types.TableKind) ([]types.DiscoveredTable, error) {
	return s.discover(ctx, kind)
}

func (s *discoveryService) discover(ctx context.Context, kind types.TableKind) ([]types.DiscoveredTable, error) {
	ctx = ctxutil.Default(ctx)

	objs, err := s.store.List(ctx, s.resultsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list results namespace: %w", err)
	}

	out := make([]types.DiscoveredTable, 0, len(objs))
	for _, o := range objs {
		k, ok := KindOfKey(o.Key)
		if !ok {
			continue
		}
		if kind != "" && k != kind {
			continue
		}
		t := types.DiscoveredTable{Kind: k, Key: o.Key, LastModified: o.Updated}
		if s.urlTTL > 0 {
			url, err := s.store.SignedURL(o.Key, s.urlTTL)
			if err != nil {
				s.log.Warn("signed URL failed, entry returned without handle", "key", o.Key, "error", err)
			} else {
				t.URL = url
			}
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}
