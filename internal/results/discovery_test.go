package results

import (
	"context"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/types"
)

type fakeStore struct {
	objects   []ObjectInfo
	listErr   error
	signErr   error
	signCalls int
}

func (f *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return fmt.Errorf("put not supported")
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, pkgerrors.ErrNotFound
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.objects, nil
}

func (f *fakeStore) SignedURL(key string, ttl time.Duration) (string, error) {
	f.signCalls++
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://signed.example/" + key, nil
}

func at(min int) time.Time {
	return time.Date(2026, 8, 28, 10, min, 0, 0, time.UTC)
}

func TestDiscoverFiltersAndOrders(t *testing.T) {
	store := &fakeStore{objects: []ObjectInfo{
		{Key: "public/results/bird-results-old.csv", Updated: at(1)},
		{Key: "public/results/enhanced-bird-results-old.csv", Updated: at(2)},
		{Key: "public/results/bird-results-new.csv", Updated: at(9)},
		{Key: "public/results/scratch.txt", Updated: at(5)},
		{Key: "public/results/manifest.json", Updated: at(5)},
	}}

	svc := NewDiscoveryService(logger.NewNop(), store, "public/results/", time.Hour)
	tables, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tables) != 3 {
		t.Fatalf("tables=%v, want 3", tables)
	}
	// Newest first.
	if tables[0].Key != "public/results/bird-results-new.csv" {
		t.Fatalf("tables[0]=%+v", tables[0])
	}
	if tables[2].Key != "public/results/bird-results-old.csv" {
		t.Fatalf("tables[2]=%+v", tables[2])
	}
	for _, tb := range tables {
		if tb.URL == "" {
			t.Fatalf("table %q missing access URL", tb.Key)
		}
	}
}

func TestDiscoverKind(t *testing.T) {
	store := &fakeStore{objects: []ObjectInfo{
		{Key: "public/results/bird-results-a.csv", Updated: at(1)},
		{Key: "public/results/enhanced-bird-results-a.csv", Updated: at(2)},
	}}

	svc := NewDiscoveryService(logger.NewNop(), store, "public/results/", 0)
	tables, err := svc.DiscoverKind(context.Background(), types.TableKindEnhanced)
	if err != nil {
		t.Fatalf("DiscoverKind: %v", err)
	}
	if len(tables) != 1 || tables[0].Kind != types.TableKindEnhanced {
		t.Fatalf("tables=%v", tables)
	}
}

func TestDiscoverEmptyNamespace(t *testing.T) {
	svc := NewDiscoveryService(logger.NewNop(), &fakeStore{}, "public/results/", time.Hour)
	tables, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tables) != 0 {
		t.Fatalf("tables=%v, want none", tables)
	}
}

// Discovery never mutates the store, so polling twice with no publish in
// between yields the same answer.
func TestDiscoverIsIdempotent(t *testing.T) {
	store := &fakeStore{objects: []ObjectInfo{
		{Key: "public/results/bird-results-a.csv", Updated: at(1)},
	}}
	svc := NewDiscoveryService(logger.NewNop(), store, "public/results/", 0)

	first, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("first Discover: %v", err)
	}
	second, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("second Discover: %v", err)
	}
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Fatalf("polls disagree: %v vs %v", first, second)
	}
}

func TestDiscoverSigningFailureOmitsURL(t *testing.T) {
	store := &fakeStore{
		objects: []ObjectInfo{{Key: "public/results/bird-results-a.csv", Updated: at(1)}},
		signErr: fmt.Errorf("no signing key"),
	}
	svc := NewDiscoveryService(logger.NewNop(), store, "public/results/", time.Hour)

	tables, err := svc.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tables) != 1 || tables[0].URL != "" {
		t.Fatalf("tables=%v, want entry without URL", tables)
	}
}
