package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/types"
)

type stubDiscovery struct {
	tables []types.DiscoveredTable
	kinds  []types.TableKind
}

func (s *stubDiscovery) Discover(ctx context.Context) ([]types.DiscoveredTable, error) {
	s.kinds = append(s.kinds, "")
	return s.tables, nil
}

func (s *stubDiscovery) DiscoverKind(ctx context.Context, kind types.TableKind) ([]types.DiscoveredTable, error) {
	s.kinds = append(s.kinds, kind)
	out := []types.DiscoveredTable{}
	for _, t := range s.tables {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out, nil
}

func newTestRouter(disc *stubDiscovery) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{Log: logger.NewNop(), Discovery: disc})
}

func TestHealthcheck(t *testing.T) {
	router := newTestRouter(&stubDiscovery{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestListResultsAll(t *testing.T) {
	disc := &stubDiscovery{tables: []types.DiscoveredTable{
		{Kind: types.TableKindPrimary, Key: "public/results/bird-results-a.csv", LastModified: time.Now()},
		{Kind: types.TableKindEnhanced, Key: "public/results/enhanced-bird-results-a.csv", LastModified: time.Now()},
	}}
	router := newTestRouter(disc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Tables []types.DiscoveredTable `json:"tables"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tables) != 2 {
		t.Fatalf("tables=%v", resp.Tables)
	}
}

func TestListResultsKindFilter(t *testing.T) {
	disc := &stubDiscovery{tables: []types.DiscoveredTable{
		{Kind: types.TableKindPrimary, Key: "public/results/bird-results-a.csv"},
		{Kind: types.TableKindEnhanced, Key: "public/results/enhanced-bird-results-a.csv"},
	}}
	router := newTestRouter(disc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/results?kind=enhanced", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Tables []types.DiscoveredTable `json:"tables"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tables) != 1 || resp.Tables[0].Kind != types.TableKindEnhanced {
		t.Fatalf("tables=%v", resp.Tables)
	}
}

func TestListResultsRejectsUnknownKind(t *testing.T) {
	router := newTestRouter(&stubDiscovery{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/results?kind=bogus", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestProcessRouteAbsentWithoutPipeline(t *testing.T) {
	router := newTestRouter(&stubDiscovery{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader(`{"key":"x.zip"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}
