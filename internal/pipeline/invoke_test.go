package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/birdscan-backend/internal/config"
	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/types"
)

// stubCounter scripts per-item behavior by name.
type stubCounter struct {
	mu       sync.Mutex
	attempts map[string]int
	fn       func(name string, attempt int) (int, error)
}

func (c *stubCounter) Count(ctx context.Context, img []byte, name string) (int, error) {
	c.mu.Lock()
	c.attempts[name]++
	attempt := c.attempts[name]
	c.mu.Unlock()
	return c.fn(name, attempt)
}

func (c *stubCounter) Close() error { return nil }

func fastInvokerConfig() config.InvokerConfig {
	return config.InvokerConfig{
		Concurrency: 4,
		MaxAttempts: 3,
		BackoffBase: config.Duration{Duration: time.Millisecond},
		BackoffCap:  config.Duration{Duration: 4 * time.Millisecond},
	}
}

func items(names ...string) []types.ImageItem {
	out := make([]types.ImageItem, 0, len(names))
	for _, n := range names {
		out = append(out, types.ImageItem{Name: n, Data: []byte("img-" + n)})
	}
	return out
}

func outcomeByName(t *testing.T, outcomes []types.InferenceOutcome, name string) types.InferenceOutcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Name == name {
			return o
		}
	}
	t.Fatalf("no outcome for %q in %v", name, outcomes)
	return types.InferenceOutcome{}
}

func TestInvokeThrottleThenSuccess(t *testing.T) {
	const r = 2
	counter := &stubCounter{attempts: map[string]int{}, fn: func(name string, attempt int) (int, error) {
		if attempt <= r {
			return 0, fmt.Errorf("quota: %w", pkgerrors.ErrThrottled)
		}
		return 7, nil
	}}

	inv := NewInvoker(logger.NewNop(), counter, fastInvokerConfig())
	outcomes := inv.Invoke(context.Background(), items("a.jpg"))

	o := outcomeByName(t, outcomes, "a.jpg")
	if o.Err != nil {
		t.Fatalf("err=%v", o.Err)
	}
	if o.Count != 7 {
		t.Fatalf("count=%d", o.Count)
	}
	if o.Attempts != r+1 {
		t.Fatalf("attempts=%d, want %d", o.Attempts, r+1)
	}
}

func TestInvokeThrottleExhaustsCeiling(t *testing.T) {
	counter := &stubCounter{attempts: map[string]int{}, fn: func(name string, attempt int) (int, error) {
		return 0, fmt.Errorf("quota: %w", pkgerrors.ErrThrottled)
	}}

	inv := NewInvoker(logger.NewNop(), counter, fastInvokerConfig())
	outcomes := inv.Invoke(context.Background(), items("a.jpg"))

	o := outcomeByName(t, outcomes, "a.jpg")
	if !errors.Is(o.Err, pkgerrors.ErrThrottled) {
		t.Fatalf("err=%v, want throttled", o.Err)
	}
	if o.Attempts != 3 {
		t.Fatalf("attempts=%d, want 3", o.Attempts)
	}
}

func TestInvokeTerminalRejectionNotRetried(t *testing.T) {
	counter := &stubCounter{attempts: map[string]int{}, fn: func(name string, attempt int) (int, error) {
		return 0, fmt.Errorf("bad image: %w", pkgerrors.ErrRejected)
	}}

	inv := NewInvoker(logger.NewNop(), counter, fastInvokerConfig())
	outcomes := inv.Invoke(context.Background(), items("a.jpg"))

	o := outcomeByName(t, outcomes, "a.jpg")
	if !errors.Is(o.Err, pkgerrors.ErrRejected) {
		t.Fatalf("err=%v, want rejected", o.Err)
	}
	if counter.attempts["a.jpg"] != 1 {
		t.Fatalf("attempts=%d, want 1 (no retry)", counter.attempts["a.jpg"])
	}
}

func TestInvokePerItemIsolation(t *testing.T) {
	counter := &stubCounter{attempts: map[string]int{}, fn: func(name string, attempt int) (int, error) {
		if name == "bad.jpg" {
			return 0, fmt.Errorf("bad image: %w", pkgerrors.ErrRejected)
		}
		return 3, nil
	}}

	inv := NewInvoker(logger.NewNop(), counter, fastInvokerConfig())
	outcomes := inv.Invoke(context.Background(), items("a.jpg", "bad.jpg", "b.png"))

	if len(outcomes) != 3 {
		t.Fatalf("outcomes=%d, want 3", len(outcomes))
	}
	if o := outcomeByName(t, outcomes, "a.jpg"); o.Err != nil || o.Count != 3 {
		t.Fatalf("a.jpg outcome=%+v", o)
	}
	if o := outcomeByName(t, outcomes, "b.png"); o.Err != nil || o.Count != 3 {
		t.Fatalf("b.png outcome=%+v", o)
	}
	if o := outcomeByName(t, outcomes, "bad.jpg"); o.Err == nil {
		t.Fatalf("bad.jpg unexpectedly succeeded")
	}
}

func TestInvokeExpiredDeadlineSynthesizesNotAttempted(t *testing.T) {
	counter := &stubCounter{attempts: map[string]int{}, fn: func(name string, attempt int) (int, error) {
		return 1, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := NewInvoker(logger.NewNop(), counter, fastInvokerConfig())
	outcomes := inv.Invoke(ctx, items("a.jpg", "b.jpg"))

	if len(outcomes) != 2 {
		t.Fatalf("outcomes=%d, want one per item", len(outcomes))
	}
	for _, o := range outcomes {
		if !errors.Is(o.Err, pkgerrors.ErrNotAttempted) {
			t.Fatalf("outcome %+v, want not-attempted", o)
		}
	}
}

func TestInvokeBoundedConcurrency(t *testing.T) {
	var inFlight, peak int32
	counter := &stubCounter{attempts: map[string]int{}, fn: func(name string, attempt int) (int, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 1, nil
	}}

	cfg := fastInvokerConfig()
	cfg.Concurrency = 2
	inv := NewInvoker(logger.NewNop(), counter, cfg)
	inv.Invoke(context.Background(), items("a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"))

	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("peak in-flight=%d, want <=2", p)
	}
}
