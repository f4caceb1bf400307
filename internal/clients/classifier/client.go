package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/birdscan-backend/internal/config"
	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/httpx"
	"github.com/yungbote/birdscan-backend/internal/types"
)

// Classifier invokes the external species classification endpoint for one
// image. The endpoint's payload is untyped; it is validated here and nothing
// upstream sees its raw shape.
type Classifier interface {
	Classify(ctx context.Context, img []byte, name string) (*types.Classification, error)
}

type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration

	species   []string
	threshold float64

	httpClient *http.Client
}

func New(cfg config.ClassifierConfig) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("classifier: endpoint required")
	}
	if len(cfg.Species) == 0 {
		return nil, errors.New("classifier: species list required")
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.3
	}

	return &Client{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		timeout:    timeout,
		species:    cfg.Species,
		threshold:  threshold,
		httpClient: &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.ClassifierConfig, httpClient *http.Client) (*Client, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c, nil
}

func (c *Client) Classify(ctx context.Context, img []byte, name string) (*types.Classification, error) {
	if len(img) == 0 {
		return nil, fmt.Errorf("classify %q: empty image: %w", name, pkgerrors.ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/invocations", bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("classify %q: build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/x-image")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || httpx.IsTransientError(err) {
			return nil, fmt.Errorf("classify %q: %v: %w", name, err, pkgerrors.ErrThrottled)
		}
		return nil, fmt.Errorf("classify %q: %w", name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(body), name)
	}

	return c.parsePrediction(body, name)
}

// parsePrediction validates the endpoint's untyped detection payload into a
// Classification. Expected shape:
//
//	{"prediction": [[class_id, confidence, x1, y1, x2, y2], ...]}
//
// The best detection above the confidence threshold wins.
func (c *Client) parsePrediction(body []byte, name string) (*types.Classification, error) {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("classify %q: invalid payload: %w", name, pkgerrors.ErrRejected)
	}
	preds, ok := root["prediction"].([]any)
	if !ok {
		return nil, fmt.Errorf("classify %q: payload missing prediction: %w", name, pkgerrors.ErrRejected)
	}

	bestID := -1
	bestConf := 0.0
	for _, p := range preds {
		det, ok := p.([]any)
		if !ok || len(det) < 2 {
			continue
		}
		id := int(anyToFloat64(det[0], -1))
		conf := anyToFloat64(det[1], 0)
		if id < 0 || id >= len(c.species) {
			continue
		}
		if conf > c.threshold && conf > bestConf {
			bestID, bestConf = id, conf
		}
	}

	if bestID < 0 {
		return nil, fmt.Errorf("classify %q: no detection above threshold: %w", name, pkgerrors.ErrRejected)
	}
	return &types.Classification{Category: c.species[bestID], Confidence: bestConf}, nil
}

func classifyStatus(code int, body, name string) error {
	if httpx.IsRetryableStatus(code) {
		return fmt.Errorf("classify %q: status=%d body=%s: %w", name, code, body, pkgerrors.ErrThrottled)
	}
	return fmt.Errorf("classify %q: status=%d body=%s: %w", name, code, body, pkgerrors.ErrRejected)
}

func anyToFloat64(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return def
	}
}
