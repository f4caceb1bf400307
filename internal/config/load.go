package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/birdscan-backend/internal/platform/envutil"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if strings.TrimSpace(u) == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(u)
		if err != nil {
			return err
		}
		d.Duration = dd
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		Store: StoreConfig{
			ResultsPrefix:   "public/results/",
			ExtractedPrefix: "public/extracted/",
			LogsPrefix:      "logs/",
			TriggerKey:      "triggers/run-classification.json",
			SignedURLTTL:    Duration{Duration: 15 * time.Minute},
		},
		Unpack: UnpackConfig{
			MaxEntries:      10000,
			MaxUncompressed: 50 << 30,
		},
		Invoker: InvokerConfig{
			Concurrency: 4,
			MaxAttempts: 3,
			BackoffBase: Duration{Duration: 750 * time.Millisecond},
			BackoffCap:  Duration{Duration: 10 * time.Second},
			CallTimeout: Duration{Duration: 60 * time.Second},
		},
		Counter: CounterConfig{TargetLabel: "Bird"},
		Classifier: ClassifierConfig{
			Timeout:             Duration{Duration: 60 * time.Second},
			Species:             []string{"pigeon", "dove", "starling", "sparrow", "blackbird", "crow"},
			ConfidenceThreshold: 0.3,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration{Duration: 15 * time.Second},
		},
	}
}

// Load layers defaults, then an optional JSON config file, then env
// overrides, and validates the result.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("BIRDSCAN_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.json")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	cfg.Env = envutil.Str("LOG_MODE", cfg.Env)
	cfg.Store.Bucket = envutil.Str("BIRDSCAN_BUCKET", cfg.Store.Bucket)
	cfg.HTTP.Addr = envutil.Str("BIRDSCAN_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Classifier.Endpoint = envutil.Str("CLASSIFIER_ENDPOINT", cfg.Classifier.Endpoint)
	cfg.Classifier.APIKey = envutil.Str("CLASSIFIER_API_KEY", cfg.Classifier.APIKey)
	if n := envutil.Int("WORKER_CONCURRENCY", cfg.Invoker.Concurrency); n > 0 {
		cfg.Invoker.Concurrency = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env == "" {
		c.Env = "development"
	}
	if strings.TrimSpace(c.Store.Bucket) == "" {
		return errors.New("store.bucket is required (or set BIRDSCAN_BUCKET)")
	}
	for _, p := range []*string{&c.Store.ResultsPrefix, &c.Store.ExtractedPrefix, &c.Store.LogsPrefix} {
		*p = strings.TrimSpace(*p)
		if *p != "" && !strings.HasSuffix(*p, "/") {
			*p += "/"
		}
	}
	if c.Store.ResultsPrefix == "" {
		return errors.New("store.results_prefix is required")
	}
	if c.Invoker.Concurrency < 1 {
		c.Invoker.Concurrency = 1
	}
	if c.Invoker.MaxAttempts < 1 {
		c.Invoker.MaxAttempts = 1
	}
	if c.Invoker.BackoffBase.Duration <= 0 {
		c.Invoker.BackoffBase = Duration{Duration: 750 * time.Millisecond}
	}
	if c.Invoker.BackoffCap.Duration < c.Invoker.BackoffBase.Duration {
		c.Invoker.BackoffCap = Duration{Duration: 10 * time.Second}
	}
	if strings.TrimSpace(c.Counter.TargetLabel) == "" {
		c.Counter.TargetLabel = "Bird"
	}
	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("classifier.confidence_threshold out of range: %v", c.Classifier.ConfidenceThreshold)
	}
	if c.Classifier.Endpoint != "" {
		c.Classifier.Endpoint = strings.TrimRight(strings.TrimSpace(c.Classifier.Endpoint), "/")
		if len(c.Classifier.Species) == 0 {
			return errors.New("classifier.species must be set when classifier.endpoint is")
		}
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = ":8080"
	}
	return nil
}
