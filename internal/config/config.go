package config

import "time"

type Duration struct {
	Duration time.Duration
}

type StoreConfig struct {
	// Bucket is the shared results bucket. Required.
	Bucket string `json:"bucket"`

	ResultsPrefix   string `json:"results_prefix,omitempty"`
	ExtractedPrefix string `json:"extracted_prefix,omitempty"`
	LogsPrefix      string `json:"logs_prefix,omitempty"`
	TriggerKey      string `json:"trigger_key,omitempty"`

	// SignedURLTTL bounds the lifetime of retrieval handles handed to
	// discovery clients.
	SignedURLTTL Duration `json:"signed_url_ttl,omitempty"`
}

type InvokerConfig struct {
	// Concurrency is the number of in-flight external calls. The limit exists
	// to respect the counting service's rate limits and the host execution
	// window.
	Concurrency int `json:"concurrency,omitempty"`

	// MaxAttempts is the total attempt ceiling per item (1 + retries).
	MaxAttempts int      `json:"max_attempts,omitempty"`
	BackoffBase Duration `json:"backoff_base,omitempty"`
	BackoffCap  Duration `json:"backoff_cap,omitempty"`
	CallTimeout Duration `json:"call_timeout,omitempty"`
}

type CounterConfig struct {
	// TargetLabel is the localized-object label counted per image.
	TargetLabel string `json:"target_label,omitempty"`
}

type ClassifierConfig struct {
	// Endpoint is the species classification endpoint base URL. Required for
	// the enrichment runner; the upload-path binary never calls it.
	Endpoint string   `json:"endpoint,omitempty"`
	APIKey   string   `json:"api_key,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`

	// Species maps the model's class ids onto category labels, in class-id
	// order.
	Species []string `json:"species,omitempty"`

	// ConfidenceThreshold drops detections below it before picking the best.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
}

type HTTPConfig struct {
	Addr            string   `json:"addr,omitempty"`
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty"`
}

type UnpackConfig struct {
	MaxEntries      int   `json:"max_entries,omitempty"`
	MaxUncompressed int64 `json:"max_uncompressed_bytes,omitempty"`
}

type Config struct {
	Env        string           `json:"env"`
	Store      StoreConfig      `json:"store"`
	Unpack     UnpackConfig     `json:"unpack"`
	Invoker    InvokerConfig    `json:"invoker"`
	Counter    CounterConfig    `json:"counter"`
	Classifier ClassifierConfig `json:"classifier"`
	HTTP       HTTPConfig       `json:"http"`
}
