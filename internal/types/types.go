package types

import "time"

// ArtifactKind distinguishes a zipped bundle from a directly uploaded image.
type ArtifactKind string

const (
	ArtifactKindArchive ArtifactKind = "archive"
	ArtifactKindImage   ArtifactKind = "image"
)

// UploadArtifact is one uploaded blob as delivered by the upload trigger.
// The key is derived externally from submission time and original name.
type UploadArtifact struct {
	Key  string
	Kind ArtifactKind
	Data []byte
}

// ImageItem is one decoded image extracted from an UploadArtifact. Items are
// consumed exactly once by the invoker and are not persisted.
type ImageItem struct {
	SourceKey string
	Name      string
	Data      []byte
	SizeBytes int64
}

// InferenceOutcome is the validated result of one counting call.
// Err is nil on success; failed items are excluded from the primary table.
type InferenceOutcome struct {
	Name     string
	Count    int
	Err      error
	Attempts int
}

// PrimaryRow is one row of a published primary result table.
type PrimaryRow struct {
	Name  string
	Count int
}

// EnhancedRow is a primary row plus classification output. Category is empty
// when classification failed for the row (pass-through, count retained).
type EnhancedRow struct {
	Name       string
	Count      int
	Category   string
	Confidence *float64
}

// Classification is the validated response of the species classifier for one
// image.
type Classification struct {
	Category   string
	Confidence float64
}

// TableKind tags discovered result tables.
type TableKind string

const (
	TableKindPrimary  TableKind = "primary"
	TableKindEnhanced TableKind = "enhanced"
)

// DiscoveredTable is one entry returned by the discovery service. URL is a
// short-lived retrieval handle; it expires and must not be stored.
type DiscoveredTable struct {
	Kind         TableKind `json:"kind"`
	Key          string    `json:"key"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url,omitempty"`
}
