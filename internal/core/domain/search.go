package domain

import (
	"strings"
	"time"
)

type Capability uint8

const (
	CapabilityKeyword Capability = 1 << iota
	CapabilitySemantic
	CapabilityVector
)

func (c Capability) Has(other Capability) bool {
	return c&other != 0
}

func (c Capability) String() string {
	parts := make([]string, 0, 3)
	if c.Has(CapabilityKeyword) {
		parts = append(parts, "keyword")
	}
	if c.Has(CapabilitySemantic) {
		parts = append(parts, "semantic")
	}
	if c.Has(CapabilityVector) {
		parts = append(parts, "vector")
	}
	return strings.Join(parts, "|")
}

// ParseCapabilities accepts names such as "keyword", "semantic", "vector".
func ParseCapabilities(names []string) Capability {
	var c Capability
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "keyword", "fulltext", "full_text":
			c |= CapabilityKeyword
		case "semantic", "qa", "rag":
			c |= CapabilitySemantic
		case "vector":
			c |= CapabilityVector
		}
	}
	return c
}

type ScaleKind string

const (
	ScaleUnit       ScaleKind = "unit"       // 0..1
	ScalePercent    ScaleKind = "percent"    // 0..100
	ScaleBoolean    ScaleKind = "boolean"    // any hit is a match
	ScaleSaturating ScaleKind = "saturating" // unbounded, s/(s+K)
	ScaleRange      ScaleKind = "range"      // 0..Max
)

// ScaleSpec declares how a backend's native score maps onto 0..100.
type ScaleSpec struct {
	Kind ScaleKind `json:"kind" yaml:"kind"`
	Max  float64   `json:"max,omitempty" yaml:"max,omitempty"`
	K    float64   `json:"k,omitempty" yaml:"k,omitempty"`
}

type BackendDescriptor struct {
	Name         string        `json:"name"`
	Capabilities Capability    `json:"capabilities"`
	Configured   bool          `json:"configured"`
	Scale        ScaleSpec     `json:"scale"`
	Timeout      time.Duration `json:"timeout"`
}

type QueryMode string

const (
	ModeSearch   QueryMode = "search"
	ModeQuestion QueryMode = "question"
)

type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortDate      SortKey = "date"
	SortTitle     SortKey = "title"
	SortSize      SortKey = "size"
)

type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

type SearchFilters struct {
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
	FileTypes []string   `json:"file_types,omitempty"`
	MinSize   int64      `json:"min_size,omitempty"`
	MaxSize   int64      `json:"max_size,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Authors   []string   `json:"authors,omitempty"`
}

type QuerySpec struct {
	Text      string        `json:"text"`
	Mode      QueryMode     `json:"mode,omitempty"`
	Filters   SearchFilters `json:"filters"`
	SortKey   SortKey       `json:"sort_key,omitempty"`
	SortOrder SortOrder     `json:"sort_order,omitempty"`
	Tab       string        `json:"tab,omitempty"`
	Limit     int           `json:"limit,omitempty"`
}

type BackendResult struct {
	DocumentID string   `json:"document_id"`
	Title      string   `json:"title,omitempty"`
	Snippet    string   `json:"snippet,omitempty"`
	RawScore   float64  `json:"raw_score"`
	Backend    string   `json:"backend"`
	Highlights []string `json:"highlights,omitempty"`
}

type ResultMetadata struct {
	Filename   string    `json:"filename,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	UploadDate time.Time `json:"upload_date"`
	Author     string    `json:"author,omitempty"`
	Category   string    `json:"category,omitempty"`
}

type FusedResult struct {
	DocumentID string         `json:"document_id"`
	Title      string         `json:"title"`
	Excerpt    string         `json:"excerpt,omitempty"`
	Score      float64        `json:"score"`
	Backends   []string       `json:"backends"`
	Tags       []string       `json:"tags,omitempty"`
	Highlights []string       `json:"highlights,omitempty"`
	Metadata   ResultMetadata `json:"metadata"`
}

type BackendReport struct {
	Name        string        `json:"name"`
	Latency     time.Duration `json:"latency"`
	ResultCount int           `json:"result_count"`
	Degraded    bool          `json:"degraded"`
	Error       string        `json:"error,omitempty"`
}

type FacetCounts struct {
	FileTypes  map[string]int `json:"file_types"`
	Categories map[string]int `json:"categories"`
	Tags       map[string]int `json:"tags"`
	Authors    map[string]int `json:"authors"`
}

type SearchResponse struct {
	QueryID          uint64          `json:"query_id"`
	Query            QuerySpec       `json:"query"`
	Results          []FusedResult   `json:"results"`
	TotalLatency     time.Duration   `json:"total_latency"`
	Backends         []BackendReport `json:"backends"`
	DegradedBackends []string        `json:"degraded_backends"`
	Advisory         string          `json:"advisory,omitempty"`
	Facets           FacetCounts     `json:"facets"`
}
