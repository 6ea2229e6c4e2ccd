package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// SourceFile is an uploaded file as handed in by the intake layer.
type SourceFile struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	Data      []byte `json:"-"`
}

// NewSourceFile copies data so later mutation by the caller cannot leak into the pipeline.
func NewSourceFile(filename, mimeType string, data []byte) SourceFile {
	buf := make([]byte, len(data))
	copy(buf, data)
	return SourceFile{
		Filename:  filename,
		MimeType:  mimeType,
		Extension: NormalizeExtension(filename),
		Size:      int64(len(buf)),
		Data:      buf,
	}
}

func NormalizeExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	return strings.TrimPrefix(ext, ".")
}

type AttemptKind string

const (
	AttemptUnsupported AttemptKind = "unsupported"
	AttemptCorrupt     AttemptKind = "corrupt"
	AttemptEmpty       AttemptKind = "empty"
	AttemptUnavailable AttemptKind = "unavailable"
	AttemptSucceeded   AttemptKind = "succeeded"
)

type ExtractionAttempt struct {
	Strategy string        `json:"strategy"`
	Kind     AttemptKind   `json:"kind"`
	Reason   string        `json:"reason,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

type ExtractionResult struct {
	Text     string              `json:"-"`
	Strategy string              `json:"strategy"`
	Attempts []ExtractionAttempt `json:"attempts"`
}

type DocumentMetadata struct {
	Title    string   `json:"title,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Category string   `json:"category,omitempty"`
	Author   string   `json:"author,omitempty"`
}

type Document struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	FileType        string    `json:"file_type"`
	FileSize        int64     `json:"file_size"`
	UploadDate      time.Time `json:"upload_date"`
	Title           string    `json:"title"`
	Body            string    `json:"-"`
	Summary         string    `json:"summary,omitempty"`
	Tags            []string  `json:"tags"`
	Category        string    `json:"category,omitempty"`
	Author          string    `json:"author,omitempty"`
	Extractor       string    `json:"extractor,omitempty"`
	IndexedBackends []string  `json:"indexed_backends"`
}

// Clone returns a deep copy; registry implementations hand out clones only.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Tags = append([]string(nil), d.Tags...)
	out.IndexedBackends = append([]string(nil), d.IndexedBackends...)
	return &out
}

type BackendFailure struct {
	Backend string `json:"backend"`
	Error   string `json:"error"`
}

type IndexOutcome struct {
	Document  *Document           `json:"document"`
	Succeeded []string            `json:"succeeded"`
	Failed    []BackendFailure    `json:"failed,omitempty"`
	Skipped   []string            `json:"skipped,omitempty"`
	Attempts  []ExtractionAttempt `json:"extraction_attempts"`
}

// Indexed reports whether at least one backend accepted the document.
func (o *IndexOutcome) Indexed() bool {
	return o != nil && len(o.Succeeded) > 0
}

// Partial reports whether some backends accepted the document and some did not.
func (o *IndexOutcome) Partial() bool {
	return o.Indexed() && len(o.Failed) > 0
}

type IndexStage string

const (
	StageExtracting  IndexStage = "extracting"
	StageExtracted   IndexStage = "extracted"
	StageSummarizing IndexStage = "summarizing"
	StageIndexing    IndexStage = "indexing"
	StageDone        IndexStage = "done"
	StageFailed      IndexStage = "failed"
)

type IndexProgress struct {
	Stage   IndexStage `json:"stage"`
	Backend string     `json:"backend,omitempty"`
	Detail  string     `json:"detail,omitempty"`
}

type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	TotalBytes     int64          `json:"total_bytes"`
	PerFileType    map[string]int `json:"per_file_type"`
	PerCategory    map[string]int `json:"per_category"`
	PerBackend     map[string]int `json:"per_backend"`
}

// UploadEvent announces a stored upload waiting for asynchronous indexing.
type UploadEvent struct {
	StorageKey  string           `json:"storage_key"`
	Filename    string           `json:"filename"`
	MimeType    string           `json:"mime_type"`
	Metadata    DocumentMetadata `json:"metadata"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Attempt     int              `json:"attempt,omitempty"`
}

// IndexedEvent announces a document the worker saved to the shared registry.
type IndexedEvent struct {
	DocumentID string    `json:"document_id"`
	Backends   []string  `json:"backends,omitempty"`
	IndexedAt  time.Time `json:"indexed_at"`
}
