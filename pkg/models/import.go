package models

import (
	"time"

	"github.com/google/uuid"
)

// Import file statuses. A file moves discovered -> validated -> one of
// imported/skipped/failed.
const (
	ImportStatusImported = "imported"
	ImportStatusSkipped  = "skipped"
	ImportStatusFailed   = "failed"
)

// FileCandidate is a discovered import source file. Discovery never touches
// the database.
type FileCandidate struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	EndpointKind string `json:"endpoint_kind"`
	Format       string `json:"format"` // "json" or "markdown"
}

// ImportRecord is one validated record from an import payload.
type ImportRecord struct {
	Content    string
	Metadata   map[string]string
	Visibility Visibility
}

// ParsedPayload is the result of validating a candidate file.
type ParsedPayload struct {
	EndpointKind string
	Records      []ImportRecord
	// Shape is the detected structural shape: "object", "array" or "wrapped".
	Shape string
}

// FileResult is the per-file outcome of a bulk import run.
type FileResult struct {
	File     string `json:"file"`
	Status   string `json:"status"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// ImportRun is the persisted summary of one bulk import run.
type ImportRun struct {
	ID         uuid.UUID `json:"id"`
	Namespace  string    `json:"namespace"`
	Principal  string    `json:"principal"`
	Files      int       `json:"files"`
	Imported   int       `json:"imported"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Replace    bool      `json:"replace"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
