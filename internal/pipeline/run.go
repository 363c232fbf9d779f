package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the state of a pipeline run.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusParsing     Status = "parsing"
	StatusChunking    Status = "chunking"
	StatusAnalyzing   Status = "analyzing"
	StatusIntegrating Status = "integrating"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusPartial     Status = "partial"
)

// Run tracks one document's trip through the pipeline. Request-scoped:
// created per invocation, never shared between documents.
type Run struct {
	mu sync.Mutex

	ID         string `json:"run_id"`
	SourceFile string `json:"source_file"`
	Title      string `json:"title,omitempty"`

	Status Status `json:"status"`
	Stage  string `json:"stage"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Progress tracks per-stage counters.
type Progress struct {
	TotalChunks    int      `json:"total_chunks"`
	ChunksAnalyzed int      `json:"chunks_analyzed"`
	ChunksOK       int      `json:"chunks_ok"`
	ChunksFailed   int      `json:"chunks_failed"`
	Errors         []string `json:"errors"`
}

// NewRun creates a queued run for one source file.
func NewRun(sourceFile, title string) *Run {
	now := time.Now()
	return &Run{
		ID:         uuid.NewString(),
		SourceFile: sourceFile,
		Title:      title,
		Status:     StatusQueued,
		Stage:      "queued",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SetStatus updates run status atomically.
func (r *Run) SetStatus(status Status, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	r.Stage = stage
	r.UpdatedAt = time.Now()
}

// AddError records an error.
func (r *Run) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.Errors = append(r.Progress.Errors, err)
	r.UpdatedAt = time.Now()
}

// SetContentHash records the source content hash.
func (r *Run) SetContentHash(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ContentHash = hash
	r.UpdatedAt = time.Now()
}

// SetTotalChunks records total chunk count.
func (r *Run) SetTotalChunks(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.TotalChunks = n
	r.UpdatedAt = time.Now()
}

// RecordAnalysis accumulates per-chunk analysis outcomes.
func (r *Run) RecordAnalysis(ok, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.ChunksAnalyzed += ok + failed
	r.Progress.ChunksOK += ok
	r.Progress.ChunksFailed += failed
	r.UpdatedAt = time.Now()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID          string    `json:"run_id"`
	SourceFile  string    `json:"source_file"`
	Title       string    `json:"title,omitempty"`
	Status      Status    `json:"status"`
	Stage       string    `json:"stage"`
	Progress    Progress  `json:"progress"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]string, len(r.Progress.Errors))
	copy(errs, r.Progress.Errors)
	return RunSnapshot{
		ID:          r.ID,
		SourceFile:  r.SourceFile,
		Title:       r.Title,
		Status:      r.Status,
		Stage:       r.Stage,
		ContentHash: r.ContentHash,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Progress: Progress{
			TotalChunks:    r.Progress.TotalChunks,
			ChunksAnalyzed: r.Progress.ChunksAnalyzed,
			ChunksOK:       r.Progress.ChunksOK,
			ChunksFailed:   r.Progress.ChunksFailed,
			Errors:         errs,
		},
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
