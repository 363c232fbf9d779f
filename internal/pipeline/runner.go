// Package pipeline wires the document stages end to end: arbitration,
// tree building, chunking, per-chunk analysis, integration. Stage outputs
// are cached under content-addressed keys so a re-run of an unchanged
// document skips the stages that already ran.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/selmo/docstill/internal/analyze"
	"github.com/selmo/docstill/internal/arbiter"
	"github.com/selmo/docstill/internal/cache"
	"github.com/selmo/docstill/internal/chunker"
	"github.com/selmo/docstill/internal/doctree"
	"github.com/selmo/docstill/internal/integrate"
	"github.com/selmo/docstill/internal/parser"
)

// Runner executes the pipeline for one document at a time. All stage
// components are injected; the runner owns only the sequencing and the
// stage caches.
type Runner struct {
	Arbiter      *arbiter.Arbiter
	Orchestrator *analyze.Orchestrator
	Integrator   *integrate.Integrator
	Chunking     chunker.Config
	Cache        cache.Store // stage artifacts; nil disables stage caching
	Log          *slog.Logger
}

// Options tune a single run.
type Options struct {
	ForceReparse  bool // redo arbitration even when cached
	ForceChunking bool // redo chunking even when cached
	TokenBudget   int  // >0 overrides the configured chunk budget
}

// Output bundles every artifact of one run.
type Output struct {
	Run        *Run
	Document   *arbiter.ArbitratedDocument
	Summary    arbiter.Summary
	Tree       *doctree.Tree
	Chunks     []doctree.Chunk
	Results    []analyze.ChunkResult
	Integrated *integrate.Result
}

func (r *Runner) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// Process runs the full pipeline for the document at path. Only total
// parse failure is a hard error; chunk-level analysis failures degrade
// the run to a partial result with explicit coverage counts.
func (r *Runner) Process(ctx context.Context, run *Run, path string, opts Options) (*Output, error) {
	log := r.logger().With("run_id", run.ID, "file", path)
	out := &Output{Run: run}

	// Stage 1: arbitration.
	run.SetStatus(StatusParsing, "parsing")
	adapters, err := parser.ForFile(path)
	if err != nil {
		return nil, r.fail(run, StatusParsing, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, r.fail(run, StatusParsing, fmt.Errorf("read %s: %w", path, err))
	}
	hash := ContentHashHex(data)
	run.SetContentHash(hash)

	akey := arbitrationKey(hash, adapters)
	doc, summary, hit := r.loadArbitration(ctx, akey, opts.ForceReparse)
	if hit {
		log.Info("arbitration cache hit", "parser", doc.ChosenParserID)
	} else {
		d, attempts, err := r.Arbiter.ArbitrateBytes(ctx, path, data, adapters)
		if err != nil {
			return nil, r.fail(run, StatusParsing, err)
		}
		doc = d
		summary = arbiter.NewSummary(d, attempts)
		r.storeArtifact(ctx, akey, arbitrationArtifact{Doc: doc, Summary: summary}, log)
	}
	out.Document = doc
	out.Summary = summary

	// Stage 2: tree and chunks. The tree is rebuilt rather than cached:
	// Build is pure and cheap, and the chunk list pins its offsets.
	run.SetStatus(StatusChunking, "chunking")
	title := run.Title
	if title == "" {
		title = doc.Hints.Title
	}
	if title == "" {
		title = parser.TitleFromFilename(path)
	}
	tree := doctree.Build(doc.Text, title, doc.Hints)
	out.Tree = tree

	ccfg := r.chunkConfig(opts)
	ckey := chunkKey(ContentHashHex([]byte(doc.Text)), ccfg)
	chunks := r.loadChunks(ctx, ckey, opts.ForceChunking)
	if chunks == nil {
		chunks = chunker.ChunkTree(doc.Text, tree, ccfg)
		if data, err := json.Marshal(chunks); err == nil {
			r.putCache(ctx, ckey, data, log)
		}
	} else {
		log.Info("chunk cache hit", "chunks", len(chunks))
	}
	out.Chunks = chunks
	run.SetTotalChunks(len(chunks))
	if len(chunks) == 0 {
		return nil, r.fail(run, StatusChunking, fmt.Errorf("no chunkable content in %s", path))
	}
	log.Info("chunked document", "chunks", len(chunks), "budget", ccfg.TokenBudget)

	// Stage 3: per-chunk analysis. The orchestrator owns retry, worker
	// bounds and its own result cache.
	run.SetStatus(StatusAnalyzing, "analyzing")
	results := r.Orchestrator.Analyze(ctx, tree, chunks)
	out.Results = results

	ok, failed := 0, 0
	for _, res := range results {
		if res.Status == analyze.StatusOK {
			ok++
			continue
		}
		failed++
		run.AddError(fmt.Sprintf("chunk %d: %s", res.ChunkIndex, res.Err))
	}
	run.RecordAnalysis(ok, failed)
	log.Info("analysis complete", "ok", ok, "failed", failed)

	// Stage 4: integration. Pure, provider-free.
	run.SetStatus(StatusIntegrating, "integrating")
	ig := r.Integrator
	if ig == nil {
		ig = &integrate.Integrator{}
	}
	out.Integrated = ig.Integrate(tree, chunks, results)

	switch {
	case failed == 0:
		run.SetStatus(StatusCompleted, "done")
	case ok > 0:
		run.SetStatus(StatusPartial, "done")
	default:
		run.SetStatus(StatusFailed, "analyzing")
	}
	return out, nil
}

// fail records err on the run and marks it failed at the given stage.
func (r *Runner) fail(run *Run, at Status, err error) error {
	run.AddError(err.Error())
	run.SetStatus(StatusFailed, string(at))
	return err
}

func (r *Runner) chunkConfig(opts Options) chunker.Config {
	cfg := r.Chunking
	if opts.TokenBudget > 0 {
		cfg.TokenBudget = opts.TokenBudget
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = chunker.DefaultConfig().TokenBudget
	}
	// Pin effective estimator divisors so the cache key never depends on
	// whether the caller spelled the defaults out.
	def := chunker.DefaultEstimator()
	if cfg.Est.CJKCharsPerToken <= 0 {
		cfg.Est.CJKCharsPerToken = def.CJKCharsPerToken
	}
	if cfg.Est.LatinCharsPerToken <= 0 {
		cfg.Est.LatinCharsPerToken = def.LatinCharsPerToken
	}
	return cfg
}

// arbitrationArtifact is the cached parse-stage output: the chosen
// document plus the scored attempt summary.
type arbitrationArtifact struct {
	Doc     *arbiter.ArbitratedDocument `json:"doc"`
	Summary arbiter.Summary             `json:"summary"`
}

func arbitrationKey(contentHash string, adapters []parser.Adapter) string {
	ids := make([]string, len(adapters))
	for i, ad := range adapters {
		ids[i] = ad.ID()
	}
	return cache.Key("arbitrate", contentHash, strings.Join(ids, ","))
}

func chunkKey(textHash string, cfg chunker.Config) string {
	params := fmt.Sprintf("budget=%d cjk=%g latin=%g force=%t",
		cfg.TokenBudget, cfg.Est.CJKCharsPerToken, cfg.Est.LatinCharsPerToken, cfg.Force)
	return cache.Key("chunks", textHash, params)
}

func (r *Runner) loadArbitration(ctx context.Context, key string, force bool) (*arbiter.ArbitratedDocument, arbiter.Summary, bool) {
	if r.Cache == nil || force {
		return nil, arbiter.Summary{}, false
	}
	data, ok, err := r.Cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, arbiter.Summary{}, false
	}
	var art arbitrationArtifact
	if err := json.Unmarshal(data, &art); err != nil || art.Doc == nil {
		return nil, arbiter.Summary{}, false
	}
	return art.Doc, art.Summary, true
}

func (r *Runner) loadChunks(ctx context.Context, key string, force bool) []doctree.Chunk {
	if r.Cache == nil || force {
		return nil
	}
	data, ok, err := r.Cache.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var chunks []doctree.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil || len(chunks) == 0 {
		return nil
	}
	return chunks
}

func (r *Runner) storeArtifact(ctx context.Context, key string, art arbitrationArtifact, log *slog.Logger) {
	if r.Cache == nil {
		return
	}
	data, err := json.Marshal(art)
	if err != nil {
		return
	}
	r.putCache(ctx, key, data, log)
}

func (r *Runner) putCache(ctx context.Context, key string, data []byte, log *slog.Logger) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.Put(ctx, key, data); err != nil {
		log.Warn("stage cache write failed", "error", err)
	}
}

// WriteArtifacts writes every stage artifact as indented JSON under dir.
func (o *Output) WriteArtifacts(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := []struct {
		name string
		v    any
	}{
		{"run.json", o.Run.Snapshot()},
		{"arbitration.json", o.Summary},
		{"chunks.json", o.Chunks},
		{"chunk_results.json", o.Results},
		{"result.json", o.Integrated},
	}
	for _, f := range files {
		data, err := json.MarshalIndent(f.v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", f.name, err)
		}
		data = append(data, '\n')
		if err := os.WriteFile(filepath.Join(dir, f.name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}
