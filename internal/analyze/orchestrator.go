package analyze

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/selmo/docstill/internal/cache"
	"github.com/selmo/docstill/internal/doctree"
)

const (
	DefaultWorkers          = 4
	DefaultAttempts         = 3
	DefaultBaseDelay        = 1 * time.Second
	DefaultMaxDelay         = 30 * time.Second
	DefaultCallTimeout      = 120 * time.Second
	DefaultMaxTokens        = 4096
	DefaultRelaxedMaxTokens = 8192
)

// OrchestratorConfig configures the analysis stage. Zero values fall back
// to the defaults above.
type OrchestratorConfig struct {
	Provider Provider

	Workers     int
	Attempts    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration

	MaxTokens        int // completion budget per call
	RelaxedMaxTokens int // budget for chunks flagged oversized
	Temperature      float64
	System           string

	Cache cache.Store // optional per-chunk result cache
	Stats *CallStats  // optional latency tracking
	Log   *slog.Logger
}

// Orchestrator fans per-chunk analysis calls out to a provider with bounded
// concurrency. Chunk failures are isolated: one chunk exhausting its retries
// never aborts the batch.
type Orchestrator struct {
	provider Provider

	workers     int
	attempts    uint
	baseDelay   time.Duration
	maxDelay    time.Duration
	callTimeout time.Duration

	maxTokens        int
	relaxedMaxTokens int
	temperature      float64
	system           string

	cache cache.Store
	stats *CallStats
	log   *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RelaxedMaxTokens <= 0 {
		cfg.RelaxedMaxTokens = DefaultRelaxedMaxTokens
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Orchestrator{
		provider:         cfg.Provider,
		workers:          cfg.Workers,
		attempts:         uint(cfg.Attempts),
		baseDelay:        cfg.BaseDelay,
		maxDelay:         cfg.MaxDelay,
		callTimeout:      cfg.CallTimeout,
		maxTokens:        cfg.MaxTokens,
		relaxedMaxTokens: cfg.RelaxedMaxTokens,
		temperature:      cfg.Temperature,
		system:           cfg.System,
		cache:            cfg.Cache,
		stats:            cfg.Stats,
		log:              cfg.Log,
	}
}

// Analyze runs one provider call per chunk and returns results positionally:
// results[i].ChunkIndex == chunks[i].Index regardless of completion order.
// A failed chunk yields a failed result, never a missing one.
//
// Once ctx is cancelled no new chunk is dispatched. Calls already in flight
// run to completion on a detached per-call timeout and their results are
// kept, so partial output stays usable downstream.
func (o *Orchestrator) Analyze(ctx context.Context, tree *doctree.Tree, chunks []doctree.Chunk) []ChunkResult {
	if len(chunks) == 0 {
		return nil
	}

	docTitle := ""
	if tree != nil && tree.Root != nil {
		docTitle = tree.Root.Title
	}

	results := make([]ChunkResult, len(chunks))
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup

	cancelled := -1
dispatch:
	for i := range chunks {
		if ctx.Err() != nil {
			cancelled = i
			break dispatch
		}
		select {
		case <-ctx.Done():
			cancelled = i
			break dispatch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.analyzeChunk(ctx, docTitle, tree, chunks[i])
		}(i)
	}
	if cancelled >= 0 {
		o.log.Warn("analysis cancelled", "dispatched", cancelled, "total", len(chunks))
		for j := cancelled; j < len(chunks); j++ {
			results[j] = failedResult(chunks[j].Index, 0, ctx.Err())
		}
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) analyzeChunk(ctx context.Context, docTitle string, tree *doctree.Tree, chunk doctree.Chunk) ChunkResult {
	prompt := BuildChunkPrompt(docTitle, chunkBreadcrumb(tree, chunk), chunk.Text)

	maxTokens := o.maxTokens
	if chunk.Oversized {
		maxTokens = o.relaxedMaxTokens
	}

	// The prompt embeds the instruction block, title, breadcrumb and chunk
	// text; provider name embeds the model. MaxTokens changes the response,
	// so it keys too.
	key := cache.Key("analyze", o.provider.Name(), strconv.Itoa(maxTokens), prompt)
	if o.cache != nil {
		if data, ok, err := o.cache.Get(ctx, key); err == nil && ok {
			var cached ChunkResult
			if err := json.Unmarshal(data, &cached); err == nil && cached.Status == StatusOK {
				cached.ChunkIndex = chunk.Index
				return cached
			}
		}
	}

	attempts := 0
	var payload *chunkPayload
	err := retry.Do(
		func() error {
			attempts++
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.callTimeout)
			defer cancel()

			start := time.Now()
			raw, err := o.provider.Complete(callCtx, CompleteRequest{
				System:      o.system,
				Prompt:      prompt,
				MaxTokens:   maxTokens,
				Temperature: o.temperature,
			})
			if o.stats != nil {
				o.stats.Record(time.Since(start).Milliseconds())
			}
			if err != nil {
				return err
			}

			p, err := parsePayload(raw)
			if err != nil {
				return err
			}
			payload = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(o.maxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsTransient),
		retry.OnRetry(func(n uint, err error) {
			o.log.Warn("transient analysis error", "chunk", chunk.Index, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		o.log.Error("chunk analysis failed", "chunk", chunk.Index, "attempts", attempts, "error", err)
		return failedResult(chunk.Index, attempts, err)
	}

	res := ChunkResult{
		ChunkIndex:     chunk.Index,
		Keywords:       payload.Keywords,
		Summary:        payload.Summary,
		StructureNotes: payload.StructureNotes,
		Entities:       payload.Entities,
		Relations:      payload.Relations,
		Status:         StatusOK,
		Attempts:       attempts,
	}
	if o.cache != nil {
		if data, err := json.Marshal(res); err == nil {
			if err := o.cache.Put(ctx, key, data); err != nil {
				o.log.Warn("analysis cache write failed", "chunk", chunk.Index, "error", err)
			}
		}
	}
	return res
}

// chunkBreadcrumb resolves the section trail for a chunk from its first
// owning node. Chunks spanning several sibling sections open with the
// first one, which is the context a reader entering the chunk has.
func chunkBreadcrumb(tree *doctree.Tree, chunk doctree.Chunk) []string {
	if tree == nil || len(chunk.NodeIDs) == 0 {
		return nil
	}
	return tree.Breadcrumb(chunk.NodeIDs[0])
}

func failedResult(index, attempts int, err error) ChunkResult {
	msg := "analysis did not run"
	if err != nil {
		msg = err.Error()
	}
	return ChunkResult{
		ChunkIndex: index,
		Status:     StatusFailed,
		Attempts:   attempts,
		Err:        msg,
	}
}
