package analyze

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/selmo/docstill/internal/cache"
	"github.com/selmo/docstill/internal/doctree"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req CompleteRequest) (string, error)
}

func (f *fakeProvider) Name() string { return "fake:v0" }

func (f *fakeProvider) Complete(_ context.Context, req CompleteRequest) (string, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	return f.fn(call, req)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func payloadJSON(summary string) string {
	return fmt.Sprintf(`{"keywords":[{"term":"network","score":0.8}],"summary":%q,"structure_notes":"","entities":[{"name":"Gateway","type":"product"}],"relations":[]}`, summary)
}

func testOrchestrator(p Provider, mutate func(*OrchestratorConfig)) *Orchestrator {
	cfg := OrchestratorConfig{
		Provider:  p,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewOrchestrator(cfg)
}

func testChunks(texts ...string) []doctree.Chunk {
	chunks := make([]doctree.Chunk, len(texts))
	pos := 0
	for i, txt := range texts {
		chunks[i] = doctree.Chunk{Index: i, Start: pos, End: pos + len(txt), Text: txt}
		pos += len(txt)
	}
	return chunks
}

func TestAnalyze_PositionalOrderWithFailureIsolated(t *testing.T) {
	// Completion order is inverted by per-chunk sleeps; one chunk fails
	// every attempt. Results must still line up by chunk index.
	p := &fakeProvider{fn: func(_ int, req CompleteRequest) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "alpha body"):
			time.Sleep(30 * time.Millisecond)
			return payloadJSON("alpha summary"), nil
		case strings.Contains(req.Prompt, "beta body"):
			time.Sleep(15 * time.Millisecond)
			return payloadJSON("beta summary"), nil
		case strings.Contains(req.Prompt, "gamma body"):
			return "", &TransientError{Status: 503, Reason: "backend down"}
		default:
			return payloadJSON("delta summary"), nil
		}
	}}
	o := testOrchestrator(p, nil)

	results := o.Analyze(context.Background(), nil, testChunks("alpha body", "beta body", "gamma body", "delta body"))

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for i, r := range results {
		if r.ChunkIndex != i {
			t.Errorf("results[%d].ChunkIndex = %d, want %d", i, r.ChunkIndex, i)
		}
	}
	wantSummaries := map[int]string{0: "alpha summary", 1: "beta summary", 3: "delta summary"}
	for i, want := range wantSummaries {
		if results[i].Status != StatusOK {
			t.Errorf("chunk %d: expected ok, got %s (%s)", i, results[i].Status, results[i].Err)
		}
		if results[i].Summary != want {
			t.Errorf("chunk %d: summary %q, want %q", i, results[i].Summary, want)
		}
	}
	failed := results[2]
	if failed.Status != StatusFailed {
		t.Fatalf("expected chunk 2 to fail, got %s", failed.Status)
	}
	if failed.Attempts != 3 {
		t.Errorf("expected 3 attempts on failing chunk, got %d", failed.Attempts)
	}
	if !strings.Contains(failed.Err, "backend down") {
		t.Errorf("failed result should carry the provider error, got %q", failed.Err)
	}
	if failed.Summary != "" || len(failed.Keywords) != 0 {
		t.Error("failed result must not carry payload fields")
	}
}

func TestAnalyze_TransientRetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{fn: func(call int, _ CompleteRequest) (string, error) {
		if call < 2 {
			return "", &TransientError{Status: 429, Reason: "rate limited"}
		}
		return payloadJSON("eventually fine"), nil
	}}
	o := testOrchestrator(p, nil)

	results := o.Analyze(context.Background(), nil, testChunks("single chunk"))

	if results[0].Status != StatusOK {
		t.Fatalf("expected success after retries, got %s (%s)", results[0].Status, results[0].Err)
	}
	if results[0].Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", results[0].Attempts)
	}
	if p.callCount() != 3 {
		t.Errorf("expected 3 provider calls, got %d", p.callCount())
	}
}

func TestAnalyze_FatalFailsImmediately(t *testing.T) {
	p := &fakeProvider{fn: func(int, CompleteRequest) (string, error) {
		return "", &FatalError{Status: 401, Reason: "invalid api key"}
	}}
	o := testOrchestrator(p, nil)

	results := o.Analyze(context.Background(), nil, testChunks("single chunk"))

	if results[0].Status != StatusFailed {
		t.Fatalf("expected failure, got %s", results[0].Status)
	}
	if results[0].Attempts != 1 {
		t.Errorf("fatal error must not be retried, got %d attempts", results[0].Attempts)
	}
	if p.callCount() != 1 {
		t.Errorf("expected 1 provider call, got %d", p.callCount())
	}
	if !strings.Contains(results[0].Err, "invalid api key") {
		t.Errorf("expected provider reason in error, got %q", results[0].Err)
	}
}

func TestAnalyze_MalformedResponseRetried(t *testing.T) {
	p := &fakeProvider{fn: func(call int, _ CompleteRequest) (string, error) {
		if call == 0 {
			return `{"keywords": [{"term": "x", "sco`, nil
		}
		return "```json\n" + payloadJSON("recovered") + "\n```", nil
	}}
	o := testOrchestrator(p, nil)

	results := o.Analyze(context.Background(), nil, testChunks("single chunk"))

	if results[0].Status != StatusOK {
		t.Fatalf("expected recovery on second attempt, got %s (%s)", results[0].Status, results[0].Err)
	}
	if results[0].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", results[0].Attempts)
	}
	if results[0].Summary != "recovered" {
		t.Errorf("expected fenced payload decoded, got %q", results[0].Summary)
	}
}

func TestAnalyze_SchemaViolationRetried(t *testing.T) {
	p := &fakeProvider{fn: func(call int, _ CompleteRequest) (string, error) {
		if call == 0 {
			return `{"summary": "keywords missing"}`, nil
		}
		return payloadJSON("complete now"), nil
	}}
	o := testOrchestrator(p, nil)

	results := o.Analyze(context.Background(), nil, testChunks("single chunk"))

	if results[0].Status != StatusOK {
		t.Fatalf("expected recovery, got %s (%s)", results[0].Status, results[0].Err)
	}
	if results[0].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", results[0].Attempts)
	}
}

func TestAnalyze_CancelStopsDispatchKeepsInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &fakeProvider{fn: func(call int, _ CompleteRequest) (string, error) {
		if call == 0 {
			close(started)
			<-release
			return payloadJSON("first finished"), nil
		}
		return payloadJSON("should not run"), nil
	}}
	o := testOrchestrator(p, func(cfg *OrchestratorConfig) {
		cfg.Workers = 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
		// Give the dispatch loop time to observe cancellation before the
		// in-flight call frees its worker slot.
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	results := o.Analyze(ctx, nil, testChunks("first chunk", "second chunk", "third chunk"))

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Status != StatusOK || results[0].Summary != "first finished" {
		t.Errorf("in-flight call must complete and keep its result, got %s (%s)", results[0].Status, results[0].Err)
	}
	for i := 1; i < 3; i++ {
		if results[i].Status != StatusFailed {
			t.Errorf("chunk %d: expected failed after cancel, got %s", i, results[i].Status)
		}
		if !strings.Contains(results[i].Err, "context canceled") {
			t.Errorf("chunk %d: expected cancellation error, got %q", i, results[i].Err)
		}
	}
	if p.callCount() != 1 {
		t.Errorf("no new calls after cancellation: expected 1, got %d", p.callCount())
	}
}

func TestAnalyze_OversizedChunkGetsRelaxedBudget(t *testing.T) {
	var mu sync.Mutex
	budgets := make(map[string]int)
	p := &fakeProvider{fn: func(_ int, req CompleteRequest) (string, error) {
		mu.Lock()
		switch {
		case strings.Contains(req.Prompt, "plain chunk"):
			budgets["plain"] = req.MaxTokens
		case strings.Contains(req.Prompt, "huge chunk"):
			budgets["huge"] = req.MaxTokens
		}
		mu.Unlock()
		return payloadJSON("ok"), nil
	}}
	o := testOrchestrator(p, func(cfg *OrchestratorConfig) {
		cfg.MaxTokens = 111
		cfg.RelaxedMaxTokens = 999
	})

	chunks := testChunks("plain chunk", "huge chunk")
	chunks[1].Oversized = true
	o.Analyze(context.Background(), nil, chunks)

	if budgets["plain"] != 111 {
		t.Errorf("plain chunk budget = %d, want 111", budgets["plain"])
	}
	if budgets["huge"] != 999 {
		t.Errorf("oversized chunk budget = %d, want 999", budgets["huge"])
	}
}

func TestAnalyze_CacheHitSkipsProvider(t *testing.T) {
	p := &fakeProvider{fn: func(int, CompleteRequest) (string, error) {
		return payloadJSON("cached eventually"), nil
	}}
	store := cache.NewMemory()
	o := testOrchestrator(p, func(cfg *OrchestratorConfig) {
		cfg.Cache = store
	})
	chunks := testChunks("repeat chunk")

	first := o.Analyze(context.Background(), nil, chunks)
	second := o.Analyze(context.Background(), nil, chunks)

	if p.callCount() != 1 {
		t.Fatalf("expected a single provider call across runs, got %d", p.callCount())
	}
	if second[0].Status != StatusOK || second[0].Summary != first[0].Summary {
		t.Errorf("cached result must match the original, got %+v", second[0])
	}
	if second[0].ChunkIndex != 0 {
		t.Errorf("cached result must carry the current chunk index, got %d", second[0].ChunkIndex)
	}
}

func TestAnalyze_FailedResultsNotCached(t *testing.T) {
	p := &fakeProvider{fn: func(int, CompleteRequest) (string, error) {
		return "", &TransientError{Status: 500, Reason: "always down"}
	}}
	o := testOrchestrator(p, func(cfg *OrchestratorConfig) {
		cfg.Cache = cache.NewMemory()
	})
	chunks := testChunks("doomed chunk")

	o.Analyze(context.Background(), nil, chunks)
	o.Analyze(context.Background(), nil, chunks)

	// 3 attempts per run; a cached failure would halve this.
	if p.callCount() != 6 {
		t.Errorf("expected 6 provider calls across runs, got %d", p.callCount())
	}
}

func TestAnalyze_PromptCarriesDocumentContext(t *testing.T) {
	text := "Intro\nSome opening prose about the system."
	tree := doctree.Build(text, "Ops Manual", doctree.Hints{
		Headings: []doctree.Heading{{Level: 1, Title: "Intro", Offset: 0}},
	})
	chunk := doctree.Chunk{Index: 0, Start: 0, End: len(text), NodeIDs: []string{"n1"}, Text: text}

	var got string
	p := &fakeProvider{fn: func(_ int, req CompleteRequest) (string, error) {
		got = req.Prompt
		return payloadJSON("ok"), nil
	}}
	o := testOrchestrator(p, nil)

	o.Analyze(context.Background(), tree, []doctree.Chunk{chunk})

	if !strings.HasPrefix(got, AnalysisPrompt) {
		t.Error("prompt must open with the analysis instructions")
	}
	if !strings.Contains(got, `Document: "Ops Manual"`) {
		t.Errorf("prompt missing document title:\n%s", got)
	}
	if !strings.Contains(got, "Section: Intro") {
		t.Errorf("prompt missing section breadcrumb:\n%s", got)
	}
	if !strings.Contains(got, "Some opening prose") {
		t.Error("prompt missing chunk text")
	}
}

func TestAnalyze_EmptyChunks(t *testing.T) {
	p := &fakeProvider{fn: func(int, CompleteRequest) (string, error) {
		t.Fatal("provider must not be called")
		return "", nil
	}}
	o := testOrchestrator(p, nil)
	if got := o.Analyze(context.Background(), nil, nil); got != nil {
		t.Errorf("expected nil results for no chunks, got %v", got)
	}
}

func TestBuildChunkPrompt_Shape(t *testing.T) {
	prompt := BuildChunkPrompt("Guide", []string{"Setup", "Install"}, "chunk body here")
	if !strings.Contains(prompt, `Document: "Guide"`) {
		t.Error("missing document line")
	}
	if !strings.Contains(prompt, "Section: Setup > Install") {
		t.Error("missing joined breadcrumb")
	}
	if !strings.HasSuffix(prompt, "---\nchunk body here") {
		t.Error("chunk text must follow the final divider")
	}

	noCrumb := BuildChunkPrompt("Guide", nil, "body")
	if strings.Contains(noCrumb, "Section:") {
		t.Error("breadcrumb line must be omitted when empty")
	}
}
