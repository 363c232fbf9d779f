// Package arbiter runs every registered parser adapter for a file,
// scores the attempts, and selects the authoritative text.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/selmo/docstill/internal/doctree"
	"github.com/selmo/docstill/internal/ocr"
	"github.com/selmo/docstill/internal/parser"
	"github.com/selmo/docstill/internal/quality"
)

// OCRParserID identifies the OCR attempt among parser attempts.
const OCRParserID = "ocr"

// ParseAttempt is one adapter's run over one file, immutable once
// scored. Text stays in memory only; serialized artifacts carry the
// sample instead.
type ParseAttempt struct {
	ParserID  string        `json:"parser_id"`
	Text      string        `json:"-"`
	Hints     doctree.Hints `json:"hints"`
	Sample    string        `json:"sample,omitempty"`
	Score     float64       `json:"score"`
	Succeeded bool          `json:"succeeded"`
	Err       string        `json:"error,omitempty"`
}

// AttemptScore is the diagnostic pair kept for the runner-up when OCR
// overrides selection.
type AttemptScore struct {
	ParserID string  `json:"parser_id"`
	Score    float64 `json:"score"`
}

// ArbitratedDocument is the selected text plus its provenance. Created
// once per (file, force-reparse) event.
type ArbitratedDocument struct {
	SourceFile     string        `json:"source_file"`
	ChosenParserID string        `json:"chosen_parser_id"`
	Text           string        `json:"text"`
	Hints          doctree.Hints `json:"hints"`
	IsScanned      bool          `json:"is_scanned"`
	RunnerUp       *AttemptScore `json:"runner_up,omitempty"`
}

// Summary is the persisted arbitration artifact: every attempt with
// its score, and which one won.
type Summary struct {
	SourceFile     string         `json:"source_file"`
	ChosenParserID string         `json:"chosen_parser_id"`
	IsScanned      bool           `json:"is_scanned"`
	Attempts       []ParseAttempt `json:"attempts"`
}

// NewSummary assembles the persisted arbitration artifact.
func NewSummary(doc *ArbitratedDocument, attempts []ParseAttempt) Summary {
	return Summary{
		SourceFile:     doc.SourceFile,
		ChosenParserID: doc.ChosenParserID,
		IsScanned:      doc.IsScanned,
		Attempts:       attempts,
	}
}

// ParseFailure reports that every adapter failed for a file. Terminal:
// nothing downstream can run without text.
type ParseFailure struct {
	File   string
	Errors map[string]string // parser id -> error text
}

func (e *ParseFailure) Error() string {
	ids := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var sb strings.Builder
	fmt.Fprintf(&sb, "all parsers failed for %s:", e.File)
	for _, id := range ids {
		fmt.Fprintf(&sb, " %s: %s;", id, e.Errors[id])
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// Arbiter coordinates adapter runs, quality scoring, scan detection,
// and the OCR override.
type Arbiter struct {
	OCR      *ocr.Runner // nil disables the scanned-document path
	OCROpts  ocr.Options
	PoolSize int // concurrent adapters per file, default 3
	Log      *slog.Logger
}

func (a *Arbiter) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

func (a *Arbiter) poolSize() int {
	if a.PoolSize > 0 {
		return a.PoolSize
	}
	return 3
}

// Arbitrate reads the file once, runs all registered adapters for its
// type, and selects the best attempt. The returned attempts list holds
// every attempt including failures and (when run) OCR, for the
// arbitration summary.
func (a *Arbiter) Arbitrate(ctx context.Context, path string) (*ArbitratedDocument, []ParseAttempt, error) {
	adapters, err := parser.ForFile(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	return a.ArbitrateBytes(ctx, path, data, adapters)
}

// ArbitrateBytes runs arbitration over in-memory file bytes.
func (a *Arbiter) ArbitrateBytes(ctx context.Context, path string, data []byte, adapters []parser.Adapter) (*ArbitratedDocument, []ParseAttempt, error) {
	log := a.logger()
	src := parser.Source{Name: path, Data: data}

	attempts := make([]ParseAttempt, len(adapters))
	sem := make(chan struct{}, a.poolSize())
	var wg sync.WaitGroup

	for i, ad := range adapters {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		wg.Add(1)
		go func(i int, ad parser.Adapter) {
			defer wg.Done()
			defer func() { <-sem }()
			attempts[i] = runAdapter(ad, src)
		}(i, ad)
	}
	// Barrier: scores compare only after every attempt has finished.
	wg.Wait()

	for _, att := range attempts {
		if att.Succeeded {
			log.Debug("parse attempt scored",
				"file", path, "parser", att.ParserID, "score", att.Score)
		} else {
			log.Debug("parse attempt failed",
				"file", path, "parser", att.ParserID, "error", att.Err)
		}
	}

	best := selectBest(attempts)
	if best < 0 {
		failure := &ParseFailure{File: path, Errors: map[string]string{}}
		for _, att := range attempts {
			failure.Errors[att.ParserID] = att.Err
		}
		return nil, attempts, failure
	}

	doc := &ArbitratedDocument{
		SourceFile:     path,
		ChosenParserID: attempts[best].ParserID,
		Text:           attempts[best].Text,
		Hints:          attempts[best].Hints,
	}

	scanHints := detectionHints(attempts, best)
	if quality.IsScanned(scanHints, doc.Text) {
		attempts = a.runScanPath(ctx, path, doc, scanHints, attempts, best)
	}

	log.Info("arbitration complete",
		"file", path,
		"parser", doc.ChosenParserID,
		"scanned", doc.IsScanned,
		"attempts", len(attempts))
	return doc, attempts, nil
}

// runScanPath performs full-page OCR and, on success, makes the OCR
// attempt authoritative regardless of its score.
func (a *Arbiter) runScanPath(ctx context.Context, path string, doc *ArbitratedDocument, scanHints doctree.Hints, attempts []ParseAttempt, best int) []ParseAttempt {
	log := a.logger()
	if a.OCR == nil {
		log.Warn("document looks scanned but no ocr engine configured",
			"file", path, "pages", scanHints.Pages)
		return attempts
	}

	res, err := a.OCR.Run(ctx, path, scanHints.Pages, a.OCROpts)
	if err != nil {
		log.Warn("ocr failed, keeping best parser attempt",
			"file", path, "error", err)
		return append(attempts, ParseAttempt{
			ParserID: OCRParserID,
			Err:      err.Error(),
		})
	}

	hints := res.Hints
	hints.Title = doc.Hints.Title
	hints.Images = scanHints.Images

	sample := sampleText(res.Text)
	ocrAttempt := ParseAttempt{
		ParserID:  OCRParserID,
		Text:      res.Text,
		Hints:     hints,
		Sample:    sample,
		Score:     quality.Score(sample),
		Succeeded: true,
	}

	doc.RunnerUp = &AttemptScore{
		ParserID: attempts[best].ParserID,
		Score:    attempts[best].Score,
	}
	doc.ChosenParserID = OCRParserID
	doc.Text = res.Text
	doc.Hints = hints
	doc.IsScanned = true

	log.Info("ocr override applied",
		"file", path,
		"pages_ok", res.PagesOK,
		"pages_failed", res.PagesFailed,
		"displaced", doc.RunnerUp.ParserID)
	return append(attempts, ocrAttempt)
}

// runAdapter executes one adapter with a recover boundary so a panic
// in a parsing library becomes a failed attempt, not a lost file.
func runAdapter(ad parser.Adapter, src parser.Source) (att ParseAttempt) {
	att = ParseAttempt{ParserID: ad.ID()}
	defer func() {
		if r := recover(); r != nil {
			att.Succeeded = false
			att.Score = 0
			att.Err = fmt.Sprintf("panic: %v", r)
		}
	}()

	res, err := ad.Parse(src)
	if err != nil {
		att.Err = err.Error()
		return att
	}
	if strings.TrimSpace(res.Text) == "" {
		att.Err = "no text extracted"
		return att
	}

	att.Text = res.Text
	att.Hints = res.Hints
	att.Sample = res.Sample
	att.Score = quality.Score(res.Sample)
	att.Succeeded = true
	return att
}

// selectBest picks the succeeded attempt with the strictly highest
// score; ties go to the earlier adapter in registry priority order.
func selectBest(attempts []ParseAttempt) int {
	best := -1
	for i, att := range attempts {
		if !att.Succeeded {
			continue
		}
		if best < 0 || att.Score > attempts[best].Score {
			best = i
		}
	}
	return best
}

// detectionHints merges page and image counts across succeeded
// attempts: the layout adapter may know the image census even when the
// text adapter wins on quality.
func detectionHints(attempts []ParseAttempt, best int) doctree.Hints {
	hints := attempts[best].Hints
	for _, att := range attempts {
		if !att.Succeeded {
			continue
		}
		if att.Hints.Pages > hints.Pages {
			hints.Pages = att.Hints.Pages
		}
		if att.Hints.Images > hints.Images {
			hints.Images = att.Hints.Images
		}
		if att.Hints.Tables > hints.Tables {
			hints.Tables = att.Hints.Tables
		}
	}
	return hints
}

func sampleText(text string) string {
	const max = 10000
	runes := 0
	for i := range text {
		if runes == max {
			return text[:i]
		}
		runes++
	}
	return text
}
