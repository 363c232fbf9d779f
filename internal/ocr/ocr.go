// Package ocr recognizes text on rendered document pages, with a
// primary engine and per-page fallback to a secondary one.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/selmo/docstill/internal/doctree"
)

// Result is one engine's reading of one page image.
type Result struct {
	Text       string
	Confidence float64 // 0-1
}

// Engine recognizes text in a single page image.
type Engine interface {
	Name() string
	// Available reports whether the engine can run at all (binary on
	// PATH, endpoint configured). Called once before a document run.
	Available(ctx context.Context) error
	Recognize(ctx context.Context, pageImage []byte, languages []string) (*Result, error)
}

// Renderer rasterizes one page of a source document to an image.
type Renderer interface {
	RenderPage(ctx context.Context, path string, page int) ([]byte, error)
}

// DocResult is the outcome of OCR over a whole document.
type DocResult struct {
	Text        string
	Hints       doctree.Hints
	PagesOK     int
	PagesFailed int
	Engines     []string // engine used per page, "" where both failed
}

// Options tunes a document OCR run.
type Options struct {
	Languages     []string
	MinConfidence float64 // below this, the secondary engine gets the page
	Workers       int
}

func (o Options) withDefaults() Options {
	if len(o.Languages) == 0 {
		o.Languages = []string{"eng", "kor"}
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.5
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	return o
}

// Runner drives full-document OCR: render every page, recognize with
// the primary engine, fall back per page on error or low confidence.
// If the primary engine is unavailable outright, the secondary takes
// over wholesale.
type Runner struct {
	Primary   Engine
	Secondary Engine
	Renderer  Renderer
	Log       *slog.Logger
}

// Run recognizes all pages of the document at path. It fails only
// when every page fails on every engine.
func (r *Runner) Run(ctx context.Context, path string, pages int, opts Options) (*DocResult, error) {
	if pages <= 0 {
		return nil, fmt.Errorf("ocr: document has no pages")
	}
	opts = opts.withDefaults()
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	primary, secondary := r.Primary, r.Secondary
	if primary == nil {
		primary, secondary = secondary, nil
	}
	if primary == nil {
		return nil, fmt.Errorf("ocr: no engine configured")
	}
	if err := primary.Available(ctx); err != nil {
		if secondary == nil {
			return nil, fmt.Errorf("ocr: engine %s unavailable: %w", primary.Name(), err)
		}
		log.Warn("primary ocr engine unavailable, swapping",
			"engine", primary.Name(), "error", err)
		primary, secondary = secondary, nil
	}

	type pageOut struct {
		page   int
		text   string
		engine string
		err    error
	}

	results := make([]pageOut, pages)
	sem := make(chan struct{}, opts.Workers)
	done := make(chan int, pages)

	for page := 1; page <= pages; page++ {
		sem <- struct{}{} // acquire
		go func(page int) {
			defer func() { <-sem }() // release
			text, engine, err := r.recognizePage(ctx, path, page, primary, secondary, opts, log)
			results[page-1] = pageOut{page: page, text: text, engine: engine, err: err}
			done <- page
		}(page)
	}
	for i := 0; i < pages; i++ {
		<-done
	}

	out := &DocResult{Engines: make([]string, pages)}
	var sb strings.Builder
	for i, res := range results {
		if res.err != nil {
			out.PagesFailed++
			log.Warn("ocr page failed", "page", res.page, "error", res.err)
			continue
		}
		out.PagesOK++
		out.Engines[i] = res.engine
		if t := strings.TrimSpace(res.text); t != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(t)
		}
	}

	if out.PagesOK == 0 {
		return nil, fmt.Errorf("ocr: all %d pages failed", pages)
	}
	out.Text = sb.String()
	out.Hints = doctree.Hints{Pages: pages}
	return out, nil
}

// recognizePage renders and recognizes one page, trying the secondary
// engine when the primary errors or reads below the confidence floor.
func (r *Runner) recognizePage(ctx context.Context, path string, page int, primary, secondary Engine, opts Options, log *slog.Logger) (string, string, error) {
	img, err := r.Renderer.RenderPage(ctx, path, page)
	if err != nil {
		return "", "", fmt.Errorf("render page %d: %w", page, err)
	}

	res, err := primary.Recognize(ctx, img, opts.Languages)
	if err == nil && res.Confidence >= opts.MinConfidence {
		return res.Text, primary.Name(), nil
	}

	if secondary == nil {
		if err != nil {
			return "", "", fmt.Errorf("%s: %w", primary.Name(), err)
		}
		// Low confidence with nobody to hand off to: keep the text.
		return res.Text, primary.Name(), nil
	}

	if err != nil {
		log.Debug("primary ocr failed, trying secondary",
			"page", page, "engine", primary.Name(), "error", err)
	} else {
		log.Debug("primary ocr below confidence floor, trying secondary",
			"page", page, "engine", primary.Name(), "confidence", res.Confidence)
	}

	sres, serr := secondary.Recognize(ctx, img, opts.Languages)
	if serr != nil {
		if err != nil {
			return "", "", fmt.Errorf("%s: %v; %s: %w",
				primary.Name(), err, secondary.Name(), serr)
		}
		return res.Text, primary.Name(), nil
	}
	if err == nil && res.Confidence >= sres.Confidence {
		return res.Text, primary.Name(), nil
	}
	return sres.Text, secondary.Name(), nil
}
