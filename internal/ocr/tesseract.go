package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/selmo/docstill/internal/quality"
)

// Tesseract runs the tesseract binary on page images. The traditional
// engine: universally installable, weaker on degraded scans than the
// remote deep-learning engine.
type Tesseract struct {
	Binary string // defaults to "tesseract"
	PSM    string // page segmentation mode, defaults to "3"
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) binary() string {
	if t.Binary != "" {
		return t.Binary
	}
	return "tesseract"
}

func (t *Tesseract) Available(_ context.Context) error {
	if _, err := exec.LookPath(t.binary()); err != nil {
		return fmt.Errorf("tesseract not on PATH: %w", err)
	}
	return nil
}

func (t *Tesseract) Recognize(ctx context.Context, pageImage []byte, languages []string) (*Result, error) {
	tmp, err := os.CreateTemp("", "docstill-ocr-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(pageImage); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp image: %w", err)
	}
	tmp.Close()

	psm := t.PSM
	if psm == "" {
		psm = "3"
	}
	lang := "eng"
	if len(languages) > 0 {
		lang = strings.Join(languages, "+")
	}

	cmd := exec.CommandContext(ctx, t.binary(), tmpPath, "stdout", "-l", lang, "--psm", psm)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract: %w (%s)", err, strings.TrimSpace(errBuf.String()))
	}

	text := strings.TrimSpace(out.String())
	// Tesseract's plain output carries no confidence; the text quality
	// score stands in so the fallback threshold still applies.
	return &Result{Text: text, Confidence: quality.Score(text)}, nil
}
