package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// PopplerRenderer rasterizes PDF pages with pdftoppm (poppler-utils).
type PopplerRenderer struct {
	DPI int // defaults to 300
}

func (r *PopplerRenderer) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 300
	}

	tmpDir, err := os.MkdirTemp("", "docstill-page-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)

	// -singlefile keeps the output name fixed at <prefix>.png.
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		path,
		outputPrefix,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm produced no output: %w", err)
	}
	return data, nil
}
