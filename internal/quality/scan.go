package quality

import (
	"strings"

	"github.com/selmo/docstill/internal/doctree"
)

// Scan detection thresholds, per page.
const (
	scanDensityFloor = 50  // chars/page below which pages are image-only
	scanDensityLow   = 100 // chars/page considered thin when images abound
	scanImagesHigh   = 5.0
	scanImagesLow    = 3.0
)

// IsScanned decides whether a document is a scan needing full-page
// OCR: almost no extractable text per page, or image-heavy pages with
// thin text. Formats without a page notion are never scanned.
func IsScanned(hints doctree.Hints, text string) bool {
	if hints.Pages <= 0 {
		return false
	}
	pages := float64(hints.Pages)
	density := float64(len([]rune(strings.TrimSpace(text)))) / pages
	imagesPerPage := float64(hints.Images) / pages

	if density < scanDensityFloor {
		return true
	}
	if imagesPerPage > scanImagesHigh {
		return true
	}
	return density < scanDensityLow && imagesPerPage > scanImagesLow
}
