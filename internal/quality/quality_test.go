package quality

import (
	"strings"
	"testing"

	"github.com/selmo/docstill/internal/doctree"
)

func TestScore_CleanProseScoresHigh(t *testing.T) {
	text := "The quarterly report covers revenue, costs, and projected growth for the coming year. " +
		"Each section includes detailed tables and commentary from the finance team."
	score := Score(text)
	if score < 0.8 {
		t.Errorf("clean prose score = %.3f, want >= 0.8", score)
	}
	if score > 1.0 {
		t.Errorf("score %.3f exceeds 1.0", score)
	}
}

func TestScore_KoreanProseScoresHigh(t *testing.T) {
	text := "분기 보고서는 매출과 비용, 그리고 내년 성장 전망을 다룹니다. 각 절에는 상세한 표와 재무팀의 논평이 포함됩니다."
	score := Score(text)
	if score < 0.8 {
		t.Errorf("korean prose score = %.3f, want >= 0.8", score)
	}
}

func TestScore_GarbageScoresLow(t *testing.T) {
	garbage := strings.Repeat("\uE000\uFFFD\x01", 200)
	clean := "normal readable sentence with several words here"

	gs := Score(garbage)
	cs := Score(clean)
	if gs >= cs {
		t.Errorf("garbage score %.3f should be below clean score %.3f", gs, cs)
	}
	if gs > 0.35 {
		t.Errorf("garbage score = %.3f, want low", gs)
	}
}

func TestScore_EmptyText(t *testing.T) {
	if got := Score(""); got != 0 {
		t.Errorf("Score(\"\") = %.3f, want 0", got)
	}
}

func TestScore_Deterministic(t *testing.T) {
	text := "same input must always produce the same score"
	a := Score(text)
	for i := 0; i < 10; i++ {
		if b := Score(text); b != a {
			t.Fatalf("score changed between calls: %v then %v", a, b)
		}
	}
}

func TestScore_WhitespaceHeavyPenalized(t *testing.T) {
	sparse := "a" + strings.Repeat("   \n\t  ", 100)
	dense := "a compact sentence of ordinary words"
	if Score(sparse) >= Score(dense) {
		t.Errorf("whitespace-heavy text %.3f should score below prose %.3f",
			Score(sparse), Score(dense))
	}
}

func TestWhitespaceBand(t *testing.T) {
	cases := []struct {
		ratio float64
		want  float64
	}{
		{0.0, 0.0},
		{0.05, 1.0},
		{0.15, 1.0},
		{0.30, 1.0},
		{1.0, 0.0},
	}
	for _, c := range cases {
		if got := whitespaceBand(c.ratio); got != c.want {
			t.Errorf("whitespaceBand(%.2f) = %.3f, want %.3f", c.ratio, got, c.want)
		}
	}
	if mid := whitespaceBand(0.65); mid <= 0 || mid >= 1 {
		t.Errorf("whitespaceBand(0.65) = %.3f, want interior value", mid)
	}
}

func TestIsGarbageRune(t *testing.T) {
	garbage := []rune{0xE000, 0xF8FF, 0xFFFD, 0x01, 0x1F}
	for _, r := range garbage {
		if !isGarbageRune(r) {
			t.Errorf("expected %U to be garbage", r)
		}
	}
	clean := []rune{'a', '한', '9', '\n', '\r', '\t', ' ', '!'}
	for _, r := range clean {
		if isGarbageRune(r) {
			t.Errorf("expected %U to be clean", r)
		}
	}
}

func TestIsScanned_LowDensityImageHeavy(t *testing.T) {
	// 3 pages, 20 chars/page, 8 images/page.
	hints := doctree.Hints{Pages: 3, Images: 24}
	text := strings.Repeat("x", 60)
	if !IsScanned(hints, text) {
		t.Fatal("3 pages at 20 chars/page with 8 images/page must be scanned")
	}
}

func TestIsScanned_DensityFloorAlone(t *testing.T) {
	hints := doctree.Hints{Pages: 4, Images: 0}
	text := strings.Repeat("y", 4*30) // 30 chars/page
	if !IsScanned(hints, text) {
		t.Error("density below 50 chars/page is a scan even without images")
	}
}

func TestIsScanned_ImageRateAlone(t *testing.T) {
	hints := doctree.Hints{Pages: 2, Images: 12} // 6 images/page
	text := strings.Repeat("z", 2*500)
	if !IsScanned(hints, text) {
		t.Error("more than 5 images/page is a scan even with dense text")
	}
}

func TestIsScanned_CombinedThinAndImages(t *testing.T) {
	hints := doctree.Hints{Pages: 2, Images: 8} // 4 images/page
	text := strings.Repeat("w", 2*80)         // 80 chars/page
	if !IsScanned(hints, text) {
		t.Error("thin text plus 4 images/page should be scanned")
	}
}

func TestIsScanned_NormalDocument(t *testing.T) {
	hints := doctree.Hints{Pages: 10, Images: 5}
	text := strings.Repeat("k", 10*2000)
	if IsScanned(hints, text) {
		t.Error("dense, lightly illustrated document flagged as scanned")
	}
}

func TestIsScanned_NoPageNotion(t *testing.T) {
	hints := doctree.Hints{Pages: 0, Images: 50}
	if IsScanned(hints, "") {
		t.Error("documents without page counts are never scanned")
	}
}
