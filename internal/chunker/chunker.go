package chunker

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/selmo/docstill/internal/doctree"
)

// Config controls chunking behavior.
type Config struct {
	TokenBudget int       // target estimated tokens per chunk
	Force       bool      // chunk even when the whole document fits the budget
	Est         Estimator // zero value uses the default calibration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TokenBudget: 1500,
		Est:         DefaultEstimator(),
	}
}

// ChunkTree splits text into ordered chunks along the tree's structure.
// Chunk ranges partition [0, len(text)) exactly; output is deterministic
// for identical input. A document that fits the budget stays a single
// chunk unless Force is set.
//
// Chunks close at the best available boundary: end of a structural unit,
// then a paragraph break, then a sentence end, then a hard rune-aligned
// cut. A titled unit that alone exceeds the budget becomes one flagged
// oversized chunk, never truncated; root-owned and implicit text has no
// unit boundary to honor and splits down the ladder instead.
func ChunkTree(text string, tree *doctree.Tree, cfg Config) []doctree.Chunk {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 1500
	}
	cfg.Est = cfg.Est.withDefaults()
	if len(text) == 0 {
		return nil
	}

	segs := tree.Segments()
	total := cfg.Est.Estimate(text)
	if total <= cfg.TokenBudget && !cfg.Force {
		return []doctree.Chunk{{
			Index:     0,
			Start:     0,
			End:       len(text),
			NodeIDs:   ownersInOrder(segs),
			Text:      text,
			EstTokens: total,
		}}
	}

	b := &builder{text: text, tree: tree, cfg: cfg}
	for _, seg := range segs {
		b.add(seg)
	}
	b.flush()
	return b.chunks
}

// builder accumulates segments into the current chunk and closes it
// when the next segment would overflow the budget.
type builder struct {
	text string
	tree *doctree.Tree
	cfg  Config

	chunks    []doctree.Chunk
	curStart  int
	curEnd    int
	curTokens int
	curOwners []string
}

func (b *builder) add(seg doctree.Segment) {
	segTok := b.est(seg.Start, seg.End)

	if b.curTokens > 0 && b.curTokens+segTok > b.cfg.TokenBudget {
		b.flush()
	}

	if segTok > b.cfg.TokenBudget {
		if b.isUnit(seg.NodeID) {
			b.emit(seg.Start, seg.End, []string{seg.NodeID}, true)
		} else {
			b.splitSpan(seg.NodeID, seg.Start, seg.End)
		}
		return
	}

	if b.curTokens == 0 {
		b.curStart = seg.Start
	}
	b.curEnd = seg.End
	b.curTokens += segTok
	b.noteOwner(seg.NodeID)
}

func (b *builder) flush() {
	if b.curTokens == 0 {
		return
	}
	b.emit(b.curStart, b.curEnd, b.curOwners, false)
	b.curOwners = nil
	b.curTokens = 0
}

func (b *builder) emit(start, end int, owners []string, oversized bool) {
	b.chunks = append(b.chunks, doctree.Chunk{
		Index:     len(b.chunks),
		Start:     start,
		End:       end,
		NodeIDs:   owners,
		Text:      b.text[start:end],
		EstTokens: b.est(start, end),
		Oversized: oversized,
	})
}

// isUnit reports whether the segment's owner is an authored structural
// unit. The synthetic root and implicit bridge nodes are not: their
// text has no unit boundary worth preserving whole.
func (b *builder) isUnit(nodeID string) bool {
	n := b.tree.Node(nodeID)
	return n != nil && n.Level != doctree.LevelDocument && !n.Implicit && n.Title != ""
}

// splitSpan breaks an over-budget span into budget-respecting pieces,
// preferring paragraph breaks, then sentence ends, then hard cuts.
func (b *builder) splitSpan(nodeID string, start, end int) {
	for start < end {
		if b.est(start, end) <= b.cfg.TokenBudget {
			b.emit(start, end, []string{nodeID}, false)
			return
		}
		cut := b.bestCut(start, end)
		b.emit(start, cut, []string{nodeID}, false)
		start = cut
	}
}

func (b *builder) bestCut(start, end int) int {
	if c := b.lastFit(paragraphCuts(b.text, start, end), start); c > start {
		return c
	}
	if c := b.lastFit(sentenceCuts(b.text, start, end), start); c > start {
		return c
	}
	return b.hardCut(start, end)
}

// lastFit returns the furthest cut keeping [start, cut) within budget,
// or start when none fits.
func (b *builder) lastFit(cuts []int, start int) int {
	best := start
	for _, c := range cuts {
		if b.est(start, c) > b.cfg.TokenBudget {
			break
		}
		best = c
	}
	return best
}

// hardCut finds the largest rune-aligned cut within budget, always
// consuming at least one rune so splitting makes progress.
func (b *builder) hardCut(start, end int) int {
	var w float64
	last := start
	for i, r := range b.text[start:end] {
		w += b.cfg.Est.weight(r)
		if int(math.Ceil(w)) > b.cfg.TokenBudget && last > start {
			return last
		}
		last = start + i + utf8.RuneLen(r)
	}
	return end
}

func (b *builder) est(start, end int) int {
	return b.cfg.Est.Estimate(b.text[start:end])
}

func (b *builder) noteOwner(id string) {
	for _, o := range b.curOwners {
		if o == id {
			return
		}
	}
	b.curOwners = append(b.curOwners, id)
}

// paragraphCuts lists offsets just past each blank-line run strictly
// inside (start, end), in ascending order.
func paragraphCuts(text string, start, end int) []int {
	var cuts []int
	i := start
	for i < end {
		j := strings.Index(text[i:end], "\n\n")
		if j < 0 {
			break
		}
		k := i + j
		for k < end && text[k] == '\n' {
			k++
		}
		if k > start && k < end {
			cuts = append(cuts, k)
		}
		i = k
	}
	return cuts
}

// sentenceCuts lists offsets just past sentence-ending punctuation, in
// ascending order. ASCII enders need a following space or newline; CJK
// full-width enders terminate on their own.
func sentenceCuts(text string, start, end int) []int {
	var cuts []int
	for i, r := range text[start:end] {
		abs := start + i
		switch r {
		case '.', '!', '?':
			if abs+1 < end && (text[abs+1] == ' ' || text[abs+1] == '\n') {
				if c := abs + 2; c < end {
					cuts = append(cuts, c)
				}
			}
		case '。', '！', '？':
			if c := abs + utf8.RuneLen(r); c < end {
				cuts = append(cuts, c)
			}
		}
	}
	return cuts
}

// ownersInOrder lists each segment owner once, in document order.
func ownersInOrder(segs []doctree.Segment) []string {
	var ids []string
	seen := make(map[string]bool, len(segs))
	for _, seg := range segs {
		if !seen[seg.NodeID] {
			seen[seg.NodeID] = true
			ids = append(ids, seg.NodeID)
		}
	}
	return ids
}
