// Package integrate merges per-chunk analysis results into one
// document-level result: deduplicated keywords, a merged entity/relation
// graph, and hierarchical section summaries. Integration is pure and
// provider-free; identical inputs and clock produce byte-identical output.
package integrate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/selmo/docstill/internal/analyze"
	"github.com/selmo/docstill/internal/doctree"
)

// MergedKeyword is one deduplicated keyword across chunks.
type MergedKeyword struct {
	Term         string  `json:"term"` // canonical surface form
	Normalized   string  `json:"normalized"`
	Score        float64 `json:"score"` // max across contributing chunks
	ChunkIndices []int   `json:"chunk_indices"`
}

// MergedEntity is one deduplicated graph entity.
type MergedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Mentions    int    `json:"mentions"`
}

// MergedRelation is one deduplicated directed edge.
type MergedRelation struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Type     string `json:"type"`
	Evidence int    `json:"evidence"`
}

type MergedGraph struct {
	Entities  []MergedEntity   `json:"entities"`
	Relations []MergedRelation `json:"relations"`
}

// SectionSummary is the composed summary for one authored document node.
type SectionSummary struct {
	NodeID  string        `json:"node_id"`
	Title   string        `json:"title,omitempty"`
	Level   doctree.Level `json:"level"`
	Summary string        `json:"summary"`
}

// Coverage reports how much of the document the analyses actually cover.
type Coverage struct {
	ChunksOK     int `json:"chunks_ok"`
	ChunksFailed int `json:"chunks_failed"`
}

// Result is the integrated document analysis. It is derived and never
// mutated; a re-run produces a new value.
type Result struct {
	DocumentSummary  string           `json:"document_summary"`
	Keywords         []MergedKeyword  `json:"keywords"`
	Graph            MergedGraph      `json:"graph"`
	SectionSummaries []SectionSummary `json:"section_summaries"`
	Coverage         Coverage         `json:"coverage"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// Integrator composes chunk results over a document tree. Now is the clock
// stamped into GeneratedAt; fix it in tests for reproducible output.
type Integrator struct {
	Now func() time.Time
}

// Integrate merges results into a document-level Result. Results may arrive
// in any order; merging iterates in chunk-index order, so output depends
// only on the set of results, not their arrangement. Failed chunks
// contribute gap markers to summaries and nothing to keywords or the graph.
func (ig *Integrator) Integrate(tree *doctree.Tree, chunks []doctree.Chunk, results []analyze.ChunkResult) *Result {
	now := ig.Now
	if now == nil {
		now = time.Now
	}

	ordered := make([]analyze.ChunkResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ChunkIndex < ordered[j].ChunkIndex })

	coverage := Coverage{}
	for _, r := range ordered {
		if r.Status == analyze.StatusOK {
			coverage.ChunksOK++
		} else {
			coverage.ChunksFailed++
		}
	}

	res := &Result{
		Keywords:    mergeKeywords(ordered),
		Graph:       mergeGraph(ordered),
		Coverage:    coverage,
		GeneratedAt: now(),
	}

	sum := &summarizer{
		tree:    tree,
		chunks:  chunks,
		results: resultsByIndex(ordered),
		memo:    make(map[string]string),
	}
	res.DocumentSummary = sum.root()
	res.SectionSummaries = sum.sections()
	return res
}

func resultsByIndex(ordered []analyze.ChunkResult) map[int]analyze.ChunkResult {
	m := make(map[int]analyze.ChunkResult, len(ordered))
	for _, r := range ordered {
		m[r.ChunkIndex] = r
	}
	return m
}

type keywordAgg struct {
	score    float64
	surfaces map[string]float64 // surface form -> best score seen
	chunks   map[int]struct{}
}

func mergeKeywords(ordered []analyze.ChunkResult) []MergedKeyword {
	byNorm := make(map[string]*keywordAgg)
	for _, r := range ordered {
		if r.Status != analyze.StatusOK {
			continue
		}
		for _, kw := range r.Keywords {
			key := NormalizeTerm(kw.Term)
			if key == "" {
				continue
			}
			agg := byNorm[key]
			if agg == nil {
				agg = &keywordAgg{surfaces: make(map[string]float64), chunks: make(map[int]struct{})}
				byNorm[key] = agg
			}
			if kw.Score > agg.score {
				agg.score = kw.Score
			}
			if best, ok := agg.surfaces[kw.Term]; !ok || kw.Score > best {
				agg.surfaces[kw.Term] = kw.Score
			}
			agg.chunks[r.ChunkIndex] = struct{}{}
		}
	}

	merged := make([]MergedKeyword, 0, len(byNorm))
	for key, agg := range byNorm {
		merged = append(merged, MergedKeyword{
			Term:         canonicalSurface(agg.surfaces),
			Normalized:   key,
			Score:        agg.score,
			ChunkIndices: sortedIndices(agg.chunks),
		})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Normalized < merged[j].Normalized
	})
	return merged
}

// canonicalSurface picks the display form for a merged keyword: the surface
// with the highest score, ties to the lexicographically smallest.
func canonicalSurface(surfaces map[string]float64) string {
	best := ""
	bestScore := -1.0
	for s, score := range surfaces {
		if score > bestScore || (score == bestScore && s < best) {
			best = s
			bestScore = score
		}
	}
	return best
}

func sortedIndices(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

type entityAgg struct {
	name        string // first surface seen in chunk order
	typ         string
	description string
	mentions    int
}

func mergeGraph(ordered []analyze.ChunkResult) MergedGraph {
	entityKeys := []string{}
	entities := make(map[string]*entityAgg)
	nameCanon := make(map[string]string) // normalized name -> canonical surface

	for _, r := range ordered {
		if r.Status != analyze.StatusOK {
			continue
		}
		for _, e := range r.Entities {
			normName := NormalizeTerm(e.Name)
			if normName == "" {
				continue
			}
			key := normName + "\x00" + strings.ToLower(e.Type)
			agg := entities[key]
			if agg == nil {
				agg = &entityAgg{name: e.Name, typ: strings.ToLower(e.Type)}
				entities[key] = agg
				entityKeys = append(entityKeys, key)
			}
			agg.mentions++
			if agg.description == "" && e.Description != "" {
				agg.description = e.Description
			}
			if _, ok := nameCanon[normName]; !ok {
				nameCanon[normName] = e.Name
			}
		}
	}

	mergedEntities := make([]MergedEntity, 0, len(entityKeys))
	for _, key := range entityKeys {
		agg := entities[key]
		mergedEntities = append(mergedEntities, MergedEntity{
			Name:        agg.name,
			Type:        agg.typ,
			Description: agg.description,
			Mentions:    agg.mentions,
		})
	}

	relationKeys := []string{}
	relations := make(map[string]*MergedRelation)
	for _, r := range ordered {
		if r.Status != analyze.StatusOK {
			continue
		}
		for _, rel := range r.Relations {
			src := NormalizeTerm(rel.Source)
			dst := NormalizeTerm(rel.Target)
			if src == "" || dst == "" {
				continue
			}
			// Endpoints not matching any recognized entity still merge
			// under their own surface form.
			if _, ok := nameCanon[src]; !ok {
				nameCanon[src] = rel.Source
			}
			if _, ok := nameCanon[dst]; !ok {
				nameCanon[dst] = rel.Target
			}
			key := src + "\x00" + dst + "\x00" + strings.ToLower(rel.Type)
			agg := relations[key]
			if agg == nil {
				agg = &MergedRelation{
					Source: nameCanon[src],
					Target: nameCanon[dst],
					Type:   strings.ToLower(rel.Type),
				}
				relations[key] = agg
				relationKeys = append(relationKeys, key)
			}
			agg.Evidence++
		}
	}

	mergedRelations := make([]MergedRelation, 0, len(relationKeys))
	for _, key := range relationKeys {
		mergedRelations = append(mergedRelations, *relations[key])
	}

	return MergedGraph{Entities: mergedEntities, Relations: mergedRelations}
}

type summarizer struct {
	tree    *doctree.Tree
	chunks  []doctree.Chunk
	results map[int]analyze.ChunkResult
	memo    map[string]string
}

func (s *summarizer) root() string {
	if s.tree == nil || s.tree.Root == nil {
		return ""
	}
	return s.nodeSummary(s.tree.Root)
}

// sections emits one composed summary per authored node, in document order.
// Implicit bridge nodes and the root are carriers, not sections.
func (s *summarizer) sections() []SectionSummary {
	if s.tree == nil {
		return nil
	}
	var out []SectionSummary
	s.tree.Walk(func(n *doctree.Node) {
		if n.Level == doctree.LevelDocument || n.Implicit {
			return
		}
		out = append(out, SectionSummary{
			NodeID:  n.ID,
			Title:   n.Title,
			Level:   n.Level,
			Summary: s.nodeSummary(n),
		})
	})
	return out
}

// nodeSummary composes hierarchically: a node covered by exactly one chunk
// inherits that chunk's summary; a node spanning several chunks joins its
// children's summaries in document order, or, when it has no children, its
// chunks' summaries. Failed chunks leave a visible gap marker.
func (s *summarizer) nodeSummary(n *doctree.Node) string {
	if got, ok := s.memo[n.ID]; ok {
		return got
	}

	covering := s.covering(n)
	var summary string
	switch {
	case len(covering) == 0:
		summary = ""
	case len(covering) == 1:
		summary = s.chunkSummary(covering[0])
	case len(n.ChildIDs) == 0:
		summary = s.joinChunks(covering)
	default:
		parts := make([]string, 0, len(n.ChildIDs))
		for _, id := range n.ChildIDs {
			child := s.tree.Node(id)
			if child == nil {
				continue
			}
			if part := s.nodeSummary(child); part != "" {
				parts = append(parts, part)
			}
		}
		summary = strings.Join(parts, " ")
	}

	s.memo[n.ID] = summary
	return summary
}

func (s *summarizer) covering(n *doctree.Node) []doctree.Chunk {
	var out []doctree.Chunk
	for _, c := range s.chunks {
		if c.Start < n.End && n.Start < c.End {
			out = append(out, c)
		}
	}
	return out
}

func (s *summarizer) joinChunks(covering []doctree.Chunk) string {
	parts := make([]string, 0, len(covering))
	for _, c := range covering {
		if part := s.chunkSummary(c); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

func (s *summarizer) chunkSummary(c doctree.Chunk) string {
	r, ok := s.results[c.Index]
	if !ok {
		return ""
	}
	if r.Status != analyze.StatusOK {
		return fmt.Sprintf("[analysis gap: chunk %d failed]", c.Index)
	}
	return r.Summary
}
