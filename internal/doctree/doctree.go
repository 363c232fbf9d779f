package doctree

import (
	"fmt"
	"strconv"
)

// Level is the depth of a structural unit within a document.
type Level int

const (
	LevelDocument Level = iota
	LevelChapter
	LevelSection
	LevelSubsection
)

func (l Level) String() string {
	switch l {
	case LevelDocument:
		return "document"
	case LevelChapter:
		return "chapter"
	case LevelSection:
		return "section"
	default:
		return "subsection"
	}
}

// Heading is a structural hint reported by a parser: a titled unit
// starting at a byte offset into the extracted text. Offsets are
// rune-aligned by construction (parsers emit the text they index).
type Heading struct {
	Level  int    `json:"level"` // 1-6, h1 == chapter
	Title  string `json:"title"`
	Offset int    `json:"offset"`
}

// Hints carries the best-effort structural metadata a parser recovered
// alongside the raw text.
type Hints struct {
	Title    string    `json:"title,omitempty"`
	Headings []Heading `json:"headings,omitempty"`
	Images   int       `json:"images"` // image tags/objects seen
	Tables   int       `json:"tables"`
	Pages    int       `json:"pages"` // 0 when the format has no page notion
}

// Node is one structural unit of a document. Children partition a
// subrange of the parent's range in document order; a node's level is
// always exactly one deeper than its parent's, with Implicit nodes
// filling skipped heading levels.
type Node struct {
	ID       string   `json:"id"`
	Level    Level    `json:"level"`
	Title    string   `json:"title,omitempty"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	ParentID string   `json:"parent_id,omitempty"`
	ChildIDs []string `json:"child_ids,omitempty"`
	Implicit bool     `json:"implicit,omitempty"`
}

// Tree is the structural outline of one document's text.
type Tree struct {
	Root  *Node
	nodes map[string]*Node
	order []string // pre-order, which is document order
}

// Segment is a maximal run of text owned directly by one node (the
// node's range minus its children's ranges). Segments enumerate the
// whole text exactly once, in document order.
type Segment struct {
	NodeID string
	Start  int
	End    int
}

// Chunk is a contiguous, budget-respecting slice of document text, the
// unit of downstream analysis. Chunk ranges partition the full text.
type Chunk struct {
	Index     int      `json:"index"`
	Start     int      `json:"start"`
	End       int      `json:"end"`
	NodeIDs   []string `json:"node_ids"`
	Text      string   `json:"text"`
	EstTokens int      `json:"estimated_tokens"`
	Oversized bool     `json:"oversized,omitempty"`
}

// Build constructs the node tree for text from parser hints. Headings
// with out-of-range or non-increasing offsets are dropped rather than
// producing an invalid tree.
func Build(text, title string, hints Hints) *Tree {
	t := &Tree{nodes: make(map[string]*Node)}

	root := t.newNode(LevelDocument, title, 0, false)
	root.End = len(text)
	t.Root = root

	// Stack invariant: stack[i].Level == i.
	stack := []*Node{root}

	closeTop := func(end int) {
		top := stack[len(stack)-1]
		top.End = end
		stack = stack[:len(stack)-1]
	}

	for _, h := range sanitizeHeadings(hints.Headings, len(text)) {
		level := h.Level
		if level < 1 {
			level = 1
		}

		for len(stack) > level {
			closeTop(h.Offset)
		}
		// A heading deeper than its context skipped levels; bridge
		// with implicit nodes so depth always grows by one.
		for len(stack) < level {
			im := t.newNode(Level(len(stack)), "", h.Offset, true)
			t.attach(stack[len(stack)-1], im)
			stack = append(stack, im)
		}

		n := t.newNode(Level(level), h.Title, h.Offset, false)
		t.attach(stack[len(stack)-1], n)
		stack = append(stack, n)
	}

	for len(stack) > 1 {
		closeTop(len(text))
	}
	return t
}

func (t *Tree) newNode(level Level, title string, start int, implicit bool) *Node {
	n := &Node{
		ID:       "n" + strconv.Itoa(len(t.order)),
		Level:    level,
		Title:    title,
		Start:    start,
		Implicit: implicit,
	}
	t.nodes[n.ID] = n
	t.order = append(t.order, n.ID)
	return n
}

func (t *Tree) attach(parent, child *Node) {
	child.ParentID = parent.ID
	parent.ChildIDs = append(parent.ChildIDs, child.ID)
}

// Node returns the node with the given ID, or nil.
func (t *Tree) Node(id string) *Node {
	return t.nodes[id]
}

// Len reports the number of nodes including the root.
func (t *Tree) Len() int {
	return len(t.order)
}

// Walk visits every node in document order.
func (t *Tree) Walk(fn func(*Node)) {
	for _, id := range t.order {
		fn(t.nodes[id])
	}
}

// Ancestors returns the chain from the root down to (excluding) the
// node itself, in outer-to-inner order.
func (t *Tree) Ancestors(id string) []*Node {
	var rev []*Node
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	for n.ParentID != "" {
		n = t.nodes[n.ParentID]
		rev = append(rev, n)
	}
	out := make([]*Node, len(rev))
	for i, a := range rev {
		out[len(rev)-1-i] = a
	}
	return out
}

// Breadcrumb returns the heading trail for a node, outermost first,
// skipping implicit and untitled nodes. The document root is excluded:
// its title travels separately from the section trail.
func (t *Tree) Breadcrumb(id string) []string {
	var bc []string
	for _, a := range t.Ancestors(id) {
		if a.Level != LevelDocument && a.Title != "" && !a.Implicit {
			bc = append(bc, a.Title)
		}
	}
	if n := t.nodes[id]; n != nil && n.Level != LevelDocument && n.Title != "" && !n.Implicit {
		bc = append(bc, n.Title)
	}
	return bc
}

// Segments enumerates the text in document order as node-owned runs.
// Their union is exactly [0, root.End) with no overlap.
func (t *Tree) Segments() []Segment {
	var segs []Segment
	var walk func(n *Node)
	walk = func(n *Node) {
		cur := n.Start
		for _, cid := range n.ChildIDs {
			c := t.nodes[cid]
			if c.Start > cur {
				segs = append(segs, Segment{NodeID: n.ID, Start: cur, End: c.Start})
			}
			walk(c)
			cur = c.End
		}
		if n.End > cur {
			segs = append(segs, Segment{NodeID: n.ID, Start: cur, End: n.End})
		}
	}
	walk(t.Root)
	return segs
}

// Validate checks the structural invariants: child ranges are disjoint,
// strictly increasing, contained in the parent, and every child is one
// level deeper than its parent.
func (t *Tree) Validate() error {
	var check func(n *Node) error
	check = func(n *Node) error {
		if n.Start > n.End {
			return fmt.Errorf("node %s: inverted range [%d,%d)", n.ID, n.Start, n.End)
		}
		cur := n.Start
		for _, cid := range n.ChildIDs {
			c := t.nodes[cid]
			if c == nil {
				return fmt.Errorf("node %s: missing child %s", n.ID, cid)
			}
			if c.Level != n.Level+1 {
				return fmt.Errorf("node %s: child %s level %d, want %d", n.ID, cid, c.Level, n.Level+1)
			}
			if c.Start < cur || c.End > n.End {
				return fmt.Errorf("node %s: child %s range [%d,%d) escapes [%d,%d)", n.ID, cid, c.Start, c.End, cur, n.End)
			}
			cur = c.End
			if err := check(c); err != nil {
				return err
			}
		}
		return nil
	}
	return check(t.Root)
}

func sanitizeHeadings(hs []Heading, textLen int) []Heading {
	out := make([]Heading, 0, len(hs))
	prev := -1
	for _, h := range hs {
		if h.Offset < 0 || h.Offset >= textLen {
			continue
		}
		if h.Offset <= prev {
			continue
		}
		prev = h.Offset
		out = append(out, h)
	}
	return out
}
