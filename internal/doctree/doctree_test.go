package doctree

import (
	"strings"
	"testing"
)

func TestBuild_FlatHeadings(t *testing.T) {
	text := "intro\n# A\naaa\n# B\nbbb\n"
	hints := Hints{Headings: []Heading{
		{Level: 1, Title: "A", Offset: 6},
		{Level: 1, Title: "B", Offset: 14},
	}}

	tree := Build(text, "doc", hints)
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tree.Len() != 3 {
		t.Fatalf("expected 3 nodes, got %d", tree.Len())
	}

	root := tree.Root
	if root.Level != LevelDocument || root.Start != 0 || root.End != len(text) {
		t.Errorf("root range [%d,%d) level %v", root.Start, root.End, root.Level)
	}
	a := tree.Node(root.ChildIDs[0])
	b := tree.Node(root.ChildIDs[1])
	if a.End != b.Start {
		t.Errorf("sibling ranges not adjacent: a.End=%d b.Start=%d", a.End, b.Start)
	}
	if b.End != len(text) {
		t.Errorf("last child should close at text end, got %d", b.End)
	}
}

func TestBuild_SkippedLevelInsertsImplicitNode(t *testing.T) {
	text := "# Top\nbody\n### Deep\nmore\n"
	hints := Hints{Headings: []Heading{
		{Level: 1, Title: "Top", Offset: 0},
		{Level: 3, Title: "Deep", Offset: 11},
	}}

	tree := Build(text, "doc", hints)
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var implicit *Node
	tree.Walk(func(n *Node) {
		if n.Implicit {
			implicit = n
		}
	})
	if implicit == nil {
		t.Fatal("expected an implicit bridge node")
	}
	if implicit.Level != LevelSection {
		t.Errorf("implicit node level = %v, want section", implicit.Level)
	}
	deep := tree.Node(implicit.ChildIDs[0])
	if deep.Title != "Deep" || deep.Level != LevelSubsection {
		t.Errorf("deep node = %+v", deep)
	}
}

func TestBuild_NoHeadings(t *testing.T) {
	text := "just a paragraph with no structure"
	tree := Build(text, "plain", Hints{})
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tree.Len() != 1 {
		t.Fatalf("expected root only, got %d nodes", tree.Len())
	}
	segs := tree.Segments()
	if len(segs) != 1 || segs[0].Start != 0 || segs[0].End != len(text) {
		t.Fatalf("segments = %+v", segs)
	}
}

func TestBuild_DropsBadOffsets(t *testing.T) {
	text := "# A\naaa\n# B\nbbb\n"
	hints := Hints{Headings: []Heading{
		{Level: 1, Title: "A", Offset: 0},
		{Level: 1, Title: "ghost", Offset: 999},
		{Level: 1, Title: "rewind", Offset: 0},
		{Level: 1, Title: "B", Offset: 8},
	}}
	tree := Build(text, "doc", hints)
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tree.Len() != 3 {
		t.Fatalf("expected ghost and rewind headings dropped, got %d nodes", tree.Len())
	}
}

func TestSegments_PartitionWholeText(t *testing.T) {
	text := "preamble\n# A\na body\n## A1\nnested\n# B\ntail\n"
	hints := Hints{Headings: []Heading{
		{Level: 1, Title: "A", Offset: 9},
		{Level: 2, Title: "A1", Offset: 20},
		{Level: 1, Title: "B", Offset: 33},
	}}

	tree := Build(text, "doc", hints)
	segs := tree.Segments()

	cur := 0
	var rebuilt strings.Builder
	for _, s := range segs {
		if s.Start != cur {
			t.Fatalf("gap or overlap at %d (segment starts %d)", cur, s.Start)
		}
		if s.End <= s.Start {
			t.Fatalf("empty segment %+v", s)
		}
		rebuilt.WriteString(text[s.Start:s.End])
		cur = s.End
	}
	if cur != len(text) {
		t.Fatalf("segments end at %d, want %d", cur, len(text))
	}
	if rebuilt.String() != text {
		t.Fatal("concatenated segments differ from original text")
	}
}

func TestBreadcrumb_SkipsImplicitNodes(t *testing.T) {
	text := "# Top\n### Deep\nx\n"
	hints := Hints{Headings: []Heading{
		{Level: 1, Title: "Top", Offset: 0},
		{Level: 3, Title: "Deep", Offset: 6},
	}}
	tree := Build(text, "doc", hints)

	var deepID string
	tree.Walk(func(n *Node) {
		if n.Title == "Deep" {
			deepID = n.ID
		}
	})
	bc := tree.Breadcrumb(deepID)
	want := []string{"Top", "Deep"}
	if len(bc) != len(want) {
		t.Fatalf("breadcrumb = %v, want %v", bc, want)
	}
	for i := range want {
		if bc[i] != want[i] {
			t.Fatalf("breadcrumb = %v, want %v", bc, want)
		}
	}
}

func TestLevel_String(t *testing.T) {
	cases := []struct {
		level Level
		want  string
	}{
		{LevelDocument, "document"},
		{LevelChapter, "chapter"},
		{LevelSection, "section"},
		{LevelSubsection, "subsection"},
		{Level(7), "subsection"},
	}
	for _, c := range cases {
		if got := c.level.String(); got != c.want {
			t.Errorf("Level(%d).String() = %q, want %q", c.level, got, c.want)
		}
	}
}
