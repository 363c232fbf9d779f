package analyze

// Status of a single chunk analysis.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Keyword is one weighted term extracted from a chunk. Terms keep their
// original script; normalization happens at integration time.
type Keyword struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Entity is a named thing recognized in a chunk.
type Entity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Relation is a directed link between two entities, by name.
type Relation struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// ChunkResult is the outcome for one chunk. A failed result carries only
// ChunkIndex, Status, Attempts and Err; the payload fields stay empty.
type ChunkResult struct {
	ChunkIndex     int        `json:"chunk_index"`
	Keywords       []Keyword  `json:"keywords,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	StructureNotes string     `json:"structure_notes,omitempty"`
	Entities       []Entity   `json:"entities,omitempty"`
	Relations      []Relation `json:"relations,omitempty"`
	Status         Status     `json:"status"`
	Attempts       int        `json:"attempts"`
	Err            string     `json:"error,omitempty"`
}
