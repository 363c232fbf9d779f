package analyze

import (
	"fmt"
	"strings"
)

const AnalysisPrompt = `Analyze the following document section. Return a single JSON object with these fields:

- "keywords": up to 10 important terms, each {"term": string, "score": float 0.0-1.0}, ranked by importance
- "summary": 2-4 sentence summary of the section (string)
- "structure_notes": layout worth preserving, e.g. tables, lists, code blocks (string, empty if none)
- "entities": named things mentioned, each {"name": string, "type": one of "person", "organization", "location", "product", "concept", "other", "description": string}
- "relations": directed links between named entities, each {"source": string, "target": string, "type": string}

Rules:
- Keywords keep the language and script of the source text; do not translate
- Entity names use the surface form that appears in the text
- Relation source and target must name entries from the "entities" array
- Do not invent facts that the text does not state
- Return an empty array for "entities" or "relations" when there are none

Respond with ONLY the JSON object, no other text.`

// BuildChunkPrompt assembles the instruction block, the document context
// and the chunk text into one prompt.
func BuildChunkPrompt(docTitle string, breadcrumb []string, chunkText string) string {
	context := fmt.Sprintf("Document: %q", docTitle)
	if len(breadcrumb) > 0 {
		context += "\nSection: " + strings.Join(breadcrumb, " > ")
	}
	return AnalysisPrompt + "\n\n---\n" + context + "\n---\n" + chunkText
}
