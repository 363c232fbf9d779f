package analyze

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// chunkPayload is the JSON object the provider must return per chunk.
type chunkPayload struct {
	Keywords       []Keyword  `json:"keywords"`
	Summary        string     `json:"summary"`
	StructureNotes string     `json:"structure_notes"`
	Entities       []Entity   `json:"entities"`
	Relations      []Relation `json:"relations"`
}

const payloadSchemaJSON = `{
  "type": "object",
  "properties": {
    "keywords": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "term": {"type": "string", "minLength": 1},
          "score": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["term", "score"]
      }
    },
    "summary": {"type": "string"},
    "structure_notes": {"type": "string"},
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string"},
          "description": {"type": "string"}
        },
        "required": ["name", "type"]
      }
    },
    "relations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "source": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1}
        },
        "required": ["source", "target", "type"]
      }
    }
  },
  "required": ["keywords", "summary"]
}`

var payloadSchema = mustCompilePayloadSchema()

func mustCompilePayloadSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("chunk_payload.json", strings.NewReader(payloadSchemaJSON)); err != nil {
		panic(fmt.Sprintf("load payload schema: %v", err))
	}
	schema, err := compiler.Compile("chunk_payload.json")
	if err != nil {
		panic(fmt.Sprintf("compile payload schema: %v", err))
	}
	return schema
}

// parsePayload checks a raw provider response for syntactic completeness and
// schema conformance before accepting it. Every defect comes back as a
// TransientError: a truncated or malformed payload is grounds for a fresh
// attempt, not a partial success.
func parsePayload(raw string) (*chunkPayload, error) {
	text := stripCodeBlock(raw)
	if text == "" {
		return nil, &TransientError{Reason: "empty response"}
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &TransientError{Reason: fmt.Sprintf("parse response json: %v (raw: %s)", err, truncate(text, 200))}
	}
	if err := payloadSchema.Validate(doc); err != nil {
		return nil, &TransientError{Reason: fmt.Sprintf("response violates expected shape: %v", err)}
	}

	var p chunkPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, &TransientError{Reason: fmt.Sprintf("decode response: %v", err)}
	}
	return &p, nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
