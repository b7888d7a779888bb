package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/medveriground/bbox-annotator/internal/utils"
	"github.com/medveriground/bbox-annotator/pkg/imagery"
	"github.com/medveriground/bbox-annotator/pkg/record"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// LoadRequest names the inputs of a session
type LoadRequest struct {
	ProposalsPath string `json:"proposals_path" validate:"required"`
	ImagesDir     string `json:"images_dir" validate:"required"`
	AnnotatorID   string `json:"annotator_id" validate:"required"`
}

// SetupError reports bad session input. The session stays Uninitialized and
// the caller may retry with corrected input.
type SetupError struct {
	Field   string
	Message string
	Err     error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *SetupError) Unwrap() error { return e.Err }

const proposalSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "image_path", "evid_proposals"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "image_path": {"type": "string", "minLength": 1},
      "question": {"type": ["string", "null"]},
      "answer": {"type": ["string", "null"]},
      "dataset": {"type": ["string", "null"]},
      "complexity": {"type": ["string", "number", "null"]},
      "evid_proposals": {
        "type": "array",
        "items": {
          "type": "object",
          "properties": {
            "evid_phrase": {"type": ["string", "null"]},
            "original_evid": {"type": ["string", "null"]},
            "bbox": {
              "oneOf": [
                {"type": "null"},
                {"const": "NO_VISIBLE_GROUNDING"},
                {"type": "array", "items": {"type": "number"}, "minItems": 4, "maxItems": 4}
              ]
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("proposals.json", strings.NewReader(proposalSchema)); err != nil {
		panic(fmt.Sprintf("add proposal schema: %v", err))
	}
	schema, err := compiler.Compile("proposals.json")
	if err != nil {
		panic(fmt.Sprintf("compile proposal schema: %v", err))
	}
	return schema
}

// rawExample tolerates a numeric complexity tag
type rawExample struct {
	types.Example
	Complexity json.RawMessage `json:"complexity,omitempty"`
}

// ParseProposals validates and decodes a Proposal Set. Evidence without a
// bbox, or with a null one, is read as the sentinel.
func ParseProposals(data []byte) ([]types.Example, error) {
	examples, err := DecodeProposals(data)
	if err != nil {
		return nil, err
	}
	for i := range examples {
		for j := range examples[i].Evidence {
			if examples[i].Evidence[j].BBox.IsAbsent() {
				examples[i].Evidence[j].BBox = types.SentinelGrounding()
			}
		}
	}
	return examples, nil
}

// DecodeProposals validates and decodes a Proposal Set, leaving missing
// boxes absent so a proposer can fill them
func DecodeProposals(data []byte) ([]types.Example, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("proposals are not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("proposals do not match schema: %w", err)
	}

	var raw []rawExample
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode proposals: %w", err)
	}

	examples := make([]types.Example, len(raw))
	for i, r := range raw {
		ex := r.Example
		ex.Complexity = complexityTag(r.Complexity)
		examples[i] = ex
	}
	return examples, nil
}

func complexityTag(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Load reads the Proposal Set and the annotator's saved records, then
// positions the session at the resume point: the evidence whose flat index
// equals the number of saved records. On error the session stays
// Uninitialized.
func (s *Session) Load(_ context.Context, req LoadRequest) error {
	if s.state != Uninitialized {
		return ErrAlreadyLoaded
	}

	annotatorID := strings.TrimSpace(req.AnnotatorID)
	if annotatorID == "" {
		return &SetupError{Field: "annotator_id", Message: "annotator id is required"}
	}
	// the id names the annotation files as is, so two ids never share one
	if utils.SanitizeFilename(annotatorID) != annotatorID {
		return &SetupError{Field: "annotator_id", Message: fmt.Sprintf("annotator id %q contains characters not allowed in file names", annotatorID)}
	}
	if req.ProposalsPath == "" || !utils.FileExists(req.ProposalsPath) {
		return &SetupError{Field: "proposals_path", Message: fmt.Sprintf("proposals file not found: %s", req.ProposalsPath)}
	}
	if req.ImagesDir == "" || !utils.DirExists(req.ImagesDir) {
		return &SetupError{Field: "images_dir", Message: fmt.Sprintf("images directory not found: %s", req.ImagesDir)}
	}

	data, err := os.ReadFile(req.ProposalsPath)
	if err != nil {
		return &SetupError{Field: "proposals_path", Message: "cannot read proposals", Err: err}
	}
	examples, err := ParseProposals(data)
	if err != nil {
		return &SetupError{Field: "proposals_path", Message: "invalid proposals", Err: err}
	}

	prior, err := s.local.Load(annotatorID)
	if err != nil {
		return &SetupError{Field: "annotator_id", Message: "cannot read saved annotations", Err: err}
	}

	if s.sizer == nil {
		s.sizer = imagery.NewLoader(req.ImagesDir, 0)
	}

	s.annotatorID = annotatorID
	s.imagesDir = req.ImagesDir
	s.examples = examples
	s.records = prior
	s.resumed = len(prior)
	s.builder = &record.Builder{AnnotatorID: annotatorID, Clock: s.clock}
	s.flagged = false

	s.seek(len(prior))
	return nil
}

// Resumed returns the number of records loaded from a previous run
func (s *Session) Resumed() int { return s.resumed }
