package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NoVisibleGrounding is the sentinel written in place of a box when a phrase
// has no spatial grounding in the image
const NoVisibleGrounding = "NO_VISIBLE_GROUNDING"

// Box represents a normalized center-based bounding box [cx, cy, w, h] in [0,1] range
type Box struct {
	CX float64
	CY float64
	W  float64
	H  float64
}

// Area returns the normalized area of the box
func (b Box) Area() float64 {
	return b.W * b.H
}

// MarshalJSON encodes the box as a 4-element array
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.CX, b.CY, b.W, b.H})
}

// UnmarshalJSON decodes a 4-element array
func (b *Box) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("box must be an array of 4 numbers: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("box must have 4 components, got %d", len(arr))
	}
	*b = Box{CX: arr[0], CY: arr[1], W: arr[2], H: arr[3]}
	return nil
}

// GroundingKind tells a box apart from the sentinel and from no box at all
type GroundingKind uint8

const (
	// Absent means there is no box (a rejected evidence)
	Absent GroundingKind = iota
	// Boxed means Box holds a normalized box
	Boxed
	// Sentinel means NO_VISIBLE_GROUNDING
	Sentinel
)

// Grounding is a normalized box, the sentinel, or absent.
// JSON form: [cx, cy, w, h], "NO_VISIBLE_GROUNDING" or null.
type Grounding struct {
	Kind GroundingKind
	Box  Box
}

// BoxGrounding wraps a normalized box
func BoxGrounding(b Box) Grounding {
	return Grounding{Kind: Boxed, Box: b}
}

// SentinelGrounding returns the no-visible-grounding value
func SentinelGrounding() Grounding {
	return Grounding{Kind: Sentinel}
}

// IsSentinel reports whether g is NO_VISIBLE_GROUNDING
func (g Grounding) IsSentinel() bool { return g.Kind == Sentinel }

// IsAbsent reports whether g carries no box at all
func (g Grounding) IsAbsent() bool { return g.Kind == Absent }

// MarshalJSON implements json.Marshaler
func (g Grounding) MarshalJSON() ([]byte, error) {
	switch g.Kind {
	case Boxed:
		return json.Marshal(g.Box)
	case Sentinel:
		return json.Marshal(NoVisibleGrounding)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (g *Grounding) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*g = Grounding{Kind: Absent}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != NoVisibleGrounding {
			return fmt.Errorf("unknown grounding marker %q", s)
		}
		*g = SentinelGrounding()
		return nil
	default:
		var b Box
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*g = BoxGrounding(b)
		return nil
	}
}

// String renders the grounding for logs
func (g Grounding) String() string {
	switch g.Kind {
	case Boxed:
		return fmt.Sprintf("[%.4f %.4f %.4f %.4f]", g.Box.CX, g.Box.CY, g.Box.W, g.Box.H)
	case Sentinel:
		return NoVisibleGrounding
	default:
		return "none"
	}
}

// PixelBox is a box in pixel corner form [x1, y1, x2, y2]
type PixelBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns x2-x1, which may be negative for inverted boxes
func (p PixelBox) Width() int { return p.X2 - p.X1 }

// Height returns y2-y1, which may be negative for inverted boxes
func (p PixelBox) Height() int { return p.Y2 - p.Y1 }

// PixelGrounding is the pixel-space counterpart of Grounding, used for the
// box under review
type PixelGrounding struct {
	Kind GroundingKind `json:"kind"`
	Box  PixelBox      `json:"box"`
}

// PixelBoxGrounding wraps a pixel box
func PixelBoxGrounding(p PixelBox) PixelGrounding {
	return PixelGrounding{Kind: Boxed, Box: p}
}

// IsBoxed reports whether a pixel box is present
func (p PixelGrounding) IsBoxed() bool { return p.Kind == Boxed }

// Equal compares kinds and, for boxes, all four corners exactly
func (p PixelGrounding) Equal(o PixelGrounding) bool {
	if p.Kind != o.Kind {
		return false
	}
	return p.Kind != Boxed || p.Box == o.Box
}

// Evidence is one phrase-level box proposal of an example
type Evidence struct {
	Phrase         string    `json:"evid_phrase"`
	OriginalPhrase string    `json:"original_evid"`
	BBox           Grounding `json:"bbox"`
}

// Example is one VQA item with its evidence proposals
type Example struct {
	ID         string     `json:"id"`
	ImagePath  string     `json:"image_path"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Dataset    string     `json:"dataset,omitempty"`
	Complexity string     `json:"complexity,omitempty"`
	Evidence   []Evidence `json:"evid_proposals"`
}

// Decision is the annotator's verdict on one evidence proposal
type Decision string

const (
	DecisionAccept      Decision = "accept"
	DecisionAdjust      Decision = "adjust"
	DecisionReject      Decision = "reject"
	DecisionNoGrounding Decision = "no_grounding"
)

// Decisions lists every decision tag in display order
func Decisions() []Decision {
	return []Decision{DecisionAccept, DecisionAdjust, DecisionReject, DecisionNoGrounding}
}

// Valid reports whether d is a known decision
func (d Decision) Valid() bool {
	switch d {
	case DecisionAccept, DecisionAdjust, DecisionReject, DecisionNoGrounding:
		return true
	}
	return false
}

// Adjustment describes how a box was edited before acceptance
type Adjustment string

const (
	AdjustmentNone   Adjustment = "none"
	AdjustmentMove   Adjustment = "move"
	AdjustmentResize Adjustment = "resize"
	AdjustmentBoth   Adjustment = "both"
)

// Tier is the grounding classification derived from a final box
type Tier string

const (
	TierTight       Tier = "tier1_tight"
	TierAnatomical  Tier = "tier2_anatomical"
	TierNoGrounding Tier = "tier3_no_grounding"
	TierRejected    Tier = "rejected"
)

// FlaggedNote is written to Record.Notes for flagged examples
const FlaggedNote = "FLAGGED"

// Record is one persisted annotation decision
type Record struct {
	ExampleID       string     `json:"example_id"`
	EvidIndex       int        `json:"evid_index"`
	Phrase          string     `json:"evid_phrase"`
	OriginalPhrase  string     `json:"original_evid"`
	ProposedBBox    Grounding  `json:"proposed_bbox"`
	FinalBBox       Grounding  `json:"final_bbox"`
	Decision        Decision   `json:"decision"`
	AdjustmentType  Adjustment `json:"adjustment_type"`
	RejectionReason *string    `json:"rejection_reason"`
	GroundingTier   Tier       `json:"grounding_tier"`
	AnnotatorID     string     `json:"annotator_id"`
	AnnotationTime  string     `json:"annotation_time"`
	TimeSpent       float64    `json:"time_spent"`
	Confidence      *float64   `json:"confidence"`
	Notes           *string    `json:"notes"`
	Question        string     `json:"question"`
	Answer          string     `json:"answer"`
}

// Key returns the record's uniqueness key
func (r Record) Key() Key {
	return Key{ExampleID: r.ExampleID, EvidIndex: r.EvidIndex}
}

// Key identifies one evidence of one example
type Key struct {
	ExampleID string
	EvidIndex int
}

// OtherReason is the catch-all reject reason that requires free text
const OtherReason = "Other (specify below)"

// RejectReasons returns the fixed reject reason list
func RejectReasons() []string {
	return []string{
		"Wrong anatomy",
		"Wrong laterality",
		"Hallucinated finding",
		"Modality mismatch",
		"Phrase-image mismatch",
		OtherReason,
	}
}
