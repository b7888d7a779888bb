package record

import (
	"math"
	"time"

	"github.com/medveriground/bbox-annotator/pkg/types"
)

// TightAreaThreshold separates tight (tier 1) boxes from anatomical (tier 2)
// ones by normalized area
const TightAreaThreshold = 0.3

// GroundingTier classifies a final box
func GroundingTier(final types.Grounding) types.Tier {
	switch final.Kind {
	case types.Sentinel:
		return types.TierNoGrounding
	case types.Absent:
		return types.TierRejected
	}
	if final.Box.Area() < TightAreaThreshold {
		return types.TierTight
	}
	return types.TierAnatomical
}

// Input carries one review decision
type Input struct {
	Example         types.Example
	EvidIndex       int
	Decision        types.Decision
	Final           types.Grounding
	Adjustment      types.Adjustment
	RejectionReason string
	Flagged         bool
	StepStart       time.Time
}

// Builder turns review decisions into annotation records
type Builder struct {
	AnnotatorID string
	Clock       func() time.Time
}

// NewBuilder creates a Builder stamping records with the wall clock
func NewBuilder(annotatorID string) *Builder {
	return &Builder{AnnotatorID: annotatorID, Clock: time.Now}
}

// Build creates the record for in. The caller guarantees EvidIndex is in
// range and a reason is present for rejections.
func (b *Builder) Build(in Input) types.Record {
	now := b.now()
	evid := in.Example.Evidence[in.EvidIndex]

	adjustment := in.Adjustment
	if adjustment == "" {
		adjustment = types.AdjustmentNone
	}

	rec := types.Record{
		ExampleID:      in.Example.ID,
		EvidIndex:      in.EvidIndex,
		Phrase:         orNA(evid.Phrase),
		OriginalPhrase: orNA(evid.OriginalPhrase),
		ProposedBBox:   evid.BBox,
		FinalBBox:      in.Final,
		Decision:       in.Decision,
		AdjustmentType: adjustment,
		GroundingTier:  GroundingTier(in.Final),
		AnnotatorID:    b.AnnotatorID,
		AnnotationTime: now.Format("2006-01-02T15:04:05.000000"),
		TimeSpent:      elapsed(in.StepStart, now),
		Question:       orNA(in.Example.Question),
		Answer:         orNA(in.Example.Answer),
	}

	if in.Decision == types.DecisionReject {
		reason := in.RejectionReason
		rec.RejectionReason = &reason
	}
	if in.Flagged {
		note := types.FlaggedNote
		rec.Notes = &note
	}

	return rec
}

func (b *Builder) now() time.Time {
	if b.Clock == nil {
		return time.Now()
	}
	return b.Clock()
}

// elapsed returns seconds between start and now rounded to two decimals
func elapsed(start, now time.Time) float64 {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return math.Round(now.Sub(start).Seconds()*100) / 100
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
