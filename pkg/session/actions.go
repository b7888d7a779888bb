package session

import (
	"context"
	"slices"
	"strings"

	"github.com/medveriground/bbox-annotator/pkg/geometry"
	"github.com/medveriground/bbox-annotator/pkg/imagery"
	"github.com/medveriground/bbox-annotator/pkg/record"
	"github.com/medveriground/bbox-annotator/pkg/store"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// Outcome is the result of a decision
type Outcome struct {
	Record   types.Record `json:"record"`
	Persist  store.Status `json:"persist"`
	Complete bool         `json:"complete"`
}

func denormalize(g types.Grounding, size imagery.Size) types.PixelGrounding {
	return geometry.Denormalize(g, size.Height, size.Width)
}

// editable checks that the working box may be changed
func (s *Session) editable() error {
	if err := s.ready(); err != nil {
		return err
	}
	if !s.current.IsBoxed() {
		return ErrNoBox
	}
	return s.imageErr
}

// ready checks that the session is Active outside the reject dialog
func (s *Session) ready() error {
	if s.state != Active {
		return ErrNotActive
	}
	if s.rejectPending {
		return ErrDialogPending
	}
	return nil
}

// Advance moves to the next evidence, or to the first evidence of the next
// example (clearing the flag), or completes the session
func (s *Session) Advance() error {
	if err := s.ready(); err != nil {
		return err
	}
	s.advance()
	return nil
}

func (s *Session) advance() {
	ex := s.examples[s.pos.Example]
	if s.pos.Evidence+1 < len(ex.Evidence) {
		s.pos.Evidence++
		s.enterStep()
		return
	}

	s.flagged = false
	for i := s.pos.Example + 1; i < len(s.examples); i++ {
		if len(s.examples[i].Evidence) > 0 {
			s.pos = Position{Example: i}
			s.enterStep()
			return
		}
	}
	s.complete()
}

// Skip advances without creating a record
func (s *Session) Skip() error {
	return s.Advance()
}

// Move translates the working box, saturating at the image edges
func (s *Session) Move(dx, dy int) error {
	if err := s.editable(); err != nil {
		return err
	}
	moved, _ := geometry.Move(s.current.Box, dx, dy, s.size.Width, s.size.Height)
	s.current.Box = moved
	return nil
}

// Resize replaces the working box corners, clamped to the image with a
// minimum size per axis
func (s *Session) Resize(box types.PixelBox) error {
	if err := s.editable(); err != nil {
		return err
	}
	s.current.Box = geometry.Resize(box, s.size.Width, s.size.Height)
	return nil
}

// Reset restores the box loaded at step entry
func (s *Session) Reset() error {
	if err := s.ready(); err != nil {
		return err
	}
	s.current = s.original
	return nil
}

// SetFlagged marks the current example for review. The flag is kept across
// the evidences of an example.
func (s *Session) SetFlagged(flagged bool) error {
	if s.state != Active {
		return ErrNotActive
	}
	s.flagged = flagged
	return nil
}

// Decide applies a decision by tag. DecisionReject only opens the reject
// dialog and returns a nil Outcome; ConfirmReject finishes it.
func (s *Session) Decide(ctx context.Context, d types.Decision) (*Outcome, error) {
	switch d {
	case types.DecisionAccept, types.DecisionAdjust:
		return s.Accept(ctx)
	case types.DecisionNoGrounding:
		return s.NoGrounding(ctx)
	case types.DecisionReject:
		return nil, s.BeginReject()
	default:
		return nil, ErrUnknownDecision
	}
}

// Accept records the working box. The decision is adjust when the box
// differs from the one loaded at step entry, accept otherwise.
func (s *Session) Accept(ctx context.Context) (*Outcome, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	decision := types.DecisionAccept
	adjustment := types.AdjustmentNone
	final := types.Grounding{Kind: s.current.Kind}

	if s.current.IsBoxed() {
		if s.imageErr != nil {
			return nil, s.imageErr
		}
		if s.Adjusted() {
			decision = types.DecisionAdjust
			adjustment = geometry.AdjustmentOf(s.original, s.current)
		}
		final = geometry.NormalizeGrounding(s.current, s.size.Height, s.size.Width)
	}

	return s.commit(ctx, record.Input{
		Decision:   decision,
		Final:      final,
		Adjustment: adjustment,
	}), nil
}

// NoGrounding records the sentinel whatever the working box is
func (s *Session) NoGrounding(ctx context.Context) (*Outcome, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.commit(ctx, record.Input{
		Decision: types.DecisionNoGrounding,
		Final:    types.SentinelGrounding(),
	}), nil
}

// BeginReject opens the reject dialog
func (s *Session) BeginReject() error {
	if err := s.ready(); err != nil {
		return err
	}
	s.rejectPending = true
	return nil
}

// CancelReject closes the reject dialog without a record. Edits made before
// the dialog opened are kept.
func (s *Session) CancelReject() error {
	if s.state != Active {
		return ErrNotActive
	}
	if !s.rejectPending {
		return ErrNoDialog
	}
	s.rejectPending = false
	return nil
}

// ConfirmReject records a rejection with an absent final box. reason must be
// one of types.RejectReasons; for the catch-all option the free text detail
// becomes the recorded reason and must not be empty.
func (s *Session) ConfirmReject(ctx context.Context, reason, detail string) (*Outcome, error) {
	if s.state != Active {
		return nil, ErrNotActive
	}
	if !s.rejectPending {
		return nil, ErrNoDialog
	}

	resolved, err := resolveReason(reason, detail)
	if err != nil {
		return nil, err
	}

	s.rejectPending = false
	return s.commit(ctx, record.Input{
		Decision:        types.DecisionReject,
		Final:           types.Grounding{},
		RejectionReason: resolved,
	}), nil
}

func resolveReason(reason, detail string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", ErrReasonRequired
	}
	if !slices.Contains(types.RejectReasons(), reason) {
		return "", ErrUnknownReason
	}
	if reason == types.OtherReason {
		detail = strings.TrimSpace(detail)
		if detail == "" {
			return "", ErrReasonRequired
		}
		return detail, nil
	}
	return reason, nil
}

// commit builds the record for the current evidence, appends it, persists
// the whole sequence and advances
func (s *Session) commit(ctx context.Context, in record.Input) *Outcome {
	in.Example = s.examples[s.pos.Example]
	in.EvidIndex = s.pos.Evidence
	in.Flagged = s.flagged
	in.StepStart = s.stepStart

	rec := s.builder.Build(in)
	s.records = append(s.records, rec)

	status := s.persister.Persist(ctx, s.Records(), s.annotatorID)
	s.lastStatus = &status

	s.advance()

	return &Outcome{
		Record:   rec,
		Persist:  status,
		Complete: s.state == Complete,
	}
}
