// Package session holds the state of one annotator working through a
// Proposal Set: the current evidence, the box being edited, the flag and the
// growing record sequence that is persisted after every decision.
//
// A Session is not safe for concurrent use.
package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/medveriground/bbox-annotator/pkg/imagery"
	"github.com/medveriground/bbox-annotator/pkg/record"
	"github.com/medveriground/bbox-annotator/pkg/store"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

var (
	// ErrNotActive is returned by mutators called before a successful Load or
	// after the last evidence has been reviewed
	ErrNotActive = errors.New("session is not active")
	// ErrAlreadyLoaded is returned by Load on a session that left Uninitialized
	ErrAlreadyLoaded = errors.New("session already loaded")
	// ErrDialogPending is returned while a reject reason is being collected
	ErrDialogPending = errors.New("reject dialog pending")
	// ErrNoDialog is returned by ConfirmReject/CancelReject without BeginReject
	ErrNoDialog = errors.New("no reject dialog open")
	// ErrReasonRequired is returned when a reject is confirmed without a reason
	ErrReasonRequired = errors.New("rejection reason required")
	// ErrUnknownReason is returned for a reason outside the fixed list
	ErrUnknownReason = errors.New("unknown rejection reason")
	// ErrUnknownDecision is returned by Decide for an unrecognised tag
	ErrUnknownDecision = errors.New("unknown decision")
	// ErrNoBox is returned by edits when the current evidence has no box
	ErrNoBox = errors.New("current evidence has no box to edit")
	// ErrImageUnavailable is returned when an operation needs the dimensions
	// of an image that could not be read
	ErrImageUnavailable = errors.New("image unavailable")
)

// State is the lifecycle state of a session
type State int

const (
	Uninitialized State = iota
	Active
	Complete
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Complete:
		return "complete"
	default:
		return "uninitialized"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SubState refines Active
type SubState int

const (
	// Viewing means the box is as loaded
	Viewing SubState = iota
	// Editing means the box was moved or resized
	Editing
	// DialogPending means a reject reason is being collected
	DialogPending
)

func (s SubState) String() string {
	switch s {
	case Editing:
		return "editing"
	case DialogPending:
		return "dialog_pending"
	default:
		return "viewing"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s SubState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Position addresses one evidence of one example. Once the session is
// complete Example equals the number of examples.
type Position struct {
	Example  int `json:"example"`
	Evidence int `json:"evidence"`
}

// Option configures a Session
type Option func(*Session)

// WithClock overrides the wall clock used for timing and timestamps
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithSizer overrides how image dimensions are looked up. By default they
// are read from the images directory given to Load.
func WithSizer(sizer imagery.Sizer) Option {
	return func(s *Session) { s.sizer = sizer }
}

// WithPersister sets where records go after every decision. The default is
// the local store.
func WithPersister(p store.Persister) Option {
	return func(s *Session) { s.persister = p }
}

// WithLocalStore sets the store previous annotations are resumed from
func WithLocalStore(ls *store.LocalStore) Option {
	return func(s *Session) { s.local = ls }
}

// Session is the annotation state machine
type Session struct {
	clock     func() time.Time
	sizer     imagery.Sizer
	persister store.Persister
	local     *store.LocalStore
	builder   *record.Builder

	state       State
	annotatorID string
	imagesDir   string
	examples    []types.Example
	records     []types.Record
	resumed     int

	pos           Position
	size          imagery.Size
	imageErr      error
	current       types.PixelGrounding
	original      types.PixelGrounding
	flagged       bool
	stepStart     time.Time
	rejectPending bool
	lastStatus    *store.Status
}

// New creates an uninitialized session
func New(opts ...Option) *Session {
	s := &Session{clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.local == nil {
		s.local = store.NewLocalStore("")
	}
	if s.persister == nil {
		s.persister = s.local
	}
	return s
}

// State returns the lifecycle state
func (s *Session) State() State { return s.state }

// SubState returns the working box sub-state. It is only meaningful while
// Active.
func (s *Session) SubState() SubState {
	switch {
	case s.rejectPending:
		return DialogPending
	case !s.current.Equal(s.original):
		return Editing
	default:
		return Viewing
	}
}

// Position returns the current position
func (s *Session) Position() Position { return s.pos }

// AnnotatorID returns the annotator the session was loaded for
func (s *Session) AnnotatorID() string { return s.annotatorID }

// PersistMode reports where decisions are persisted
func (s *Session) PersistMode() store.Mode { return s.persister.Mode() }

// Flagged reports whether the current example is flagged for review
func (s *Session) Flagged() bool { return s.flagged }

// Current returns the box under review in pixel corners
func (s *Session) Current() types.PixelGrounding { return s.current }

// Original returns the box as it was at step entry
func (s *Session) Original() types.PixelGrounding { return s.original }

// Adjusted reports whether the working box differs from the original
func (s *Session) Adjusted() bool { return !s.current.Equal(s.original) }

// Example returns the current example
func (s *Session) Example() (types.Example, bool) {
	if s.state != Active {
		return types.Example{}, false
	}
	return s.examples[s.pos.Example], true
}

// Evidence returns the current evidence proposal
func (s *Session) Evidence() (types.Evidence, bool) {
	ex, ok := s.Example()
	if !ok {
		return types.Evidence{}, false
	}
	return ex.Evidence[s.pos.Evidence], true
}

// ImagePath returns the file of the current example's image
func (s *Session) ImagePath() (string, bool) {
	ex, ok := s.Example()
	if !ok {
		return "", false
	}
	return filepath.Join(s.imagesDir, filepath.FromSlash(ex.ImagePath)), true
}

// ImageSize returns the current image's dimensions, or the error that
// prevented reading them
func (s *Session) ImageSize() (imagery.Size, error) {
	if s.imageErr != nil {
		return imagery.Size{}, s.imageErr
	}
	return s.size, nil
}

// Records returns a copy of the in-memory record sequence
func (s *Session) Records() []types.Record {
	out := make([]types.Record, len(s.records))
	copy(out, s.records)
	return out
}

// LastStatus returns the outcome of the most recent persistence attempt
func (s *Session) LastStatus() (store.Status, bool) {
	if s.lastStatus == nil {
		return store.Status{}, false
	}
	return *s.lastStatus, true
}

// Examples returns the number of examples in the Proposal Set
func (s *Session) Examples() int { return len(s.examples) }

// Progress counts reviewed evidence positions
type Progress struct {
	Done     int `json:"done"`
	Total    int `json:"total"`
	Example  int `json:"example"`
	Examples int `json:"examples"`
	Evidence int `json:"evidence"`
	// Evidences is the evidence count of the current example
	Evidences int `json:"evidences"`
	Records   int `json:"records"`
}

// Progress reports how far through the Proposal Set the session is
func (s *Session) Progress() Progress {
	p := Progress{
		Total:    s.totalEvidence(),
		Examples: len(s.examples),
		Records:  len(s.records),
	}

	switch s.state {
	case Active:
		p.Done = s.offset(s.pos)
		p.Example = s.pos.Example + 1
		p.Evidence = s.pos.Evidence + 1
		p.Evidences = len(s.examples[s.pos.Example].Evidence)
	case Complete:
		p.Done = p.Total
		p.Example = len(s.examples)
	}
	return p
}

func (s *Session) totalEvidence() int {
	n := 0
	for _, ex := range s.examples {
		n += len(ex.Evidence)
	}
	return n
}

// offset is the flat evidence index of pos
func (s *Session) offset(pos Position) int {
	n := 0
	for i := 0; i < pos.Example && i < len(s.examples); i++ {
		n += len(s.examples[i].Evidence)
	}
	return n + pos.Evidence
}

// seek moves to the evidence at flat offset n, completing the session when n
// is past the end
func (s *Session) seek(n int) {
	for i, ex := range s.examples {
		if n < len(ex.Evidence) {
			s.pos = Position{Example: i, Evidence: n}
			s.state = Active
			s.enterStep()
			return
		}
		n -= len(ex.Evidence)
	}
	s.complete()
}

// enterStep loads the working box of the current evidence
func (s *Session) enterStep() {
	ex := s.examples[s.pos.Example]
	ev := ex.Evidence[s.pos.Evidence]

	s.size, s.imageErr = imagery.Size{}, nil
	s.rejectPending = false
	s.stepStart = s.clock()

	if ev.BBox.Kind != types.Boxed {
		s.current = types.PixelGrounding{Kind: ev.BBox.Kind}
		s.original = s.current
		return
	}

	size, err := s.sizer.Size(ex.ImagePath)
	if err != nil {
		s.imageErr = fmt.Errorf("%w: %s: %v", ErrImageUnavailable, ex.ImagePath, err)
		s.current = types.PixelGrounding{Kind: types.Boxed}
		s.original = s.current
		return
	}

	s.size = size
	s.current = denormalize(ev.BBox, size)
	s.original = s.current
}

func (s *Session) complete() {
	s.state = Complete
	s.pos = Position{Example: len(s.examples)}
	s.current, s.original = types.PixelGrounding{}, types.PixelGrounding{}
	s.size, s.imageErr = imagery.Size{}, nil
	s.rejectPending = false
	s.flagged = false
}
