package session

import (
	"github.com/medveriground/bbox-annotator/pkg/geometry"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// View is a snapshot of everything an interface needs to present the
// current step
type View struct {
	State       State                `json:"state"`
	SubState    SubState             `json:"sub_state"`
	AnnotatorID string               `json:"annotator_id"`
	Position    Position             `json:"position"`
	Progress    Progress             `json:"progress"`
	Example     *types.Example       `json:"example,omitempty"`
	Evidence    *types.Evidence      `json:"evidence,omitempty"`
	EvidIndex   int                  `json:"evid_index"`
	Current     types.PixelGrounding `json:"current"`
	Original    types.PixelGrounding `json:"original"`
	// Normalized is the working box as it would be recorded on accept
	Normalized  *types.Grounding `json:"normalized,omitempty"`
	Adjusted    bool             `json:"adjusted"`
	Flagged     bool             `json:"flagged"`
	ImageWidth  int              `json:"image_width,omitempty"`
	ImageHeight int              `json:"image_height,omitempty"`
	ImageError  string           `json:"image_error,omitempty"`
	PersistMode string           `json:"persist_mode"`
	LastSave    *StatusView      `json:"last_save,omitempty"`
}

// StatusView is the displayable part of a persistence status
type StatusView struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// View returns the current snapshot
func (s *Session) View() View {
	v := View{
		State:       s.state,
		AnnotatorID: s.annotatorID,
		Position:    s.pos,
		Progress:    s.Progress(),
		Flagged:     s.flagged,
	}
	if s.persister != nil {
		v.PersistMode = string(s.persister.Mode())
	}
	if st, ok := s.LastStatus(); ok {
		v.LastSave = &StatusView{OK: st.OK, Message: st.Message}
	}
	if s.state != Active {
		return v
	}

	ex := s.examples[s.pos.Example]
	ev := ex.Evidence[s.pos.Evidence]
	v.SubState = s.SubState()
	v.Example = &ex
	v.Evidence = &ev
	v.EvidIndex = s.pos.Evidence
	v.Current = s.current
	v.Original = s.original
	v.Adjusted = s.Adjusted()

	if s.imageErr != nil {
		v.ImageError = s.imageErr.Error()
		return v
	}
	v.ImageWidth, v.ImageHeight = s.size.Width, s.size.Height
	if s.current.IsBoxed() {
		g := geometry.NormalizeGrounding(s.current, s.size.Height, s.size.Width)
		v.Normalized = &g
	}
	return v
}
