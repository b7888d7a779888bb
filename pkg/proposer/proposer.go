// Package proposer asks a vision model to ground each evidence phrase of a
// Proposal Set, producing the boxes annotators later review.
package proposer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medveriground/bbox-annotator/pkg/client"
	"github.com/medveriground/bbox-annotator/pkg/imagery"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// DefaultPrompt asks for one normalized center box per phrase. It is a
// format string taking the question and the phrase.
const DefaultPrompt = `You are a radiology grounding assistant.

Question about the image: %q
Evidence phrase: %q

Return JSON only:
{"bbox": [cx, cy, w, h]}

RULES
- cx, cy are the box center, w, h its size, all normalized to [0,1] (NOT pixels).
- The box should tightly include the region the phrase refers to. If the phrase
  describes a whole organ or region, box that region.
- If the phrase has no visible location in the image (e.g. an absent finding,
  a negation, or a clinical history statement), return:
  {"bbox": "NO_VISIBLE_GROUNDING"}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config tunes a Proposer
type Config struct {
	Model   string
	Prompt  string
	MaxDim  int
	Quality int
	// Overwrite re-grounds evidence that already has a box or the sentinel
	Overwrite bool
}

// Stats counts what a Propose run produced
type Stats struct {
	Examples int `json:"examples"`
	Evidence int `json:"evidence"`
	Boxed    int `json:"boxed"`
	Sentinel int `json:"sentinel"`
	Kept     int `json:"kept"`
	Failed   int `json:"failed"`
	NoImage  int `json:"no_image"`
}

// Proposer grounds evidence phrases with a vision model
type Proposer struct {
	client client.VisionClient
	images *imagery.Loader
	config Config
}

// New creates a Proposer reading images through images
func New(c client.VisionClient, images *imagery.Loader, cfg Config) *Proposer {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.MaxDim <= 0 {
		cfg.MaxDim = 1024
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 90
	}
	return &Proposer{client: c, images: images, config: cfg}
}

// Propose fills the bbox of every evidence in examples. Model or parse
// failures yield the sentinel for that evidence and are counted, not
// returned; only context cancellation aborts the run.
func (p *Proposer) Propose(ctx context.Context, examples []types.Example) ([]types.Example, Stats, error) {
	out := make([]types.Example, len(examples))
	st := Stats{Examples: len(examples)}

	for i, ex := range examples {
		ex.Evidence = append([]types.Evidence(nil), ex.Evidence...)
		out[i] = ex

		pending := p.pending(ex, &st)
		if len(pending) == 0 {
			continue
		}

		img, err := p.images.Load(ex.ImagePath)
		if err != nil {
			for _, j := range pending {
				out[i].Evidence[j].BBox = types.SentinelGrounding()
				st.NoImage++
			}
			continue
		}
		imgB64, err := imagery.EncodeBase64(img, p.config.MaxDim, p.config.Quality)
		if err != nil {
			return nil, st, fmt.Errorf("encode %s: %w", ex.ImagePath, err)
		}

		for _, j := range pending {
			if err := ctx.Err(); err != nil {
				return nil, st, err
			}
			g, err := p.ground(ctx, imgB64, ex.Question, ex.Evidence[j].Phrase)
			if err != nil {
				if ctx.Err() != nil {
					return nil, st, ctx.Err()
				}
				st.Failed++
				g = types.SentinelGrounding()
			}
			out[i].Evidence[j].BBox = g
			if g.IsSentinel() {
				st.Sentinel++
			} else {
				st.Boxed++
			}
		}
	}

	return out, st, nil
}

// pending lists the evidence indexes of ex that need a model answer: those
// without a bbox, or all of them with Overwrite
func (p *Proposer) pending(ex types.Example, st *Stats) []int {
	var idx []int
	for j, ev := range ex.Evidence {
		st.Evidence++
		if !ev.BBox.IsAbsent() && !p.config.Overwrite {
			st.Kept++
			continue
		}
		idx = append(idx, j)
	}
	return idx
}

func (p *Proposer) ground(ctx context.Context, imgB64, question, phrase string) (types.Grounding, error) {
	if strings.TrimSpace(phrase) == "" {
		return types.SentinelGrounding(), nil
	}

	prompt := fmt.Sprintf(p.config.Prompt, question, phrase)
	raw, err := p.client.SimpleQuery(ctx, p.config.Model, prompt, imgB64)
	if err != nil {
		return types.Grounding{}, err
	}
	return ParseGrounding(raw)
}

// ParseGrounding reads a model answer of the form {"bbox": [cx, cy, w, h]}
// or {"bbox": "NO_VISIBLE_GROUNDING"}. Components are clamped to [0,1]; an
// empty box becomes the sentinel.
func ParseGrounding(raw string) (types.Grounding, error) {
	cleaned := client.SanitizeJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		if strings.Contains(raw, types.NoVisibleGrounding) {
			return types.SentinelGrounding(), nil
		}
		return types.Grounding{}, fmt.Errorf("no JSON object in model answer")
	}

	var answer struct {
		BBox json.RawMessage `json:"bbox"`
	}
	if err := json.Unmarshal([]byte(cleaned), &answer); err != nil {
		return types.Grounding{}, fmt.Errorf("parse model answer: %w", err)
	}

	var g types.Grounding
	if len(answer.BBox) == 0 {
		return types.SentinelGrounding(), nil
	}
	if err := json.Unmarshal(answer.BBox, &g); err != nil {
		return types.Grounding{}, fmt.Errorf("parse bbox: %w", err)
	}
	if g.Kind != types.Boxed {
		return types.SentinelGrounding(), nil
	}

	b := types.Box{
		CX: clamp(g.Box.CX, 0, 1),
		CY: clamp(g.Box.CY, 0, 1),
		W:  clamp(g.Box.W, 0, 1),
		H:  clamp(g.Box.H, 0, 1),
	}
	if b.W == 0 || b.H == 0 {
		return types.SentinelGrounding(), nil
	}
	return types.BoxGrounding(b), nil
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
