package proposer

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medveriground/bbox-annotator/pkg/imagery"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// scriptedClient answers by phrase
type scriptedClient struct {
	mu      sync.Mutex
	answers map[string]string
	prompts []string
}

func (c *scriptedClient) SimpleQuery(_ context.Context, model, prompt, imgB64 string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if imgB64 == "" {
		return "", errors.New("no image")
	}
	for phrase, answer := range c.answers {
		if strings.Contains(prompt, phrase) {
			if answer == "ERR" {
				return "", errors.New("model crashed")
			}
			return answer, nil
		}
	}
	return "I cannot tell.", nil
}

func TestParseGrounding(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    types.Grounding
		wantErr bool
	}{
		{"box", `{"bbox": [0.5, 0.4, 0.2, 0.1]}`, types.BoxGrounding(types.Box{CX: 0.5, CY: 0.4, W: 0.2, H: 0.1}), false},
		{"fenced sentinel", "```json\n{\"bbox\": \"NO_VISIBLE_GROUNDING\"}\n```", types.SentinelGrounding(), false},
		{"bare sentinel", "NO_VISIBLE_GROUNDING", types.SentinelGrounding(), false},
		{"clamped", `{"bbox": [1.2, -0.1, 0.5, 0.5]}`, types.BoxGrounding(types.Box{CX: 1, CY: 0, W: 0.5, H: 0.5}), false},
		{"empty box", `{"bbox": [0.5, 0.5, 0, 0.2]}`, types.SentinelGrounding(), false},
		{"null bbox", `{"bbox": null}`, types.SentinelGrounding(), false},
		{"missing bbox", `{"visible": false}`, types.SentinelGrounding(), false},
		{"prose", "The femur is in the lower half.", types.Grounding{}, true},
		{"wrong arity", `{"bbox": [0.5, 0.5]}`, types.Grounding{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGrounding(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPropose(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, imaging.Save(imaging.New(64, 64, color.White), filepath.Join(dir, "a.png")))

	c := &scriptedClient{answers: map[string]string{
		"femur":    `{"bbox": [0.5, 0.5, 0.2, 0.2]}`,
		"effusion": `{"bbox": "NO_VISIBLE_GROUNDING"}`,
		"crash":    "ERR",
	}}
	p := New(c, imagery.NewLoader(dir, 0), Config{Model: "m"})

	examples := []types.Example{
		{ID: "a", ImagePath: "a.png", Question: "fracture?", Evidence: []types.Evidence{
			{Phrase: "femur fracture"},
			{Phrase: "no effusion"},
			{Phrase: "crash here"},
			{Phrase: "kept", BBox: types.BoxGrounding(types.Box{CX: 0.1, CY: 0.1, W: 0.1, H: 0.1})},
			{Phrase: ""},
		}},
		{ID: "b", ImagePath: "missing.png", Evidence: []types.Evidence{{Phrase: "femur"}}},
	}

	out, st, err := p.Propose(context.Background(), examples)
	require.NoError(t, err)
	require.Len(t, out, 2)

	ev := out[0].Evidence
	assert.Equal(t, types.Boxed, ev[0].BBox.Kind)
	assert.True(t, ev[1].BBox.IsSentinel())
	assert.True(t, ev[2].BBox.IsSentinel(), "model failure falls back to the sentinel")
	assert.Equal(t, 0.1, ev[3].BBox.Box.CX, "existing boxes are kept")
	assert.True(t, ev[4].BBox.IsSentinel())
	assert.True(t, out[1].Evidence[0].BBox.IsSentinel())

	assert.Equal(t, Stats{Examples: 2, Evidence: 6, Boxed: 1, Sentinel: 3, Kept: 1, Failed: 1, NoImage: 1}, st)
	assert.Len(t, c.prompts, 3, "empty phrases are not sent")
	assert.Contains(t, c.prompts[0], `"fracture?"`)

	// input untouched
	assert.True(t, examples[0].Evidence[0].BBox.IsAbsent())
}

func TestProposeCancelled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, imaging.Save(imaging.New(8, 8, color.Black), filepath.Join(dir, "a.png")))
	p := New(&scriptedClient{}, imagery.NewLoader(dir, 0), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.Propose(ctx, []types.Example{{ImagePath: "a.png", Evidence: []types.Evidence{{Phrase: "x"}}}})
	assert.ErrorIs(t, err, context.Canceled)
}
