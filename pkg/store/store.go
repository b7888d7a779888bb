// Package store persists the annotation sequence after every decision,
// either to a local JSON file or to a remote content store where it is
// merged with the annotator's existing remote copy.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medveriground/bbox-annotator/pkg/types"
)

// Mode names the persistence path a Status came from
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Status is the outcome of one Persist call. Persistence failures never
// stop a session; callers log and display the status instead.
type Status struct {
	Mode     Mode   `json:"mode"`
	OK       bool   `json:"ok"`
	Count    int    `json:"count"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
	Err      error  `json:"-"`
}

// Persister writes the full annotation sequence of one annotator
type Persister interface {
	Persist(ctx context.Context, records []types.Record, annotatorID string) Status
	Mode() Mode
}

// Merge appends to existing every record of incoming whose key is not yet
// present, preserving order. Duplicate keys already inside existing are
// collapsed to their first occurrence.
func Merge(existing, incoming []types.Record) []types.Record {
	seen := make(map[types.Key]struct{}, len(existing)+len(incoming))
	out := make([]types.Record, 0, len(existing)+len(incoming))

	for _, batch := range [][]types.Record{existing, incoming} {
		for _, r := range batch {
			k := r.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// Encode renders records the way they are stored on disk and remotely
func Encode(records []types.Record) ([]byte, error) {
	if records == nil {
		records = []types.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal annotations: %w", err)
	}
	return data, nil
}

// Decode parses a stored annotation array
func Decode(data []byte) ([]types.Record, error) {
	var records []types.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse annotations: %w", err)
	}
	return records, nil
}
