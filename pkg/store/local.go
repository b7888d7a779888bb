package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/medveriground/bbox-annotator/internal/utils"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

// LocalStore keeps one annotations_<id>.json file per annotator in Dir
type LocalStore struct {
	Dir string
}

// NewLocalStore creates a store rooted at dir ("" means the working directory)
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

// Mode implements Persister
func (s *LocalStore) Mode() Mode { return ModeLocal }

// Path returns the annotation file for an annotator
func (s *LocalStore) Path(annotatorID string) string {
	return filepath.Join(s.Dir, LocalFileName(annotatorID))
}

// LocalFileName is the conventional file name for an annotator's annotations
func LocalFileName(annotatorID string) string {
	return fmt.Sprintf("annotations_%s.json", utils.SanitizeFilename(annotatorID))
}

// Load reads previously saved annotations. A missing file is an empty history.
func (s *LocalStore) Load(annotatorID string) ([]types.Record, error) {
	data, err := os.ReadFile(s.Path(annotatorID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}
	return Decode(data)
}

// Persist overwrites the annotator's file with the full record sequence
func (s *LocalStore) Persist(_ context.Context, records []types.Record, annotatorID string) Status {
	st := Status{Mode: ModeLocal, Count: len(records), Attempts: 1}

	if err := s.write(records, annotatorID); err != nil {
		st.Err = err
		st.Message = fmt.Sprintf("Local save failed: %v", err)
		return st
	}

	st.OK = true
	st.Message = fmt.Sprintf("Saved %d annotations to %s", len(records), s.Path(annotatorID))
	return st
}

func (s *LocalStore) write(records []types.Record, annotatorID string) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}

	if s.Dir != "" {
		if err := utils.EnsureDir(s.Dir); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// readers only ever see a complete file
	path := s.Path(annotatorID)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".annotations-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write annotations: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace annotation file: %w", err)
	}
	return nil
}
