package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/medveriground/bbox-annotator/internal/utils"
	"github.com/medveriground/bbox-annotator/pkg/types"
)

var (
	// ErrNotFound is returned by a ContentStore when the file does not exist
	ErrNotFound = errors.New("remote content not found")
	// ErrConflict is returned by a ContentStore when the revision passed to
	// Put is no longer current
	ErrConflict = errors.New("remote revision conflict")
)

// Content is a remote file body and the revision it was read at
type Content struct {
	Data     []byte
	Revision string
}

// ContentStore is a versioned remote file store
type ContentStore interface {
	Get(ctx context.Context, path string) (Content, error)
	// Put creates or updates path. An empty revision creates the file.
	Put(ctx context.Context, path string, data []byte, message, revision string) error
}

// RemoteConfig tunes a RemoteStore
type RemoteConfig struct {
	Prefix      string
	Timeout     time.Duration
	MaxAttempts int
}

// RemoteStore merges the annotation sequence into the annotator's remote file
type RemoteStore struct {
	content ContentStore
	config  RemoteConfig
	clock   func() time.Time
}

// NewRemoteStore creates a RemoteStore over content
func NewRemoteStore(content ContentStore, cfg RemoteConfig) *RemoteStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "annotations"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RemoteStore{content: content, config: cfg, clock: time.Now}
}

// Mode implements Persister
func (s *RemoteStore) Mode() Mode { return ModeRemote }

// Path returns the remote file of an annotator
func (s *RemoteStore) Path(annotatorID string) string {
	return path.Join(s.config.Prefix, utils.SanitizeFilename(annotatorID)+".json")
}

// Load fetches the annotator's remote records. A missing file is empty.
func (s *RemoteStore) Load(ctx context.Context, annotatorID string) ([]types.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	existing, _, err := s.fetch(ctx, annotatorID)
	return existing, err
}

// Persist fetches the remote copy, merges records into it by key and uploads
// the result conditioned on the fetched revision. A revision conflict starts
// the cycle over, up to MaxAttempts.
func (s *RemoteStore) Persist(ctx context.Context, records []types.Record, annotatorID string) Status {
	st := Status{Mode: ModeRemote}

	var err error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		st.Attempts = attempt

		var merged []types.Record
		merged, err = s.persistOnce(ctx, records, annotatorID)
		if err == nil {
			st.OK = true
			st.Count = len(merged)
			st.Message = fmt.Sprintf("Auto-saved %d annotations to remote", len(merged))
			return st
		}
		if !errors.Is(err, ErrConflict) || ctx.Err() != nil {
			break
		}
	}

	st.Count = len(records)
	st.Err = err
	st.Message = fmt.Sprintf("Remote save failed: %v", err)
	return st
}

func (s *RemoteStore) persistOnce(ctx context.Context, records []types.Record, annotatorID string) ([]types.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	// an unreadable remote copy is treated as empty; a corrupt one keeps its
	// revision so the upload replaces it
	existing, revision, err := s.fetch(ctx, annotatorID)
	if err != nil {
		existing = nil
	}

	merged := Merge(existing, records)
	data, err := Encode(merged)
	if err != nil {
		return nil, err
	}

	if err := s.content.Put(ctx, s.Path(annotatorID), data, s.commitMessage(annotatorID, len(merged)), revision); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *RemoteStore) fetch(ctx context.Context, annotatorID string) ([]types.Record, string, error) {
	content, err := s.content.Get(ctx, s.Path(annotatorID))
	if errors.Is(err, ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("fetch remote annotations: %w", err)
	}

	records, err := Decode(content.Data)
	if err != nil {
		return nil, content.Revision, err
	}
	return records, content.Revision, nil
}

func (s *RemoteStore) commitMessage(annotatorID string, count int) string {
	return fmt.Sprintf("Auto-save: %s - %d annotations (%s)",
		annotatorID, count, s.clock().Format("2006-01-02 15:04"))
}
