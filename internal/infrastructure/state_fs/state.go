package state_fs

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/davarch/ci-wiki-sync/internal/domain"
)

// FSState remembers the last pipeline synced per watch target in a JSON file.
type FSState struct {
	fs   afero.Fs
	path string
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	PipelineID int64 `json:"pipeline_id"`
	SyncedAt   int64 `json:"synced_at"`
}

var _ domain.SyncState = (*FSState)(nil)

// Open reads the state at path; a missing file is an empty state.
func Open(fs afero.Fs, path string) (*FSState, error) {
	if path == "" {
		return nil, errors.New("state path is empty")
	}
	s := &FSState{fs: fs, path: path, now: time.Now, entries: make(map[string]entry)}

	b, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.entries); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FSState) LastSynced(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.PipelineID, ok
}

func (s *FSState) Record(_ context.Context, key string, pipelineID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{PipelineID: pipelineID, SyncedAt: s.now().Unix()}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}
