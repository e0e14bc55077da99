// Package checkpoint persists orchestration snapshots so a crashed or
// paused run resumes without redoing completed cycles.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"prospector/internal/model"
)

// Store reads and writes checkpoints keyed by assignment signature
type Store struct {
	dir string
}

// NewStore creates a checkpoint store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes the checkpoint atomically: marshal to a temp file in the
// same directory, then rename over the previous snapshot. A crash
// mid-save leaves the previous checkpoint intact.
func (s *Store) Save(cp *model.Checkpoint) error {
	if cp.Signature == "" {
		return fmt.Errorf("checkpoint signature is empty")
	}
	cp.Version = model.CheckpointVersion
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close checkpoint: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(cp.Signature)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace checkpoint: %w", err)
	}

	return nil
}

// LoadLatest returns the checkpoint for the given assignment signature,
// or (nil, nil) when none exists. Unknown JSON fields are ignored, so
// minor schema additions stay backward-readable.
func (s *Store) LoadLatest(signature string) (*model.Checkpoint, error) {
	data, err := os.ReadFile(s.path(signature))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}

	if cp.Version > model.CheckpointVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported %d", cp.Version, model.CheckpointVersion)
	}
	if cp.Signature != signature {
		// A stale or foreign snapshot must never seed an unrelated run
		return nil, fmt.Errorf("checkpoint signature mismatch: %s != %s", cp.Signature, signature)
	}

	return &cp, nil
}

// Delete removes the checkpoint for a signature. Missing files are not
// an error.
func (s *Store) Delete(signature string) error {
	err := os.Remove(s.path(signature))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) path(signature string) string {
	return filepath.Join(s.dir, signature+".json")
}
