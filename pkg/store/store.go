// Package store persists recorded sessions and fixture blobs.
//
// One JSON blob per test file maps test identifiers to sessions. Response
// bodies above the externalization threshold live as individually
// addressable fixture blobs under a per-file namespace directory:
//
//	<dir>/<fileKey>.json
//	<dir>/fixtures/<fileKey>/<fixtureId>.json
//
// Blobs are validated against an embedded JSON schema on load; malformed
// blobs are reported as ErrCorrupt so the caller can fall back to an empty
// store and re-record instead of aborting the suite.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ha404/autorecord/pkg/interaction"
	"github.com/ha404/autorecord/pkg/logging"
)

// Store errors.
var (
	// ErrCorrupt marks an unreadable or schema-invalid session blob.
	ErrCorrupt = errors.New("store blob is corrupt")
	// ErrFixtureMissing marks a fixture reference with no backing blob.
	ErrFixtureMissing = errors.New("fixture blob not found")
)

// FileStore reads and writes session blobs and fixture blobs under one
// directory. It is safe for concurrent use by suites running over distinct
// file keys.
type FileStore struct {
	mu  sync.Mutex
	dir string
	log *slog.Logger
}

// New creates a FileStore rooted at dir. A nil logger discards output.
func New(dir string, log *slog.Logger) *FileStore {
	if log == nil {
		log = logging.Nop()
	}
	return &FileStore{dir: dir, log: log}
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string { return s.dir }

// BlobPath returns the session blob path for a test file key.
func (s *FileStore) BlobPath(fileKey string) string {
	return filepath.Join(s.dir, fileKey+".json")
}

func (s *FileStore) fixtureDir(fileKey string) string {
	return filepath.Join(s.dir, "fixtures", fileKey)
}

func (s *FileStore) fixturePath(fileKey, fixtureID string) string {
	return filepath.Join(s.fixtureDir(fileKey), fixtureID+".json")
}

// Load reads the session blob for fileKey. A missing blob yields an empty
// map. A malformed or schema-invalid blob also yields an empty map, with
// the problem reported as a wrapped ErrCorrupt so tests in the file
// re-record rather than the suite aborting.
func (s *FileStore) Load(fileKey string) (map[string]*interaction.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.BlobPath(fileKey))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*interaction.Session{}, nil
		}
		return nil, fmt.Errorf("failed to read store blob: %w", err)
	}

	if err := validateBlob(data); err != nil {
		s.log.Warn("discarding corrupt store blob", "fileKey", fileKey, "error", err)
		return map[string]*interaction.Session{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, fileKey, err)
	}

	sessions := map[string]*interaction.Session{}
	if err := json.Unmarshal(data, &sessions); err != nil {
		s.log.Warn("discarding corrupt store blob", "fileKey", fileKey, "error", err)
		return map[string]*interaction.Session{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, fileKey, err)
	}

	return sessions, nil
}

// Flush writes the full session map for fileKey atomically (tmp + rename),
// so a crash mid-write never corrupts previously persisted data.
func (s *FileStore) Flush(fileKey string, sessions map[string]*interaction.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	path := s.BlobPath(fileKey)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write store blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename store blob: %w", err)
	}

	return nil
}

// WriteFixture persists an externalized response body.
func (s *FileStore) WriteFixture(fileKey, fixtureID string, body any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.fixtureDir(fileKey), 0755); err != nil {
		return fmt.Errorf("failed to create fixture directory: %w", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal fixture %s: %w", fixtureID, err)
	}

	if err := os.WriteFile(s.fixturePath(fileKey, fixtureID), data, 0644); err != nil {
		return fmt.Errorf("failed to write fixture %s: %w", fixtureID, err)
	}

	return nil
}

// ReadFixture resolves a fixture reference to its stored body.
func (s *FileStore) ReadFixture(fileKey, fixtureID string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.fixturePath(fileKey, fixtureID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFixtureMissing, fixtureID)
		}
		return nil, fmt.Errorf("failed to read fixture %s: %w", fixtureID, err)
	}

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", fixtureID, err)
	}
	return body, nil
}

// DeleteFixture removes a fixture blob. Deleting an absent fixture is not
// an error.
func (s *FileStore) DeleteFixture(fileKey, fixtureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.fixturePath(fileKey, fixtureID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete fixture %s: %w", fixtureID, err)
	}
	return nil
}

// ListFixtures returns the fixture ids on disk for one file key, sorted.
func (s *FileStore) ListFixtures(fileKey string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globFixtureIDs(filepath.Join(s.fixtureDir(fileKey), "*.json"))
}

// ListAllFixtures returns every fixture id on disk keyed by file key.
func (s *FileStore) ListAllFixtures() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := doublestar.FilepathGlob(filepath.Join(s.dir, "fixtures", "**", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan fixtures: %w", err)
	}

	out := map[string][]string{}
	for _, m := range matches {
		rel, err := filepath.Rel(filepath.Join(s.dir, "fixtures"), m)
		if err != nil {
			continue
		}
		fileKey := filepath.ToSlash(filepath.Dir(rel))
		out[fileKey] = append(out[fileKey], strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	for k := range out {
		sort.Strings(out[k])
	}
	return out, nil
}

// ListBlobs returns the file keys that have a session blob on disk, sorted.
func (s *FileStore) ListBlobs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := doublestar.FilepathGlob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan store blobs: %w", err)
	}

	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) globFixtureIDs(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fixtures: %w", err)
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
