package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const IndexFilename = "transcript_index.json"

var ErrNotArchived = errors.New("no artifact for video")

// Store keeps the artifact directory and its id to filename index. The index
// is the lookup path for everything downstream, artifacts themselves are the
// source of truth.
type Store struct {
	Dir string

	mu    sync.Mutex
	index map[string]string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}

	s := &Store{Dir: dir, index: map[string]string{}}

	content, err := os.ReadFile(filepath.Join(dir, IndexFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading index: %w", err)
	}
	if err := json.Unmarshal(content, &s.index); err != nil {
		return nil, fmt.Errorf("unmarshalling index: %w", err)
	}
	return s, nil
}

// Commit writes the artifact, unless doing so would replace an artifact that
// has a transcript with one that does not: a later pass without a transcript
// must never regress an earlier pass that got one. Returns whether the write
// happened.
func (s *Store) Commit(a *Artifact) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := a.VideoID()
	if !a.HasTranscript && id != "" {
		if existing, ok := s.index[id]; ok {
			content, err := os.ReadFile(filepath.Join(s.Dir, existing))
			if err == nil {
				// Parse rather than scanning for the marker text: a genuine
				// transcript may quote it.
				old, err := Parse(string(content))
				if err == nil && old.HasTranscript {
					log.Printf("[INFO]: keeping existing transcript for %q, skipping write of %q", id, a.Filename())
					return false, nil
				}
			}
		}
	}

	name := a.Filename()
	if err := writeFileAtomic(filepath.Join(s.Dir, name), []byte(a.Render())); err != nil {
		return false, fmt.Errorf("writing artifact %q: %w", name, err)
	}

	if id != "" {
		s.index[id] = name
		if err := s.writeIndex(); err != nil {
			return true, err
		}
	}
	return true, nil
}

// RebuildIndex re-derives the index from the artifacts on disk. When an id
// has several artifacts (the rank or title changed between passes) the one
// with a transcript wins, then the most recently modified.
func (s *Store) RebuildIndex() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("globbing artifacts: %w", err)
	}

	type entry struct {
		name          string
		hasTranscript bool
		modTime       int64
	}
	best := map[string]entry{}

	for _, path := range matches {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", path, err)
		}
		a, err := Parse(string(content))
		if err != nil {
			log.Printf("[WARN]: skipping unparsable artifact %q: %v", path, err)
			continue
		}
		id := a.VideoID()
		if id == "" {
			log.Printf("[WARN]: artifact %q has no usable video URL", path)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat artifact %q: %w", path, err)
		}
		e := entry{
			name:          filepath.Base(path),
			hasTranscript: a.HasTranscript,
			modTime:       info.ModTime().UnixNano(),
		}

		cur, ok := best[id]
		if !ok ||
			(e.hasTranscript && !cur.hasTranscript) ||
			(e.hasTranscript == cur.hasTranscript && e.modTime > cur.modTime) {
			best[id] = e
		}
	}

	s.index = make(map[string]string, len(best))
	for id, e := range best {
		s.index[id] = e.name
	}
	if err := s.writeIndex(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(s.index))
	for id, name := range s.index {
		out[id] = name
	}
	return out, nil
}

// Index returns a copy of the id to filename map.
func (s *Store) Index() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.index))
	for id, name := range s.index {
		out[id] = name
	}
	return out
}

// Load reads and parses the artifact for the id through the index.
func (s *Store) Load(id string) (*Artifact, error) {
	s.mu.Lock()
	name, ok := s.index[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("video %q: %w", id, ErrNotArchived)
	}

	content, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("reading artifact %q: %w", name, err)
	}
	return Parse(string(content))
}

// LoadAll reads every indexed artifact, ordered by id for stable output.
func (s *Store) LoadAll() ([]*Artifact, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	out := make([]*Artifact, 0, len(ids))
	for _, id := range ids {
		a, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) writeIndex() error {
	content, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.Dir, IndexFilename), content); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// writeFileAtomic writes through a temp file and rename so readers never see
// a partial file.
func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
