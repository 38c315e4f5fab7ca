package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("report not found")

// Store keeps one JSON file per job. Writes go through a temp file and
// rename so a poller never reads a half written job.
type Store struct {
	Dir string

	mu sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\.") {
		return "", fmt.Errorf("report id %q: %w", id, ErrNotFound)
	}
	return filepath.Join(s.Dir, id+".json"), nil
}

func (s *Store) Save(j *Job) error {
	path, err := s.path(j.ID)
	if err != nil {
		return err
	}

	content, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling job %q: %w", j.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.Dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for job %q: %w", j.ID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing job %q: %w", j.ID, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod job %q: %w", j.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing job %q: %w", j.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming job %q into place: %w", j.ID, err)
	}
	return nil
}

func (s *Store) Get(id string) (*Job, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("report %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("reading job %q: %w", id, err)
	}

	j := &Job{}
	if err := json.Unmarshal(content, j); err != nil {
		return nil, fmt.Errorf("unmarshalling job %q: %w", id, err)
	}
	return j, nil
}

// List returns every job, newest first.
func (s *Store) List() ([]*Job, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("globbing jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(matches))
	for _, path := range matches {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading job %q: %w", path, err)
		}
		j := &Job{}
		if err := json.Unmarshal(content, j); err != nil {
			return nil, fmt.Errorf("unmarshalling job %q: %w", path, err)
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs, nil
}

func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("report %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("deleting job %q: %w", id, err)
	}
	return nil
}
