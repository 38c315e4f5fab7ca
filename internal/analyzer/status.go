package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Pipeline phases and states as written to the status file.
const (
	PhaseFilter  = "filter"
	PhaseProcess = "process"
	PhaseWhisper = "whisper"

	StateFiltering  = "filtering"
	StateProcessing = "processing"
	StateIdle       = "idle"
)

const (
	StatusFilename  = "status.json"
	HistoryFilename = "status_history.json"

	// historyLimit bounds the completed-run history.
	historyLimit = 100
)

type Status struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Status      string `json:"status"`
	Phase       string `json:"phase"`
	FailedCount int    `json:"failed_count"`
	Channel     string `json:"channel,omitempty"`
	UpdatedAt   string `json:"updatedAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// StatusWriter records pipeline progress for pollers. The status file is
// replaced atomically on every update, completed runs are appended to a
// bounded history.
type StatusWriter struct {
	Dir     string
	Channel string

	// Now is the clock, replaced in tests.
	Now func() time.Time
}

func NewStatusWriter(dir, channel string) *StatusWriter {
	return &StatusWriter{Dir: dir, Channel: channel, Now: time.Now}
}

// Write updates the status file. A nil writer is a no-op so callers don't
// have to guard every progress update.
func (w *StatusWriter) Write(current, total int, state, phase string, failed int) {
	if w == nil || w.Dir == "" {
		return
	}

	now := w.Now().UTC().Format(time.RFC3339)
	s := Status{
		Current:     current,
		Total:       total,
		Status:      state,
		Phase:       phase,
		FailedCount: failed,
		Channel:     w.Channel,
		UpdatedAt:   now,
	}

	if err := w.writeJSON(filepath.Join(w.Dir, StatusFilename), s); err != nil {
		log.Printf("[WARN]: writing status: %v", err)
		return
	}

	// A run just finished, remember it.
	if state == StateIdle && total > 0 {
		s.CompletedAt = now
		if err := w.appendHistory(s); err != nil {
			log.Printf("[WARN]: appending status history: %v", err)
		}
	}
}

func (w *StatusWriter) appendHistory(s Status) error {
	path := filepath.Join(w.Dir, HistoryFilename)

	var hist []Status
	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading history: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(content, &hist); err != nil {
			log.Printf("[WARN]: resetting corrupt status history: %v", err)
			hist = nil
		}
	}

	hist = append(hist, s)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	return w.writeJSON(path, hist)
}

func (w *StatusWriter) writeJSON(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %q: %w", path, err)
	}
	return writeFileAtomic(path, content)
}

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
