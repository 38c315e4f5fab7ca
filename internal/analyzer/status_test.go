package analyzer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedWriter(t *testing.T) *StatusWriter {
	t.Helper()
	w := NewStatusWriter(t.TempDir(), "UCtest")
	w.Now = func() time.Time {
		return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	}
	return w
}

func readStatus(t *testing.T, dir string) Status {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, StatusFilename))
	if err != nil {
		t.Fatalf("reading status: %v", err)
	}
	s := Status{}
	if err := json.Unmarshal(content, &s); err != nil {
		t.Fatalf("unmarshalling status: %v", err)
	}
	return s
}

func TestStatusWrite(t *testing.T) {
	w := fixedWriter(t)
	w.Write(3, 10, StateProcessing, PhaseProcess, 1)

	s := readStatus(t, w.Dir)
	if s.Current != 3 || s.Total != 10 {
		t.Errorf("progress = %d/%d, want 3/10", s.Current, s.Total)
	}
	if s.Status != StateProcessing || s.Phase != PhaseProcess {
		t.Errorf("state = %s/%s, want processing/process", s.Status, s.Phase)
	}
	if s.FailedCount != 1 {
		t.Errorf("failed = %d, want 1", s.FailedCount)
	}
	if s.Channel != "UCtest" {
		t.Errorf("channel = %q, want UCtest", s.Channel)
	}
}

func TestStatusHistoryOnCompletion(t *testing.T) {
	w := fixedWriter(t)

	// In-progress updates leave no history.
	w.Write(1, 2, StateProcessing, PhaseProcess, 0)
	if _, err := os.Stat(filepath.Join(w.Dir, HistoryFilename)); err == nil {
		t.Fatal("history written for an in-progress update")
	}

	w.Write(2, 2, StateIdle, PhaseProcess, 0)
	w.Write(5, 5, StateIdle, PhaseFilter, 1)

	content, err := os.ReadFile(filepath.Join(w.Dir, HistoryFilename))
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	var hist []Status
	if err := json.Unmarshal(content, &hist); err != nil {
		t.Fatalf("unmarshalling history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history has %d entries, want 2", len(hist))
	}
	if hist[1].Phase != PhaseFilter || hist[1].CompletedAt == "" {
		t.Errorf("last entry = %+v, want completed filter run", hist[1])
	}
}

func TestStatusHistoryBounded(t *testing.T) {
	w := fixedWriter(t)
	for i := 0; i < historyLimit+20; i++ {
		w.Write(1, 1, StateIdle, PhaseProcess, 0)
	}

	content, err := os.ReadFile(filepath.Join(w.Dir, HistoryFilename))
	if err != nil {
		t.Fatalf("reading history: %v", err)
	}
	var hist []Status
	if err := json.Unmarshal(content, &hist); err != nil {
		t.Fatalf("unmarshalling history: %v", err)
	}
	if len(hist) != historyLimit {
		t.Errorf("history has %d entries, want %d", len(hist), historyLimit)
	}
}

func TestStatusNilWriterIsNoop(t *testing.T) {
	var w *StatusWriter
	w.Write(1, 1, StateIdle, PhaseProcess, 0) // Must not panic.
}

func TestStatusZeroTotalSkipsHistory(t *testing.T) {
	w := fixedWriter(t)
	w.Write(0, 0, StateIdle, PhaseWhisper, 0)
	if _, err := os.Stat(filepath.Join(w.Dir, HistoryFilename)); err == nil {
		t.Error("history written for an empty run")
	}
}
