package report

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestJobTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		wantErr bool
	}{
		{from: StatusPending, to: StatusProcessing},
		{from: StatusPending, to: StatusCompleted, wantErr: true},
		{from: StatusPending, to: StatusFailed, wantErr: true},
		{from: StatusProcessing, to: StatusCompleted},
		{from: StatusProcessing, to: StatusFailed},
		{from: StatusProcessing, to: StatusPending, wantErr: true},
		{from: StatusCompleted, to: StatusProcessing, wantErr: true},
		{from: StatusCompleted, to: StatusFailed, wantErr: true},
		{from: StatusFailed, to: StatusProcessing, wantErr: true},
		{from: StatusFailed, to: StatusCompleted, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			j := &Job{ID: "x", Status: tt.from}
			err := j.Transition(tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrBadTransition) {
					t.Errorf("error %v is not ErrBadTransition", err)
				}
				if j.Status != tt.from {
					t.Errorf("status changed to %s on rejected transition", j.Status)
				}
			} else if j.Status != tt.to {
				t.Errorf("status = %s, want %s", j.Status, tt.to)
			}
		})
	}
}

func TestJobFailTruncatesError(t *testing.T) {
	j := &Job{ID: "x", Status: StatusProcessing}
	long := strings.Repeat("失败", 300)
	if err := j.Fail(errors.New(long)); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if j.Status != StatusFailed {
		t.Errorf("status = %s, want failed", j.Status)
	}
	if got := utf8.RuneCountInString(j.Error); got != MaxErrorLen {
		t.Errorf("error length = %d runes, want %d", got, MaxErrorLen)
	}
	if !utf8.ValidString(j.Error) {
		t.Error("truncation produced invalid utf8")
	}
}

func TestJobFailFromTerminalRefused(t *testing.T) {
	j := &Job{ID: "x", Status: StatusCompleted, Report: "done"}
	if err := j.Fail(errors.New("late failure")); err == nil {
		t.Fatal("Fail() on a completed job succeeded")
	}
	if j.Status != StatusCompleted || j.Error != "" {
		t.Errorf("terminal job mutated: %+v", j)
	}
}
