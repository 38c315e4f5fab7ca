// Package report generates multi-video analysis reports through a polled
// four-state job machine, and answers free-form questions over the archived
// transcripts.
package report

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Mode string

const (
	ModeFilter Mode = "filter"
	ModeNL     Mode = "nl"
)

// MaxErrorLen caps the failure message stored on a job.
const MaxErrorLen = 200

var ErrBadTransition = errors.New("invalid job transition")

type Job struct {
	ID                  string    `json:"id"`
	Status              Status    `json:"status"`
	Mode                Mode      `json:"mode"`
	Title               string    `json:"title"`
	SelectedCount       int       `json:"selected_count"`
	WithTranscriptCount int       `json:"with_transcript_count"`
	VideoTitles         []string  `json:"video_titles,omitempty"`
	Report              string    `json:"report,omitempty"`
	Error               string    `json:"error,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Transition moves the job along pending -> processing -> completed|failed.
// Completed and failed are terminal, nothing moves out of them.
func (j *Job) Transition(to Status) error {
	ok := false
	switch j.Status {
	case StatusPending:
		ok = to == StatusProcessing
	case StatusProcessing:
		ok = to == StatusCompleted || to == StatusFailed
	}
	if !ok {
		return fmt.Errorf("job %s: %s -> %s: %w", j.ID, j.Status, to, ErrBadTransition)
	}

	j.Status = to
	return nil
}

// Fail moves the job to failed with a bounded error message.
func (j *Job) Fail(err error) error {
	if terr := j.Transition(StatusFailed); terr != nil {
		return terr
	}
	j.Error = truncateRunes(err.Error(), MaxErrorLen)
	return nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
