package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/opslilyhuang/videoanalysis/internal/archive"
	"github.com/opslilyhuang/videoanalysis/internal/extract"
	"github.com/opslilyhuang/videoanalysis/internal/quota"
	"github.com/opslilyhuang/videoanalysis/internal/score"
	"github.com/opslilyhuang/videoanalysis/internal/tube"
)

// Process runs the acquisition phase over the persisted candidate list: one
// transcript attempt per candidate, an artifact committed either way, and a
// failed list for retries. The whole batch is charged against the quota up
// front, a batch that does not fit is rejected before any work happens.
func (a *Analyzer) Process(ctx context.Context, limit int) error {
	var candidates []Candidate
	if err := a.readJSON(CandidatesFilename, &candidates); err != nil {
		return fmt.Errorf("no candidate list, run the filter phase first: %w", err)
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	if len(candidates) == 0 {
		log.Printf("[INFO]: candidate list is empty, nothing to process")
		return nil
	}

	if err := a.charge(len(candidates)); err != nil {
		return err
	}

	failed := a.processCandidates(ctx, candidates, PhaseProcess, "")
	if err := a.writeJSON(FailedFilename, failed); err != nil {
		return err
	}
	if _, err := a.Archive.RebuildIndex(); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	log.Printf("[INFO]: processed %d candidates, %d failed", len(candidates), len(failed))
	log.Printf("[INFO]: %s", a.Engine.Stats.Report())
	return nil
}

// RetryFailed re-runs acquisition for the entries of the failed list and
// rewrites it with whatever still fails.
func (a *Analyzer) RetryFailed(ctx context.Context) error {
	var failed []Candidate
	if err := a.readJSON(FailedFilename, &failed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[INFO]: no failed list, nothing to retry")
			return nil
		}
		return err
	}
	if len(failed) == 0 {
		log.Printf("[INFO]: failed list is empty, nothing to retry")
		return nil
	}

	for i := range failed {
		failed[i].Error = ""
	}

	if err := a.charge(len(failed)); err != nil {
		return err
	}

	remaining := a.processCandidates(ctx, failed, PhaseProcess, "")
	if err := a.writeJSON(FailedFilename, remaining); err != nil {
		return err
	}
	if _, err := a.Archive.RebuildIndex(); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	log.Printf("[INFO]: retried %d failures, %d remain", len(failed), len(remaining))
	return nil
}

// ProcessOthers archives the channel uploads the filter criteria excluded:
// every public upload that is not already a candidate gets scored and
// archived under the 其他 category, so the category filters can separate the
// out-of-band uploads from the candidates.
func (a *Analyzer) ProcessOthers(ctx context.Context, channelID string, limit int) error {
	var candidates []Candidate
	if err := a.readJSON(CandidatesFilename, &candidates); err != nil {
		return fmt.Errorf("no candidate list, run the filter phase first: %w", err)
	}

	channel, err := a.Tube.ChannelInfo(ctx, channelID)
	if err != nil {
		return fmt.Errorf("resolving channel %q: %w", channelID, err)
	}
	uploads := channel.ContentDetails.RelatedPlaylists.Uploads

	var ids []string
	err = a.Tube.EachPlaylistItemPage(ctx, uploads, func(page *tube.ResPlaylistItems, _ string, err error) bool {
		if err != nil {
			log.Printf("[ERROR]: listing uploads: %v", err)
			return false
		}
		for _, item := range page.Items {
			if item.Status.PrivacyStatus == "private" {
				continue
			}
			ids = append(ids, item.ContentDetails.VideoId)
			if limit > 0 && len(ids) >= limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("walking uploads: %w", err)
	}

	others := othersOf(ids, candidates)
	if len(others) == 0 {
		log.Printf("[INFO]: every upload is already a candidate, nothing to do")
		return nil
	}

	if err := a.charge(len(others)); err != nil {
		return err
	}

	list := make([]Candidate, 0, len(others))
	for _, id := range others {
		video, err := a.Tube.Video(ctx, id)
		if err != nil {
			log.Printf("[WARN]: details for %q: %v", id, err)
			continue
		}
		title := video.Snippet.Title
		description := video.Snippet.Description
		total := score.Score(video.Views(), publishedTime(video.Snippet.PublishedAt), title, description)
		list = append(list, Candidate{
			VideoID:   id,
			URL:       fmt.Sprintf(tube.WatchURLFormat, id),
			Title:     title,
			Published: publishedDate(video.Snippet.PublishedAt),
			Views:     video.Views(),
			Duration:  video.DurationSeconds(),
			Score:     total,
			Rank:      score.Rank(total),
		})
	}

	failed := a.processCandidates(ctx, list, PhaseProcess, archive.CategoryOther)
	if _, err := a.Archive.RebuildIndex(); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	log.Printf("[INFO]: processed %d out-of-band uploads, %d failed", len(list), len(failed))
	return nil
}

// othersOf keeps the upload ids the filter phase did not turn into candidates.
func othersOf(ids []string, candidates []Candidate) []string {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.VideoID] = true
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !known[id] {
			out = append(out, id)
		}
	}
	return out
}

// WhisperMissing re-acquires transcripts for artifacts archived without one,
// using speech-to-text only. The anti-regression rule in the archive makes
// this safe to run repeatedly.
func (a *Analyzer) WhisperMissing(ctx context.Context) error {
	items, err := a.Archive.LoadAll()
	if err != nil {
		return fmt.Errorf("loading archive: %w", err)
	}

	var missing []*archive.Artifact
	for _, item := range items {
		if !item.HasTranscript {
			missing = append(missing, item)
		}
	}
	if len(missing) == 0 {
		log.Printf("[INFO]: every artifact has a transcript")
		a.Status.Write(0, 0, StateIdle, PhaseWhisper, 0)
		return nil
	}

	if err := a.charge(len(missing)); err != nil {
		return err
	}

	a.Status.Write(0, len(missing), StateProcessing, PhaseWhisper, 0)
	failed := 0
	for i, item := range missing {
		a.Status.Write(i+1, len(missing), StateProcessing, PhaseWhisper, failed)

		id := item.VideoID()
		if id == "" {
			log.Printf("[WARN]: artifact %q has no usable video URL", item.Title)
			failed++
			continue
		}

		tctx, cancel := context.WithTimeout(ctx, extract.DefaultTimeouts[extract.SourceWhisper])
		res, err := a.Whisper.Extract(tctx, id)
		cancel()
		if err != nil || res == nil || strings.TrimSpace(res.Text) == "" {
			log.Printf("[WARN]: whisper pass failed for %q: %v", id, err)
			failed++
			continue
		}

		// Category survives: the artifact was parsed off disk and only the
		// transcript fields change.
		item.HasTranscript = true
		item.Transcript = res.Text
		item.Source = res.Source
		if _, err := a.Archive.Commit(item); err != nil {
			log.Printf("[ERROR]: committing whisper transcript for %q: %v", id, err)
			failed++
		}
	}

	if _, err := a.Archive.RebuildIndex(); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	a.Status.Write(len(missing), len(missing), StateIdle, PhaseWhisper, failed)

	log.Printf("[INFO]: whisper pass done: %d missing, %d still failing", len(missing), failed)
	return nil
}

func (a *Analyzer) processCandidates(ctx context.Context, candidates []Candidate, phase, category string) []Candidate {
	total := len(candidates)
	failed := make([]Candidate, 0)
	withTranscript, withoutTranscript := 0, 0

	a.Status.Write(0, total, StateProcessing, phase, 0)
	for i, c := range candidates {
		a.Status.Write(i+1, total, StateProcessing, phase, len(failed))
		log.Printf("[INFO]: [%d/%d] %s", i+1, total, c.Title)

		res := a.Engine.Extract(ctx, c.VideoID)

		artifact := &archive.Artifact{
			Title:     c.Title,
			URL:       c.URL,
			Published: c.Published,
			Views:     c.Views,
			Duration:  c.Duration,
			Score:     c.Score,
			Rank:      c.Rank,
			Category:  category,
		}
		if res != nil {
			artifact.HasTranscript = true
			artifact.Transcript = res.Text
			artifact.Source = res.Source
			withTranscript++
		} else {
			withoutTranscript++
		}

		if _, err := a.Archive.Commit(artifact); err != nil {
			log.Printf("[ERROR]: committing artifact for %q: %v", c.VideoID, err)
			c.Error = err.Error()
			failed = append(failed, c)
		}
	}

	a.Status.Write(total, total, StateIdle, phase, len(failed))
	log.Printf(
		"[INFO]: batch done: %d with transcript, %d without, %d failed",
		withTranscript, withoutTranscript, len(failed),
	)
	return failed
}

func (a *Analyzer) charge(items int) error {
	if a.Quota == nil {
		return nil
	}
	if !a.Quota.Charge(a.Identity, a.Authenticated, items, quota.EstimateDuration(items)) {
		count, duration := a.Quota.Usage(a.Identity, a.Authenticated)
		return fmt.Errorf(
			"charging %d items (%d units) at usage %d/%d: %w",
			items, quota.EstimateDuration(items), count, duration, ErrQuotaExhausted,
		)
	}
	return nil
}
