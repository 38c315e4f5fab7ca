// Package analyzer orchestrates the two-phase pipeline: filter a channel's
// uploads down to candidates worth transcribing, then acquire, score, and
// archive a transcript per candidate.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opslilyhuang/videoanalysis/internal/archive"
	"github.com/opslilyhuang/videoanalysis/internal/extract"
	"github.com/opslilyhuang/videoanalysis/internal/quota"
	"github.com/opslilyhuang/videoanalysis/internal/score"
	"github.com/opslilyhuang/videoanalysis/internal/tube"
)

const (
	CandidatesFilename = "filtered_candidates.json"
	SummaryFilename    = "filter_summary.json"
	FailedFilename     = "failed_videos.json"

	// MinViews and MinPublished are the filter thresholds: a video is a
	// candidate when it clears either one or matches a keyword.
	MinViews     = 20_000
	MinPublished = "2024-01"
)

var ErrQuotaExhausted = errors.New("daily quota exhausted")

type Criteria struct {
	Views20K    bool     `json:"20k_views"`
	Since2024   bool     `json:"since_2024"`
	Keywords    bool     `json:"keywords"`
	KeywordList []string `json:"keywords_list,omitempty"`
}

type Candidate struct {
	VideoID     string   `json:"video_id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Published   string   `json:"published"` // "2006-01-02" or "Unknown".
	Views       int      `json:"views"`
	Duration    int      `json:"duration"`
	Score       float64  `json:"score"`
	Rank        string   `json:"rank"`
	Criteria    Criteria `json:"matched_criteria"`
	Error       string   `json:"error,omitempty"` // Set on entries in the failed list.
}

type FilterSummary struct {
	ChannelTotal  int    `json:"channel_total"`
	Views20K      int    `json:"cat_20k_views"`
	Since2024     int    `json:"cat_2024_01"`
	Keywords      int    `json:"cat_keywords"`
	FilteredTotal int    `json:"filtered_total"`
	UpdatedAt     string `json:"updated_at"`
}

type Analyzer struct {
	Tube    *tube.Client
	Engine  *extract.Engine
	Archive *archive.Store

	// Whisper drives the re-acquisition pass over transcript-less artifacts.
	Whisper extract.Strategy

	// Quota is charged per processed video, nil means unmetered.
	Quota         *quota.Gate
	Identity      string
	Authenticated bool

	Status  *StatusWriter
	DataDir string // Where candidate/summary/failed files live.

	// Workers bounds concurrent detail fetches, 0 means 4.
	Workers int
}

// Filter walks the channel's uploads and keeps every video that clears the
// view threshold, was published recently, or mentions a keyword. Candidates
// are scored, ranked, and persisted for the process phase.
func (a *Analyzer) Filter(ctx context.Context, channelID string, limit int) ([]Candidate, error) {
	channel, err := a.Tube.ChannelInfo(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("resolving channel %q: %w", channelID, err)
	}
	uploads := channel.ContentDetails.RelatedPlaylists.Uploads
	log.Printf("[INFO]: filtering channel %q via uploads playlist %q", channel.Snippet.Title, uploads)

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
		return nil, fmt.Errorf("walking uploads: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("channel %q has no public uploads", channelID)
	}

	a.Status.Write(0, len(ids), StateFiltering, PhaseFilter, 0)

	videos := make([]*tube.ResVideo, len(ids))
	group, gctx := errgroup.WithContext(ctx)
	workers := a.Workers
	if workers <= 0 {
		workers = 4
	}
	group.SetLimit(workers)
	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			video, err := a.Tube.Video(gctx, id)
			if err != nil {
				// Deleted and region-locked videos are routine, skip them.
				log.Printf("[WARN]: details for %q: %v", id, err)
				return nil
			}
			videos[i] = video
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("fetching video details: %w", err)
	}

	var candidates []Candidate
	summary := FilterSummary{ChannelTotal: len(ids)}
	for i, video := range videos {
		a.Status.Write(i+1, len(ids), StateFiltering, PhaseFilter, 0)
		if video == nil {
			continue
		}

		published := publishedDate(video.Snippet.PublishedAt)
		views := video.Views()
		title := video.Snippet.Title
		description := video.Snippet.Description

		meetsViews := views >= MinViews
		meetsDate := published != "Unknown" && published[:7] >= MinPublished
		hasKeywords, matched := score.MatchKeywords(title, description)

		if meetsViews {
			summary.Views20K++
		}
		if meetsDate {
			summary.Since2024++
		}
		if hasKeywords {
			summary.Keywords++
		}
		if !meetsViews && !meetsDate && !hasKeywords {
			continue
		}

		total := score.Score(views, publishedTime(video.Snippet.PublishedAt), title, description)
		candidates = append(candidates, Candidate{
			VideoID:     video.Id,
			URL:         fmt.Sprintf(tube.WatchURLFormat, video.Id),
			Title:       title,
			Description: description,
			Published:   published,
			Views:       views,
			Duration:    video.DurationSeconds(),
			Score:       total,
			Rank:        score.Rank(total),
			Criteria: Criteria{
				Views20K:    meetsViews,
				Since2024:   meetsDate,
				Keywords:    hasKeywords,
				KeywordList: matched,
			},
		})
	}
	summary.FilteredTotal = len(candidates)
	summary.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	if err := a.writeJSON(CandidatesFilename, candidates); err != nil {
		return nil, err
	}
	if err := a.writeJSON(SummaryFilename, summary); err != nil {
		return nil, err
	}

	a.Status.Write(len(ids), len(ids), StateIdle, PhaseFilter, 0)
	log.Printf(
		"[INFO]: filter done: %d uploads, %d candidates (20k+: %d, 2024+: %d, keywords: %d)",
		len(ids), len(candidates), summary.Views20K, summary.Since2024, summary.Keywords,
	)
	return candidates, nil
}

func (a *Analyzer) writeJSON(name string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %q: %w", name, err)
	}
	if err := writeFileAtomic(filepath.Join(a.DataDir, name), content); err != nil {
		return fmt.Errorf("writing %q: %w", name, err)
	}
	return nil
}

func (a *Analyzer) readJSON(name string, v any) error {
	content, err := os.ReadFile(filepath.Join(a.DataDir, name))
	if err != nil {
		return fmt.Errorf("reading %q: %w", name, err)
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("unmarshalling %q: %w", name, err)
	}
	return nil
}

func publishedDate(value string) string {
	t, err := tube.ParsePublishedTime(value)
	if err != nil {
		return "Unknown"
	}
	return t.Format("2006-01-02")
}

func publishedTime(value string) time.Time {
	t, err := tube.ParsePublishedTime(value)
	if err != nil {
		return time.Time{}
	}
	return t
}
