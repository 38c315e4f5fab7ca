package extract

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/opslilyhuang/videoanalysis/internal/probe"
)

// Source names as recorded on artifacts and in stats.
const (
	SourceCaptions = "captions"
	SourceSidecar  = "yt-dlp"
	SourceSummary  = "summary_api"
	SourceWhisper  = "whisper"
)

// DefaultTimeouts bounds each strategy attempt, whisper gets a lot of slack
// because it downloads and transcribes the full audio.
var DefaultTimeouts = map[string]time.Duration{
	SourceCaptions: 30 * time.Second,
	SourceSidecar:  60 * time.Second,
	SourceSummary:  90 * time.Second,
	SourceWhisper:  10 * time.Minute,
}

type Result struct {
	Text     string
	Source   string
	Language string
}

type Strategy interface {
	Name() string
	Extract(ctx context.Context, videoID string) (*Result, error)
}

// Engine tries strategies in a fixed order and returns the first transcript
// that comes back non-empty.
type Engine struct {
	// Reachable decides which ordering applies, defaults to probe.CanReachSource.
	Reachable func(context.Context) bool

	// Direct is tried when the source host is reachable, Remote when it is not.
	Direct []Strategy
	Remote []Strategy

	Timeouts map[string]time.Duration
	Stats    *Stats
}

// NewEngine wires the standard ordering: [captions, sidecar, whisper] with
// direct access to the source, [summarizer, whisper] without. Nil strategies
// are left out, a summarizer without a credential simply isn't in the chain.
func NewEngine(captions, sidecar, summarizer, whisper Strategy) *Engine {
	return &Engine{
		Reachable: probe.CanReachSource,
		Direct:    chain(captions, sidecar, whisper),
		Remote:    chain(summarizer, whisper),
		Timeouts:  DefaultTimeouts,
		Stats:     NewStats(),
	}
}

func chain(strategies ...Strategy) []Strategy {
	out := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Extract runs the chain for the video. A nil result means every strategy
// failed, which is an expected outcome and not an error: the caller archives
// the item without a transcript.
func (e *Engine) Extract(ctx context.Context, videoID string) *Result {
	order := e.Direct
	if !e.Reachable(ctx) {
		order = e.Remote
	}

	for _, s := range order {
		if err := ctx.Err(); err != nil {
			log.Printf("[WARN]: giving up on %q: %v", videoID, err)
			break
		}

		res, err := e.attempt(ctx, s, videoID)
		if err != nil {
			log.Printf("[WARN]: %s failed for %q: %v", s.Name(), videoID, err)
			e.Stats.Failure(s.Name())
			continue
		}
		if res == nil || strings.TrimSpace(res.Text) == "" {
			log.Printf("[WARN]: %s returned nothing for %q", s.Name(), videoID)
			e.Stats.Failure(s.Name())
			continue
		}

		e.Stats.Success(s.Name())
		log.Printf("[INFO]: got transcript for %q via %s (%d chars)", videoID, s.Name(), len(res.Text))
		return res
	}

	e.Stats.Exhausted()
	log.Printf("[WARN]: all strategies exhausted for %q", videoID)
	return nil
}

func (e *Engine) attempt(ctx context.Context, s Strategy, videoID string) (*Result, error) {
	timeout, ok := e.Timeouts[s.Name()]
	if !ok {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Extract(ctx, videoID)
}
