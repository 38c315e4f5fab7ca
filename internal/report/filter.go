package report

import (
	"strings"

	"github.com/opslilyhuang/videoanalysis/internal/archive"
	"github.com/opslilyhuang/videoanalysis/internal/score"
)

// Category values with special filter behavior. Artifacts carry free-form
// categories, archive.CategoryOther is the bucket the process-others pass
// assigns to out-of-band uploads.
const (
	CategoryOther      = archive.CategoryOther
	CategoryProduct    = "产品介绍"
	CategoryNonProduct = "非产品介绍"
)

// Transcript filter values.
const (
	TranscriptPresent = "present"
	TranscriptMissing = "missing"
	TranscriptWhisper = "whisper"
	TranscriptSource  = "youtube"
)

// Filters is the declarative predicate set of filter mode. Zero values mean
// "don't care", all set predicates must hold.
type Filters struct {
	Search      string `json:"search,omitempty"`       // Substring of the title, case insensitive.
	Rank        string `json:"rank,omitempty"`         // Exact tier.
	RankAtLeast string `json:"rank_at_least,omitempty"`// This tier or better.
	Transcript  string `json:"transcript,omitempty"`
	Category    string `json:"category,omitempty"`
	DateFrom    string `json:"date_from,omitempty"` // "2006-01", month precision.
	DateTo      string `json:"date_to,omitempty"`
	ViewsMin    int    `json:"views_min,omitempty"`
	ViewsMax    int    `json:"views_max,omitempty"`
}

func (f *Filters) Apply(items []*archive.Artifact) []*archive.Artifact {
	out := make([]*archive.Artifact, 0, len(items))
	for _, a := range items {
		if f.match(a) {
			out = append(out, a)
		}
	}
	return out
}

var rankTiers = map[string]int{
	score.RankS: 3,
	score.RankA: 2,
	score.RankB: 1,
}

func (f *Filters) match(a *archive.Artifact) bool {
	if f.Search != "" &&
		!strings.Contains(strings.ToLower(a.Title), strings.ToLower(f.Search)) {
		return false
	}

	if f.Rank != "" && a.Rank != f.Rank {
		return false
	}
	if f.RankAtLeast != "" && rankTiers[a.Rank] < rankTiers[f.RankAtLeast] {
		return false
	}

	switch f.Transcript {
	case TranscriptPresent:
		if !a.HasTranscript {
			return false
		}
	case TranscriptMissing:
		if a.HasTranscript {
			return false
		}
	case TranscriptWhisper:
		if !a.HasTranscript || !strings.EqualFold(a.Source, "whisper") {
			return false
		}
	case TranscriptSource:
		if !a.HasTranscript || strings.EqualFold(a.Source, "whisper") {
			return false
		}
	}

	switch f.Category {
	case "":
	case CategoryProduct:
		if ok, _ := score.MatchKeywords(a.Title, ""); !ok {
			return false
		}
	case CategoryNonProduct:
		ok, _ := score.MatchKeywords(a.Title, "")
		if ok || a.Category == CategoryOther {
			return false
		}
	default:
		if a.Category != f.Category {
			return false
		}
	}

	// Month-precision string compare works because dates are ISO formatted.
	if f.DateFrom != "" && month(a.Published) < month(f.DateFrom) {
		return false
	}
	if f.DateTo != "" && month(a.Published) > month(f.DateTo) {
		return false
	}

	if f.ViewsMin > 0 && a.Views < f.ViewsMin {
		return false
	}
	if f.ViewsMax > 0 && a.Views > f.ViewsMax {
		return false
	}

	return true
}

func month(date string) string {
	if len(date) > 7 {
		return date[:7]
	}
	return date
}
